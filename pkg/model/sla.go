package model

import "time"

// SLAMetric names a monitored operational metric.
type SLAMetric string

const (
	MetricResponseTime   SLAMetric = "response_time"
	MetricErrorRate      SLAMetric = "error_rate"
	MetricQueueTime      SLAMetric = "queue_time"
	MetricProcessingTime SLAMetric = "processing_time"
	MetricThroughput     SLAMetric = "throughput"
	MetricAvailability   SLAMetric = "availability"
	MetricSuccessRate    SLAMetric = "success_rate"
)

// LowerIsBetter returns true for metrics where smaller values are favorable.
func (m SLAMetric) LowerIsBetter() bool {
	switch m {
	case MetricResponseTime, MetricErrorRate, MetricQueueTime, MetricProcessingTime:
		return true
	}
	return false
}

// SLAStatus classifies a measurement against its definition's thresholds.
type SLAStatus string

const (
	SLAMet      SLAStatus = "MET"
	SLAWarning  SLAStatus = "WARNING"
	SLAViolated SLAStatus = "VIOLATED"
	SLACritical SLAStatus = "CRITICAL"
)

// SLADefinition declares a target for one metric and how often to check it.
type SLADefinition struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Metric            SLAMetric     `json:"metric" yaml:"metric"`
	TargetValue       float64       `json:"target_value" yaml:"target_value"`
	WarningThreshold  float64       `json:"warning_threshold" yaml:"warning_threshold"`
	CriticalThreshold float64       `json:"critical_threshold" yaml:"critical_threshold"`
	MeasurementWindow time.Duration `json:"measurement_window" yaml:"measurement_window"`
	EvalFrequency     time.Duration `json:"evaluation_frequency" yaml:"evaluation_frequency"`
	Enabled           bool          `json:"enabled" yaml:"enabled"`
}

// SLAMeasurement is one evaluation sample.
type SLAMeasurement struct {
	SLAID      string    `json:"sla_id"`
	Value      float64   `json:"value"`
	Status     SLAStatus `json:"status"`
	MeasuredAt time.Time `json:"measured_at"`
}

// SLAViolation is an immutable record of sustained or critical non-compliance.
type SLAViolation struct {
	ID         string    `json:"id"`
	SLAID      string    `json:"sla_id"`
	Metric     SLAMetric `json:"metric"`
	Value      float64   `json:"value"`
	Target     float64   `json:"target"`
	Status     SLAStatus `json:"status"`
	Severity   Severity  `json:"severity"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AlertChannel identifies a delivery channel for alerts. Delivery itself is a
// collaborator interface; the engine only tags alerts with their channels.
type AlertChannel string

const (
	ChannelEmail     AlertChannel = "email"
	ChannelSlack     AlertChannel = "slack"
	ChannelWebhook   AlertChannel = "webhook"
	ChannelSMS       AlertChannel = "sms"
	ChannelLog       AlertChannel = "log"
	ChannelDashboard AlertChannel = "dashboard"
)

// Alert is a throttled notification raised for an SLA violation.
type Alert struct {
	ID             string         `json:"id"`
	SLAID          string         `json:"sla_id"`
	ViolationID    string         `json:"violation_id"`
	Severity       Severity       `json:"severity"`
	Message        string         `json:"message"`
	Channels       []AlertChannel `json:"channels"`
	CreatedAt      time.Time      `json:"created_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
}
