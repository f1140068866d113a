package sla

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teoat/nexus378-sub000/pkg/model"
)

// MetricSource supplies the current value of a metric. The engine implements
// this over its queue and job statistics.
type MetricSource interface {
	MetricValue(metric model.SLAMetric) (float64, error)
}

// AlertSink receives dispatched alerts. Channel delivery (email, Slack, …)
// is an external collaborator; a log-backed sink is provided for default use.
type AlertSink interface {
	Dispatch(alert *model.Alert)
}

// LogSink logs every alert it receives.
type LogSink struct {
	Logger *slog.Logger
}

// Dispatch implements AlertSink.
func (s *LogSink) Dispatch(alert *model.Alert) {
	s.Logger.Warn("sla alert",
		"alert_id", alert.ID, "sla_id", alert.SLAID,
		"severity", alert.Severity, "message", alert.Message)
}

// Config holds monitor-level settings.
type Config struct {
	// AlertCooldown is the minimum interval between alerts for one SLA.
	AlertCooldown time.Duration `yaml:"alert_cooldown"`
	// ViolationAlertThreshold is how many violations within the last hour
	// are needed before a non-critical status alerts.
	ViolationAlertThreshold int `yaml:"violation_alert_threshold"`
	// Retention bounds how long measurements, violations, and alerts are kept.
	Retention time.Duration `yaml:"retention"`
	// Channels tags dispatched alerts with their delivery channels.
	Channels []model.AlertChannel `yaml:"channels,omitempty"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AlertCooldown:           15 * time.Minute,
		ViolationAlertThreshold: 3,
		Retention:               24 * time.Hour,
		Channels:                []model.AlertChannel{model.ChannelLog, model.ChannelDashboard},
	}
}

// Monitor evaluates SLA compliance and raises throttled alerts on breach.
type Monitor struct {
	mu     sync.Mutex
	cfg    Config
	source MetricSource
	sink   AlertSink
	logger *slog.Logger

	definitions  map[string]*model.SLADefinition
	measurements map[string][]model.SLAMeasurement
	violations   map[string][]*model.SLAViolation
	alerts       map[string]*model.Alert
	lastEval     map[string]time.Time
	lastAlert    map[string]time.Time

	recordViolation func(model.SLAViolation)
}

// SetViolationRecorder installs a callback invoked once for every new
// violation, outside the monitor's lock. Used to persist violations.
func (m *Monitor) SetViolationRecorder(fn func(model.SLAViolation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordViolation = fn
}

// NewMonitor creates a monitor reading metric values from source and pushing
// alerts into sink.
func NewMonitor(cfg Config, source MetricSource, sink AlertSink, logger *slog.Logger) *Monitor {
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = DefaultConfig().AlertCooldown
	}
	if cfg.ViolationAlertThreshold <= 0 {
		cfg.ViolationAlertThreshold = DefaultConfig().ViolationAlertThreshold
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = DefaultConfig().Channels
	}
	return &Monitor{
		cfg:          cfg,
		source:       source,
		sink:         sink,
		logger:       logger.With("component", "sla"),
		definitions:  make(map[string]*model.SLADefinition),
		measurements: make(map[string][]model.SLAMeasurement),
		violations:   make(map[string][]*model.SLAViolation),
		alerts:       make(map[string]*model.Alert),
		lastEval:     make(map[string]time.Time),
		lastAlert:    make(map[string]time.Time),
	}
}

// AddSLA registers a definition. An empty ID gets a generated one.
func (m *Monitor) AddSLA(def model.SLADefinition) (string, error) {
	if def.Metric == "" {
		return "", fmt.Errorf("sla %q: metric is required", def.Name)
	}
	if def.EvalFrequency <= 0 {
		def.EvalFrequency = time.Minute
	}
	if def.ID == "" {
		def.ID = "sla_" + uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[def.ID] = &def
	m.logger.Info("sla registered", "sla_id", def.ID, "metric", def.Metric, "target", def.TargetValue)
	return def.ID, nil
}

// RemoveSLA drops a definition and its history.
func (m *Monitor) RemoveSLA(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.definitions[id]; !ok {
		return model.ErrSLANotFound
	}
	delete(m.definitions, id)
	delete(m.measurements, id)
	delete(m.violations, id)
	delete(m.lastEval, id)
	delete(m.lastAlert, id)
	return nil
}

// classify maps a metric value to an SLA status given the definition's
// thresholds and favorable direction.
func classify(def *model.SLADefinition, value float64) model.SLAStatus {
	if def.Metric.LowerIsBetter() {
		switch {
		case value <= def.TargetValue:
			return model.SLAMet
		case value <= def.WarningThreshold:
			return model.SLAWarning
		case value <= def.CriticalThreshold:
			return model.SLAViolated
		default:
			return model.SLACritical
		}
	}
	switch {
	case value >= def.TargetValue:
		return model.SLAMet
	case value >= def.WarningThreshold:
		return model.SLAWarning
	case value >= def.CriticalThreshold:
		return model.SLAViolated
	default:
		return model.SLACritical
	}
}

// severityFor maps an SLA status to alert severity.
func severityFor(status model.SLAStatus) model.Severity {
	switch status {
	case model.SLACritical:
		return model.SeverityCritical
	case model.SLAViolated:
		return model.SeverityHigh
	case model.SLAWarning:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// EvaluateAll runs one evaluation pass over every enabled definition whose
// evaluation frequency has elapsed. Per-SLA errors are logged, not fatal.
func (m *Monitor) EvaluateAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.definitions))
	for id := range m.definitions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		if err := m.Evaluate(id); err != nil {
			m.logger.Error("sla evaluation", "sla_id", id, "error", err)
		}
	}
}

// Evaluate measures one SLA now: fetch the metric, classify, record, and
// alert when warranted.
func (m *Monitor) Evaluate(id string) error {
	m.mu.Lock()
	def, ok := m.definitions[id]
	if !ok {
		m.mu.Unlock()
		return model.ErrSLANotFound
	}
	if !def.Enabled {
		m.mu.Unlock()
		return nil
	}
	now := time.Now().UTC()
	if last, ok := m.lastEval[id]; ok && now.Sub(last) < def.EvalFrequency {
		m.mu.Unlock()
		return nil
	}
	m.lastEval[id] = now
	m.mu.Unlock()

	value, err := m.source.MetricValue(def.Metric)
	if err != nil {
		return fmt.Errorf("metric %s unavailable: %w", def.Metric, err)
	}

	status := classify(def, value)

	m.mu.Lock()
	m.measurements[id] = append(m.measurements[id], model.SLAMeasurement{
		SLAID:      id,
		Value:      value,
		Status:     status,
		MeasuredAt: now,
	})

	var violation *model.SLAViolation
	if status == model.SLAViolated || status == model.SLACritical {
		violation = &model.SLAViolation{
			ID:         "viol_" + uuid.New().String(),
			SLAID:      id,
			Metric:     def.Metric,
			Value:      value,
			Target:     def.TargetValue,
			Status:     status,
			Severity:   severityFor(status),
			OccurredAt: now,
		}
		m.violations[id] = append(m.violations[id], violation)
	}

	shouldAlert := false
	if status != model.SLAMet {
		shouldAlert = m.shouldAlertLocked(id, status, now)
	}

	var alert *model.Alert
	if shouldAlert {
		violationID := ""
		if violation != nil {
			violationID = violation.ID
		}
		alert = &model.Alert{
			ID:          "alert_" + uuid.New().String(),
			SLAID:       id,
			ViolationID: violationID,
			Severity:    severityFor(status),
			Message: fmt.Sprintf("SLA %s: metric %s = %.2f against target %.2f (%s)",
				def.Name, def.Metric, value, def.TargetValue, status),
			Channels:  append([]model.AlertChannel(nil), m.cfg.Channels...),
			CreatedAt: now,
		}
		m.alerts[alert.ID] = alert
		m.lastAlert[id] = now
	}
	record := m.recordViolation
	m.mu.Unlock()

	if violation != nil && record != nil {
		record(*violation)
	}
	if alert != nil && m.sink != nil {
		m.sink.Dispatch(alert)
	}
	return nil
}

// shouldAlertLocked decides whether a non-MET status alerts: always on
// CRITICAL; otherwise only once the violation count within the last hour
// reaches the threshold and the per-SLA cooldown has elapsed. Caller holds mu.
func (m *Monitor) shouldAlertLocked(id string, status model.SLAStatus, now time.Time) bool {
	if last, ok := m.lastAlert[id]; ok && now.Sub(last) < m.cfg.AlertCooldown {
		if status != model.SLACritical {
			return false
		}
	}
	if status == model.SLACritical {
		return true
	}

	recent := 0
	for _, v := range m.violations[id] {
		if now.Sub(v.OccurredAt) <= time.Hour {
			recent++
		}
	}
	return recent >= m.cfg.ViolationAlertThreshold
}

// SLAState is an introspection snapshot of one SLA.
type SLAState struct {
	Definition      model.SLADefinition   `json:"definition"`
	LastMeasurement *model.SLAMeasurement `json:"last_measurement,omitempty"`
	ViolationCount  int                   `json:"violation_count"`
}

// Status returns the current state of one SLA.
func (m *Monitor) Status(id string) (*SLAState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	def, ok := m.definitions[id]
	if !ok {
		return nil, model.ErrSLANotFound
	}
	state := &SLAState{Definition: *def, ViolationCount: len(m.violations[id])}
	if ms := m.measurements[id]; len(ms) > 0 {
		last := ms[len(ms)-1]
		state.LastMeasurement = &last
	}
	return state, nil
}

// Violations returns violations for one SLA within the window.
func (m *Monitor) Violations(id string, window time.Duration) []model.SLAViolation {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-window)
	var out []model.SLAViolation
	for _, v := range m.violations[id] {
		if v.OccurredAt.After(cutoff) {
			out = append(out, *v)
		}
	}
	return out
}

// AcknowledgeAlert marks an alert as seen by an operator.
func (m *Monitor) AcknowledgeAlert(id string) error {
	return m.stampAlert(id, func(a *model.Alert, now time.Time) { a.AcknowledgedAt = &now })
}

// ResolveAlert marks an alert as resolved.
func (m *Monitor) ResolveAlert(id string) error {
	return m.stampAlert(id, func(a *model.Alert, now time.Time) { a.ResolvedAt = &now })
}

func (m *Monitor) stampAlert(id string, stamp func(*model.Alert, time.Time)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[id]
	if !ok {
		return model.ErrAlertNotFound
	}
	stamp(alert, time.Now().UTC())
	return nil
}

// Prune drops measurements, violations, and resolved alerts older than the
// retention window. Returns how many records were removed.
func (m *Monitor) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-m.cfg.Retention)
	removed := 0

	for id, ms := range m.measurements {
		kept := ms[:0]
		for _, s := range ms {
			if s.MeasuredAt.After(cutoff) {
				kept = append(kept, s)
			} else {
				removed++
			}
		}
		m.measurements[id] = kept
	}
	for id, vs := range m.violations {
		kept := vs[:0]
		for _, v := range vs {
			if v.OccurredAt.After(cutoff) {
				kept = append(kept, v)
			} else {
				removed++
			}
		}
		m.violations[id] = kept
	}
	for id, a := range m.alerts {
		if a.CreatedAt.Before(cutoff) {
			delete(m.alerts, id)
			removed++
		}
	}
	return removed
}
