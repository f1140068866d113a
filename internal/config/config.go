package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teoat/nexus378-sub000/internal/queue"
	"github.com/teoat/nexus378-sub000/internal/sla"
	"github.com/teoat/nexus378-sub000/pkg/model"
)

// Duration wraps time.Duration so YAML configs can say "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EngineConfig tunes the periodic maintenance loops.
type EngineConfig struct {
	DeadlockInterval  Duration `yaml:"deadlock_interval"`  // deadlock detection sweep
	TimeoutInterval   Duration `yaml:"timeout_interval"`   // job and dependency timeout sweep
	RebalanceInterval Duration `yaml:"rebalance_interval"` // queue load rebalancing
	SLAInterval       Duration `yaml:"sla_interval"`       // SLA evaluation pass
	CleanupInterval   Duration `yaml:"cleanup_interval"`   // retention pruning and archival
	Retention         Duration `yaml:"retention"`          // how long terminal jobs stay in memory
}

// QueueConfig declares one queue.
type QueueConfig struct {
	Name             string             `yaml:"name"`
	Strategy         string             `yaml:"strategy"`
	MaxSize          int                `yaml:"max_size"`
	FairShareQuantum int                `yaml:"fair_share_quantum"`
	EnablePreemption bool               `yaml:"enable_preemption"`
	CostThreshold    float64            `yaml:"cost_threshold"`
	DeadlineBuffer   Duration           `yaml:"deadline_buffer"`
	PriorityWeights  map[string]float64 `yaml:"priority_weights,omitempty"`
}

// RetryConfig sets the default retry policy applied to jobs that carry none.
type RetryConfig struct {
	MaxRetries        int      `yaml:"max_retries"`
	RetryDelay        Duration `yaml:"retry_delay"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	MaxRetryDelay     Duration `yaml:"max_retry_delay"`
}

// SLADefConfig declares one SLA in a config file.
type SLADefConfig struct {
	Name              string   `yaml:"name"`
	Metric            string   `yaml:"metric"`
	TargetValue       float64  `yaml:"target_value"`
	WarningThreshold  float64  `yaml:"warning_threshold"`
	CriticalThreshold float64  `yaml:"critical_threshold"`
	MeasurementWindow Duration `yaml:"measurement_window"`
	EvalFrequency     Duration `yaml:"evaluation_frequency"`
	Enabled           *bool    `yaml:"enabled,omitempty"` // nil means enabled
}

// SLAConfig configures the SLA monitor.
type SLAConfig struct {
	AlertCooldown           Duration       `yaml:"alert_cooldown"`
	ViolationAlertThreshold int            `yaml:"violation_alert_threshold"`
	Retention               Duration       `yaml:"retention"`
	Definitions             []SLADefConfig `yaml:"definitions,omitempty"`
}

// ArchiveConfig configures the SQLite archive store.
type ArchiveConfig struct {
	DBPath string `yaml:"db_path"` // ":memory:" for testing, empty disables archival
}

// Config is the full engine configuration.
type Config struct {
	LogLevel  string            `yaml:"log_level"`
	LogFormat string            `yaml:"log_format"`
	Engine    EngineConfig      `yaml:"engine"`
	Queues    []QueueConfig     `yaml:"queues,omitempty"` // empty means the default three
	Routing   map[string]string `yaml:"routing,omitempty"`
	Retry     RetryConfig       `yaml:"retry"`
	SLA       SLAConfig         `yaml:"sla"`
	Archive   ArchiveConfig     `yaml:"archive"`
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Engine: EngineConfig{
			DeadlockInterval:  Duration(30 * time.Second),
			TimeoutInterval:   Duration(10 * time.Second),
			RebalanceInterval: Duration(time.Minute),
			SLAInterval:       Duration(30 * time.Second),
			CleanupInterval:   Duration(5 * time.Minute),
			Retention:         Duration(24 * time.Hour),
		},
		Retry: RetryConfig{
			MaxRetries:        3,
			RetryDelay:        Duration(5 * time.Second),
			BackoffMultiplier: 2.0,
			MaxRetryDelay:     Duration(5 * time.Minute),
		},
		SLA: SLAConfig{
			AlertCooldown:           Duration(15 * time.Minute),
			ViolationAlertThreshold: 3,
			Retention:               Duration(24 * time.Hour),
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the config for inconsistencies.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}

	seen := make(map[string]bool)
	for _, q := range c.Queues {
		if q.Name == "" {
			return fmt.Errorf("queue with empty name")
		}
		if seen[q.Name] {
			return fmt.Errorf("duplicate queue %q", q.Name)
		}
		seen[q.Name] = true
		if q.Strategy != "" && !queue.Strategy(q.Strategy).Valid() {
			return fmt.Errorf("queue %q: unknown strategy %q", q.Name, q.Strategy)
		}
		if q.MaxSize < 0 {
			return fmt.Errorf("queue %q: negative max_size", q.Name)
		}
	}
	for name, target := range c.Routing {
		if len(c.Queues) > 0 && !seen[target] {
			return fmt.Errorf("routing %q -> %q: no such queue", name, target)
		}
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry.backoff_multiplier must be >= 1")
	}

	validMetrics := map[string]bool{
		string(model.MetricResponseTime):   true,
		string(model.MetricErrorRate):      true,
		string(model.MetricQueueTime):      true,
		string(model.MetricProcessingTime): true,
		string(model.MetricThroughput):     true,
		string(model.MetricAvailability):   true,
		string(model.MetricSuccessRate):    true,
	}
	for _, d := range c.SLA.Definitions {
		if !validMetrics[d.Metric] {
			return fmt.Errorf("sla %q: unknown metric %q", d.Name, d.Metric)
		}
	}
	return nil
}

// QueueConfigs translates the declared queues for the queue manager. The
// boolean reports whether any queues were declared at all.
func (c *Config) QueueConfigs() (map[string]queue.Config, bool) {
	if len(c.Queues) == 0 {
		return nil, false
	}
	out := make(map[string]queue.Config, len(c.Queues))
	for _, q := range c.Queues {
		qc := queue.DefaultConfig()
		if q.Strategy != "" {
			qc.Strategy = queue.Strategy(q.Strategy)
		}
		if q.MaxSize > 0 {
			qc.MaxSize = q.MaxSize
		}
		if q.FairShareQuantum > 0 {
			qc.FairShareQuantum = q.FairShareQuantum
		}
		qc.EnablePreemption = q.EnablePreemption
		if q.CostThreshold > 0 {
			qc.CostThreshold = q.CostThreshold
		}
		if q.DeadlineBuffer > 0 {
			qc.DeadlineBuffer = q.DeadlineBuffer.Std()
		}
		if len(q.PriorityWeights) > 0 {
			weights := make(map[model.Priority]float64, len(q.PriorityWeights))
			for p, w := range q.PriorityWeights {
				weights[model.Priority(p)] = w
			}
			qc.PriorityWeights = weights
		}
		out[q.Name] = qc
	}
	return out, true
}

// RetryPolicy translates the retry section into the default job policy.
func (c *Config) RetryPolicy() model.RetryPolicy {
	p := model.DefaultRetryPolicy()
	p.MaxRetries = c.Retry.MaxRetries
	if c.Retry.RetryDelay > 0 {
		p.RetryDelay = c.Retry.RetryDelay.Std()
	}
	if c.Retry.BackoffMultiplier >= 1 {
		p.BackoffMultiplier = c.Retry.BackoffMultiplier
	}
	if c.Retry.MaxRetryDelay > 0 {
		p.MaxRetryDelay = c.Retry.MaxRetryDelay.Std()
	}
	return p
}

// SLAMonitorConfig translates the sla section for the monitor.
func (c *Config) SLAMonitorConfig() sla.Config {
	cfg := sla.DefaultConfig()
	if c.SLA.AlertCooldown > 0 {
		cfg.AlertCooldown = c.SLA.AlertCooldown.Std()
	}
	if c.SLA.ViolationAlertThreshold > 0 {
		cfg.ViolationAlertThreshold = c.SLA.ViolationAlertThreshold
	}
	if c.SLA.Retention > 0 {
		cfg.Retention = c.SLA.Retention.Std()
	}
	return cfg
}

// SLADefinitions translates declared SLAs into model definitions.
func (c *Config) SLADefinitions() []model.SLADefinition {
	out := make([]model.SLADefinition, 0, len(c.SLA.Definitions))
	for _, d := range c.SLA.Definitions {
		def := model.SLADefinition{
			Name:              d.Name,
			Metric:            model.SLAMetric(d.Metric),
			TargetValue:       d.TargetValue,
			WarningThreshold:  d.WarningThreshold,
			CriticalThreshold: d.CriticalThreshold,
			MeasurementWindow: d.MeasurementWindow.Std(),
			EvalFrequency:     d.EvalFrequency.Std(),
			Enabled:           d.Enabled == nil || *d.Enabled,
		}
		out = append(out, def)
	}
	return out
}
