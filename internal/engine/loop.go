package engine

import (
	"context"
	"log/slog"
	"time"
)

// LoopConfig holds the maintenance loop intervals. The tick interval bounds
// how fast retries are requeued; the remaining phases run on their own cadence
// within ticks.
type LoopConfig struct {
	TickInterval      time.Duration
	TimeoutInterval   time.Duration
	DeadlockInterval  time.Duration
	RebalanceInterval time.Duration
	SLAInterval       time.Duration
	CleanupInterval   time.Duration
}

// DefaultLoopConfig returns sensible defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		TickInterval:      2 * time.Second,
		TimeoutInterval:   10 * time.Second,
		DeadlockInterval:  30 * time.Second,
		RebalanceInterval: time.Minute,
		SLAInterval:       30 * time.Second,
		CleanupInterval:   5 * time.Minute,
	}
}

// Loop drives the engine's periodic maintenance: retry requeueing, timeout
// sweeps, deadlock detection, queue rebalancing, SLA evaluation, and cleanup.
type Loop struct {
	engine *Engine
	config LoopConfig
	logger *slog.Logger
	stopCh chan struct{}
	doneCh chan struct{}

	lastTimeout   time.Time
	lastDeadlock  time.Time
	lastRebalance time.Time
	lastSLA       time.Time
	lastCleanup   time.Time
}

// NewLoop creates a maintenance loop over the engine.
func NewLoop(e *Engine, cfg LoopConfig, logger *slog.Logger) *Loop {
	def := DefaultLoopConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.TimeoutInterval <= 0 {
		cfg.TimeoutInterval = def.TimeoutInterval
	}
	if cfg.DeadlockInterval <= 0 {
		cfg.DeadlockInterval = def.DeadlockInterval
	}
	if cfg.RebalanceInterval <= 0 {
		cfg.RebalanceInterval = def.RebalanceInterval
	}
	if cfg.SLAInterval <= 0 {
		cfg.SLAInterval = def.SLAInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	return &Loop{
		engine: e,
		config: cfg,
		logger: logger.With("component", "loop"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the maintenance loop. Blocks until ctx is cancelled or Stop is
// called.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("maintenance loop started", "tick_interval", l.config.TickInterval)
	ticker := time.NewTicker(l.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("maintenance loop stopping (context cancelled)")
			close(l.doneCh)
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("maintenance loop stopping (stop called)")
			close(l.doneCh)
			return nil
		case <-ticker.C:
			l.Tick(time.Now().UTC())
		}
	}
}

// Stop shuts down the loop and waits for the current tick to finish.
func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// Tick runs one maintenance iteration at the given instant. Phases beyond
// retry requeueing only run once their interval has elapsed.
func (l *Loop) Tick(now time.Time) {
	if requeued := l.engine.RequeueDueRetries(now); len(requeued) > 0 {
		l.logger.Debug("retries requeued", "count", len(requeued))
	}

	if now.Sub(l.lastTimeout) >= l.config.TimeoutInterval {
		l.lastTimeout = now
		l.engine.SweepTimeouts(now)
	}

	if now.Sub(l.lastDeadlock) >= l.config.DeadlockInterval {
		l.lastDeadlock = now
		if resolutions := l.engine.ResolveDeadlocks(); len(resolutions) > 0 {
			l.logger.Warn("deadlocks resolved", "count", len(resolutions))
		}
	}

	if now.Sub(l.lastRebalance) >= l.config.RebalanceInterval {
		l.lastRebalance = now
		if moved := l.engine.Queues().Rebalance(); moved > 0 {
			l.logger.Info("queues rebalanced", "jobs_moved", moved)
		}
	}

	if now.Sub(l.lastSLA) >= l.config.SLAInterval {
		l.lastSLA = now
		l.engine.SLA().EvaluateAll()
	}

	if now.Sub(l.lastCleanup) >= l.config.CleanupInterval {
		l.lastCleanup = now
		l.engine.Cleanup(now)
	}
}
