package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teoat/nexus378-sub000/internal/archive"
	"github.com/teoat/nexus378-sub000/internal/dependency"
	"github.com/teoat/nexus378-sub000/internal/queue"
	"github.com/teoat/nexus378-sub000/internal/retry"
	"github.com/teoat/nexus378-sub000/internal/sla"
	"github.com/teoat/nexus378-sub000/pkg/model"
)

// Config holds engine-level settings.
type Config struct {
	// Retention bounds how long terminal jobs stay in memory before cleanup
	// removes them (archiving first, when an archive store is attached).
	Retention time.Duration
	// DefaultRetryPolicy is applied to submitted jobs carrying a zero policy.
	DefaultRetryPolicy model.RetryPolicy
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Retention:          24 * time.Hour,
		DefaultRetryPolicy: model.DefaultRetryPolicy(),
	}
}

// Engine orchestrates jobs across the dependency graph, the queues, the retry
// manager, and the SLA monitor. It owns the canonical job registry; the
// component managers hold only the views they need.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	deps    *dependency.Manager
	queues  *queue.Manager
	retries *retry.Manager
	monitor *sla.Monitor
	store   *archive.Store // optional

	mu       sync.Mutex
	jobs     map[string]*model.Job
	jobQueue map[string]string    // jobID -> queue currently holding it
	retryAt  map[string]time.Time // RETRYING jobs -> earliest re-enqueue

	startedAt time.Time
	completed int
	failed    int
	cancelled int
	timedOut  int
}

// New wires an engine over the given queue manager. A nil sink falls back to
// log-only alerting; a nil store disables archival.
func New(cfg Config, queues *queue.Manager, slaCfg sla.Config, sink sla.AlertSink, store *archive.Store, logger *slog.Logger) *Engine {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	if cfg.DefaultRetryPolicy.MaxRetries == 0 && cfg.DefaultRetryPolicy.BackoffMultiplier == 0 {
		cfg.DefaultRetryPolicy = model.DefaultRetryPolicy()
	}
	if sink == nil {
		sink = &sla.LogSink{Logger: logger}
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger.With("component", "engine"),
		deps:      dependency.NewManager(logger),
		queues:    queues,
		retries:   retry.NewManager(logger),
		store:     store,
		jobs:      make(map[string]*model.Job),
		jobQueue:  make(map[string]string),
		retryAt:   make(map[string]time.Time),
		startedAt: time.Now().UTC(),
	}
	e.monitor = sla.NewMonitor(slaCfg, e, sink, logger)
	if store != nil {
		e.monitor.SetViolationRecorder(func(v model.SLAViolation) {
			if err := store.RecordViolation(context.Background(), v); err != nil {
				e.logger.Error("archive violation", "violation_id", v.ID, "error", err)
			}
		})
	}
	return e
}

// Dependencies exposes the dependency manager for introspection.
func (e *Engine) Dependencies() *dependency.Manager { return e.deps }

// Queues exposes the queue manager.
func (e *Engine) Queues() *queue.Manager { return e.queues }

// Retries exposes the retry manager.
func (e *Engine) Retries() *retry.Manager { return e.retries }

// SLA exposes the SLA monitor.
func (e *Engine) SLA() *sla.Monitor { return e.monitor }

// Submit registers a job and its dependencies, then queues it if it can start
// immediately or parks it as BLOCKED. A dependency cycle rejects the job.
func (e *Engine) Submit(job *model.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already submitted", job.ID)
	}
	if job.RetryPolicy.MaxRetries == 0 && job.RetryPolicy.BackoffMultiplier == 0 {
		job.RetryPolicy = e.cfg.DefaultRetryPolicy
	}

	e.deps.Register(job)
	if len(job.Dependencies) > 0 {
		if err := e.deps.AddDependencies(job, job.Dependencies); err != nil {
			// Roll the graph back to its pre-submit shape. Targets the
			// insertion materialized for unknown jobs go first so the
			// rejected node itself can orphan out; a node still carrying a
			// prior job's forward edge stays, as it did before the submit.
			for _, dep := range job.Dependencies {
				if _, tracked := e.jobs[dep.TargetJobID]; !tracked {
					e.deps.RemoveOrphan(dep.TargetJobID)
				}
			}
			e.deps.RemoveOrphan(job.ID)
			return err
		}
	}
	e.jobs[job.ID] = job

	if e.deps.CanJobStart(job.ID) {
		if err := e.enqueueLocked(job); err != nil {
			return err
		}
	} else {
		if err := job.UpdateStatus(model.StatusBlocked); err != nil {
			return err
		}
		e.deps.UpdateJobStatus(job.ID, model.StatusBlocked)
	}

	e.logger.Info("job submitted", "job_id", job.ID, "type", job.Type,
		"priority", job.Priority, "status", job.Status)
	return nil
}

// enqueueLocked routes the job to a queue and marks it QUEUED. Caller holds mu.
func (e *Engine) enqueueLocked(job *model.Job) error {
	queueName, err := e.queues.AddJob(job)
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	e.jobQueue[job.ID] = queueName
	if err := job.UpdateStatus(model.StatusQueued); err != nil {
		return err
	}
	e.deps.UpdateJobStatus(job.ID, model.StatusQueued)
	return nil
}

// NextReadyJob hands out the next dependency-clear job from the named queue
// ("" scans all queues in service order) and marks it ASSIGNED. Jobs whose
// dependencies became unsatisfied since enqueue (exclusive peers, mostly) are
// put back. Returns nil when nothing is ready.
func (e *Engine) NextReadyJob(queueName string) (*model.Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var deferred []*model.Job
	defer func() {
		for _, job := range deferred {
			if name, err := e.queues.AddJob(job); err != nil {
				e.logger.Error("re-queue deferred job", "job_id", job.ID, "error", err)
			} else {
				e.jobQueue[job.ID] = name
			}
		}
	}()

	for {
		name, job, err := e.queues.NextJob(queueName)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, nil
		}
		if !e.deps.CanJobStart(job.ID) {
			deferred = append(deferred, job)
			continue
		}
		e.jobQueue[job.ID] = name
		if err := job.UpdateStatus(model.StatusAssigned); err != nil {
			return nil, err
		}
		e.deps.UpdateJobStatus(job.ID, model.StatusAssigned)
		return job, nil
	}
}

// StartJob marks an assigned job as RUNNING. Rejects with an
// UnresolvedDependencyError when a required dependency is still unsatisfied.
func (e *Engine) StartJob(jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return model.ErrJobNotFound
	}
	if err := e.deps.Unresolved(jobID); err != nil {
		return err
	}
	if err := job.UpdateStatus(model.StatusRunning); err != nil {
		return err
	}
	e.deps.UpdateJobStatus(jobID, model.StatusRunning)
	if q, err := e.queues.Queue(e.jobQueue[jobID]); err == nil {
		q.MarkProcessing(jobID)
	}
	return nil
}

// ReportSuccess marks a running job COMPLETED and promotes newly unblocked
// dependents into their queues.
func (e *Engine) ReportSuccess(jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return model.ErrJobNotFound
	}
	if err := job.UpdateStatus(model.StatusCompleted); err != nil {
		return err
	}
	e.deps.UpdateJobStatus(jobID, model.StatusCompleted)
	if q, err := e.queues.Queue(e.jobQueue[jobID]); err == nil {
		q.MarkCompleted(jobID)
	}
	e.retries.ResolveAttempt(jobID, true)
	e.completed++
	e.archiveLocked(job)
	e.promoteReadyLocked()

	e.logger.Info("job completed", "job_id", jobID)
	return nil
}

// ReportFailure classifies a job failure and either schedules a retry or
// finalizes the job as FAILED, cascading over required dependents.
func (e *Engine) ReportFailure(jobID, errType, message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return model.ErrJobNotFound
	}
	if err := job.UpdateStatus(model.StatusFailed); err != nil {
		return err
	}
	e.retries.ResolveAttempt(jobID, false)
	return e.handleFailureLocked(job, errType, message)
}

// handleFailureLocked decides retry-or-fail for a job already in FAILED or
// TIMEOUT status. Caller holds mu.
func (e *Engine) handleFailureLocked(job *model.Job, errType, message string) error {
	info := e.retries.ClassifyError(job.ID, job.RetryCount, errType, message)
	decision := e.retries.ShouldRetry(job, info)

	if decision == model.DecisionFail {
		e.retries.RecordAttempt(info, decision, "", 0)
		e.finalizeFailureLocked(job)
		return nil
	}

	delay, strategy := e.retries.Delay(job, info)
	e.retries.RecordAttempt(info, decision, strategy, delay)

	if err := job.UpdateStatus(model.StatusRetrying); err != nil {
		return err
	}
	job.RetryCount++
	// The graph sees RETRYING, never the intermediate failure, so dependents
	// are not cascade-failed for a recoverable error.
	e.deps.UpdateJobStatus(job.ID, model.StatusRetrying)
	if q, err := e.queues.Queue(e.jobQueue[job.ID]); err == nil {
		q.MarkFailed(job.ID)
	}
	e.retryAt[job.ID] = time.Now().UTC().Add(delay)

	e.logger.Info("job retry scheduled", "job_id", job.ID, "attempt", job.RetryCount,
		"category", info.Category, "strategy", strategy, "delay", delay)
	return nil
}

// finalizeFailureLocked settles a terminal failure: queue bookkeeping,
// dependent cascade, archival. Caller holds mu.
func (e *Engine) finalizeFailureLocked(job *model.Job) {
	if q, err := e.queues.Queue(e.jobQueue[job.ID]); err == nil {
		q.MarkFailed(job.ID)
	}
	if job.Status == model.StatusTimeout {
		e.timedOut++
	} else {
		e.failed++
	}
	e.archiveLocked(job)

	cascaded := e.deps.UpdateJobStatus(job.ID, model.StatusFailed)
	for _, depID := range cascaded {
		dep, ok := e.jobs[depID]
		if !ok {
			continue
		}
		e.queues.RemoveJob(depID)
		if err := dep.UpdateStatus(model.StatusFailed); err != nil {
			e.logger.Error("cascade status update", "job_id", depID, "error", err)
			continue
		}
		e.failed++
		e.archiveLocked(dep)
		e.logger.Warn("job failed by dependency cascade", "job_id", depID, "caused_by", job.ID)
	}

	e.logger.Warn("job failed", "job_id", job.ID, "status", job.Status,
		"retry_count", job.RetryCount, "cascaded", len(cascaded))
}

// Cancel removes a job from its queue and marks it CANCELLED. Dependents'
// edges onto it are waived, so optional-style chains keep moving.
func (e *Engine) Cancel(jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return model.ErrJobNotFound
	}
	e.queues.RemoveJob(jobID)
	delete(e.retryAt, jobID)
	if err := job.UpdateStatus(model.StatusCancelled); err != nil {
		return err
	}
	e.deps.UpdateJobStatus(jobID, model.StatusCancelled)
	e.cancelled++
	e.archiveLocked(job)
	e.promoteReadyLocked()

	e.logger.Info("job cancelled", "job_id", jobID)
	return nil
}

// Job returns the canonical record for one job.
func (e *Engine) Job(jobID string) (*model.Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	return job, nil
}

// RequeueDueRetries moves RETRYING jobs whose backoff has elapsed back to
// their queues. Returns the requeued IDs.
func (e *Engine) RequeueDueRetries(now time.Time) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var requeued []string
	for jobID, due := range e.retryAt {
		if due.After(now) {
			continue
		}
		job, ok := e.jobs[jobID]
		if !ok {
			delete(e.retryAt, jobID)
			continue
		}
		if err := e.enqueueLocked(job); err != nil {
			e.logger.Error("requeue retry", "job_id", jobID, "error", err)
			continue
		}
		delete(e.retryAt, jobID)
		requeued = append(requeued, jobID)
	}
	return requeued
}

// SweepTimeouts advances time-dependent state: dependency timeouts that have
// elapsed, running jobs past their execution timeout, and queued jobs past
// their queueing timeout.
func (e *Engine) SweepTimeouts(now time.Time) {
	flipped := e.deps.SweepTimeouts(now)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, jobID := range flipped {
		job, ok := e.jobs[jobID]
		if !ok || job.Status != model.StatusBlocked {
			continue
		}
		if err := e.enqueueLocked(job); err != nil {
			e.logger.Error("promote timed-out dependency", "job_id", jobID, "error", err)
		}
	}

	for _, job := range e.jobs {
		switch job.Status {
		case model.StatusRunning:
			if job.Timeout.Execution <= 0 || job.StartedAt == nil {
				continue
			}
			if now.Sub(*job.StartedAt) < job.Timeout.Execution {
				continue
			}
			if err := job.UpdateStatus(model.StatusTimeout); err != nil {
				continue
			}
			e.logger.Warn("job execution timeout", "job_id", job.ID, "limit", job.Timeout.Execution)
			if err := e.handleFailureLocked(job, "TimeoutError", "execution timeout exceeded"); err != nil {
				e.logger.Error("timeout handling", "job_id", job.ID, "error", err)
			}
		case model.StatusQueued:
			if job.Timeout.Queueing <= 0 || now.Sub(job.UpdatedAt) < job.Timeout.Queueing {
				continue
			}
			e.queues.RemoveJob(job.ID)
			if err := job.UpdateStatus(model.StatusFailed); err != nil {
				continue
			}
			e.logger.Warn("job queueing timeout", "job_id", job.ID, "limit", job.Timeout.Queueing)
			if err := e.handleFailureLocked(job, "TimeoutError", "queueing timeout exceeded"); err != nil {
				e.logger.Error("queueing timeout handling", "job_id", job.ID, "error", err)
			}
		}
	}
}

// ResolveDeadlocks force-breaks dependency cycles and promotes any jobs the
// broken edges release.
func (e *Engine) ResolveDeadlocks() []dependency.Resolution {
	resolutions := e.deps.ResolveDeadlocks()
	if len(resolutions) > 0 {
		e.mu.Lock()
		e.promoteReadyLocked()
		e.mu.Unlock()
	}
	return resolutions
}

// Cleanup drops terminal jobs older than the retention window from memory:
// retry history is archived then forgotten, queue and dependency bookkeeping
// is dropped, and the SLA monitor is pruned.
func (e *Engine) Cleanup(now time.Time) int {
	e.mu.Lock()

	cutoff := now.Add(-e.cfg.Retention)
	var removed []string
	for id, job := range e.jobs {
		if !job.Status.IsTerminal() {
			continue
		}
		settled := job.UpdatedAt
		if job.CompletedAt != nil {
			settled = *job.CompletedAt
		}
		if settled.After(cutoff) {
			continue
		}
		e.persistAttemptsLocked(id)
		e.retries.Forget(id)
		e.queues.Forget(id)
		e.deps.Remove(id)
		delete(e.jobs, id)
		delete(e.jobQueue, id)
		removed = append(removed, id)
	}
	e.mu.Unlock()

	pruned := e.monitor.Prune()
	if len(removed) > 0 || pruned > 0 {
		e.logger.Info("cleanup", "jobs_removed", len(removed), "sla_records_pruned", pruned)
	}
	return len(removed)
}

// archiveLocked writes a terminal job to the archive store. Caller holds mu.
func (e *Engine) archiveLocked(job *model.Job) {
	if e.store == nil {
		return
	}
	if err := e.store.ArchiveJob(context.Background(), job); err != nil {
		e.logger.Error("archive job", "job_id", job.ID, "error", err)
	}
}

// persistAttemptsLocked writes a job's retry audit trail to the archive store
// before the in-memory record is dropped. Caller holds mu.
func (e *Engine) persistAttemptsLocked(jobID string) {
	if e.store == nil {
		return
	}
	for _, a := range e.retries.History(jobID) {
		if err := e.store.RecordAttempt(context.Background(), a); err != nil {
			e.logger.Error("archive retry attempt", "job_id", jobID, "error", err)
		}
	}
}

// promoteReadyLocked queues every BLOCKED job whose dependencies are now
// satisfied. Caller holds mu.
func (e *Engine) promoteReadyLocked() {
	completed := make(map[string]bool)
	for id, job := range e.jobs {
		if job.Status == model.StatusCompleted {
			completed[id] = true
		}
	}
	for _, jobID := range e.deps.ReadyJobs(completed) {
		job, ok := e.jobs[jobID]
		if !ok || job.Status != model.StatusBlocked {
			continue
		}
		if err := e.enqueueLocked(job); err != nil {
			e.logger.Error("promote ready job", "job_id", jobID, "error", err)
			continue
		}
		e.logger.Info("job unblocked", "job_id", jobID)
	}
}

// Counts summarizes job outcomes since engine start.
type Counts struct {
	Tracked   int `json:"tracked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	TimedOut  int `json:"timed_out"`
	Retrying  int `json:"retrying"`
}

// Counts returns outcome totals.
func (e *Engine) Counts() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Counts{
		Tracked:   len(e.jobs),
		Completed: e.completed,
		Failed:    e.failed,
		Cancelled: e.cancelled,
		TimedOut:  e.timedOut,
		Retrying:  len(e.retryAt),
	}
}
