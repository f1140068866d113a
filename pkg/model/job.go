package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DependencyType governs how a dependency's satisfaction is evaluated.
type DependencyType string

const (
	// DependencyRequired is satisfied only when the target completes.
	DependencyRequired DependencyType = "required"
	// DependencyOptional is satisfied when the target reaches any resolved
	// state, including skipped or cancelled.
	DependencyOptional DependencyType = "optional"
	// DependencyExclusive is satisfied while no peer holding an exclusive
	// edge to the same target is running.
	DependencyExclusive DependencyType = "exclusive"
	// DependencyConditional is satisfied when its condition expression holds.
	DependencyConditional DependencyType = "conditional"
	// DependencyTimeout is satisfied by completion or by elapsed time
	// exceeding the configured timeout.
	DependencyTimeout DependencyType = "timeout"
)

// Dependency is a must-run-before reference from one job to another.
type Dependency struct {
	TargetJobID string         `json:"target_job_id"`
	Type        DependencyType `json:"type"`
	Condition   string         `json:"condition,omitempty"`
	Timeout     time.Duration  `json:"timeout,omitempty"`
}

// RetryPolicy controls how a job's failures are retried.
type RetryPolicy struct {
	MaxRetries        int           `json:"max_retries"`
	RetryDelay        time.Duration `json:"retry_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	MaxRetryDelay     time.Duration `json:"max_retry_delay"`
	RetryOnStatuses   []JobStatus   `json:"retry_on_statuses,omitempty"`
	RetryOnExceptions []string      `json:"retry_on_exceptions,omitempty"`
}

// DefaultRetryPolicy returns sensible defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		RetryDelay:        5 * time.Second,
		BackoffMultiplier: 2.0,
		MaxRetryDelay:     5 * time.Minute,
	}
}

// TimeoutConfig bounds a job's time in flight. A zero Execution disables
// the timeout sweep for the job.
type TimeoutConfig struct {
	Execution time.Duration `json:"execution,omitempty"`
	Queueing  time.Duration `json:"queueing,omitempty"`
}

// Scoring coefficients for PriorityScore. Age and retries raise the score so
// starved or struggling jobs win ties against fresh work of equal priority.
const (
	priorityBoost = 1.0
	ageWeight     = 0.5
	retryWeight   = 2.0
)

// Job is a schedulable unit of work.
type Job struct {
	ID            string             `json:"id"`
	Type          string             `json:"type"`
	Priority      Priority           `json:"priority"`
	Status        JobStatus          `json:"status"`
	Dependencies  []Dependency       `json:"dependencies,omitempty"`
	RetryPolicy   RetryPolicy        `json:"retry_policy"`
	Timeout       TimeoutConfig      `json:"timeout"`
	Resources     map[string]float64 `json:"resources,omitempty"`
	RetryCount    int                `json:"retry_count"`
	Deadline      *time.Time         `json:"deadline,omitempty"`
	EstimatedCost float64            `json:"estimated_cost,omitempty"`
	Metadata      map[string]string  `json:"metadata,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a PENDING job with a fresh ID and default retry policy.
func NewJob(jobType string, priority Priority) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          "job_" + uuid.New().String(),
		Type:        jobType,
		Priority:    priority,
		Status:      StatusPending,
		RetryPolicy: DefaultRetryPolicy(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// UpdateStatus moves the job to next, stamping StartedAt/CompletedAt as
// appropriate. Returns InvalidTransitionError if the move is not allowed.
func (j *Job) UpdateStatus(next JobStatus) error {
	if j.Status == next {
		return nil
	}
	if !j.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{Entity: "job", ID: j.ID, From: j.Status.String(), To: next.String()}
	}

	now := time.Now().UTC()
	j.Status = next
	j.UpdatedAt = now

	switch {
	case next == StatusRunning && j.StartedAt == nil:
		j.StartedAt = &now
	case next.IsTerminal():
		j.CompletedAt = &now
	case next == StatusRetrying:
		// A retried job gets fresh run timestamps.
		j.StartedAt = nil
		j.CompletedAt = nil
	}
	return nil
}

// AddDependency appends dep to the job's dependency list.
// Duplicate targets of the same type are rejected.
func (j *Job) AddDependency(dep Dependency) error {
	if dep.TargetJobID == j.ID {
		return fmt.Errorf("job %s cannot depend on itself", j.ID)
	}
	for _, d := range j.Dependencies {
		if d.TargetJobID == dep.TargetJobID && d.Type == dep.Type {
			return fmt.Errorf("duplicate %s dependency on %s", dep.Type, dep.TargetJobID)
		}
	}
	j.Dependencies = append(j.Dependencies, dep)
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// RemoveDependency removes all dependencies on targetJobID.
// Returns true if any were removed.
func (j *Job) RemoveDependency(targetJobID string) bool {
	kept := j.Dependencies[:0]
	removed := false
	for _, d := range j.Dependencies {
		if d.TargetJobID == targetJobID {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	j.Dependencies = kept
	if removed {
		j.UpdatedAt = time.Now().UTC()
	}
	return removed
}

// PriorityScore computes the tie-breaking score at the given instant.
// It grows monotonically with priority weight, job age, and retry count.
func (j *Job) PriorityScore(now time.Time) float64 {
	ageHours := now.Sub(j.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return j.Priority.Weight()*priorityBoost + ageHours*ageWeight + float64(j.RetryCount)*retryWeight
}

// RetriesRemaining returns true if the job may be retried again under its policy.
func (j *Job) RetriesRemaining() bool {
	return j.RetryCount < j.RetryPolicy.MaxRetries
}
