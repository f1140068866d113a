package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for queue operations.
var (
	ErrQueueFull     = errors.New("queue is full")
	ErrQueueInactive = errors.New("queue is not accepting jobs")
	ErrQueueNotFound = errors.New("queue not found")
	ErrJobNotFound   = errors.New("job not found")
	ErrSLANotFound   = errors.New("sla definition not found")
	ErrAlertNotFound = errors.New("alert not found")
)

// CycleError is returned when inserting dependencies would create a cycle.
type CycleError struct {
	JobID string
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving jobs: %s", strings.Join(e.Nodes, ", "))
}

// InvalidTransitionError is returned when a status transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// UnresolvedDependencyError is returned when a job is dispatched while a
// required dependency remains unsatisfied.
type UnresolvedDependencyError struct {
	JobID       string
	TargetJobID string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("job %s has unresolved required dependency on %s", e.JobID, e.TargetJobID)
}
