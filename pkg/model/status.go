package model

// JobStatus represents the lifecycle state of a Job.
type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusQueued    JobStatus = "QUEUED"
	StatusAssigned  JobStatus = "ASSIGNED"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
	StatusCancelled JobStatus = "CANCELLED"
	StatusTimeout   JobStatus = "TIMEOUT"
	StatusRetrying  JobStatus = "RETRYING"
	StatusBlocked   JobStatus = "BLOCKED"
	StatusSkipped   JobStatus = "SKIPPED"
)

// String returns the string representation of the job status.
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the job is in a final state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout, StatusSkipped:
		return true
	}
	return false
}

// ValidJobTransitions defines the allowed status transitions for Jobs.
// CANCELLED is reachable from every non-terminal status.
var ValidJobTransitions = map[JobStatus][]JobStatus{
	StatusPending:  {StatusQueued, StatusBlocked, StatusSkipped, StatusFailed, StatusCancelled},
	StatusQueued:   {StatusAssigned, StatusRunning, StatusBlocked, StatusFailed, StatusCancelled},
	StatusAssigned: {StatusRunning, StatusQueued, StatusFailed, StatusCancelled},
	StatusRunning:  {StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled},
	StatusFailed:   {StatusRetrying},
	StatusTimeout:  {StatusRetrying},
	StatusRetrying: {StatusQueued, StatusFailed, StatusCancelled},
	StatusBlocked:  {StatusQueued, StatusPending, StatusFailed, StatusSkipped, StatusCancelled},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range ValidJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
