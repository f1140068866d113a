package model

import "testing"

func TestJobStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusQueued, false},
		{StatusAssigned, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
		{StatusTimeout, true},
		{StatusRetrying, false},
		{StatusBlocked, false},
		{StatusSkipped, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("JobStatus(%q).IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  JobStatus
		to    JobStatus
		valid bool
	}{
		// Valid transitions
		{StatusPending, StatusQueued, true},
		{StatusQueued, StatusAssigned, true},
		{StatusQueued, StatusRunning, true},
		{StatusAssigned, StatusRunning, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusTimeout, true},
		{StatusFailed, StatusRetrying, true},
		{StatusTimeout, StatusRetrying, true},
		{StatusRetrying, StatusQueued, true},
		{StatusRetrying, StatusFailed, true},
		{StatusPending, StatusCancelled, true},
		{StatusRunning, StatusCancelled, true},
		{StatusBlocked, StatusQueued, true},

		// Invalid transitions
		{StatusPending, StatusRunning, false},
		{StatusPending, StatusCompleted, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCancelled, StatusQueued, false},
		{StatusSkipped, StatusPending, false},
		{StatusRunning, StatusPending, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("JobStatus(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestPriority_Ordering(t *testing.T) {
	for i := 0; i < len(Priorities)-1; i++ {
		higher, lower := Priorities[i], Priorities[i+1]
		if !higher.Outranks(lower) {
			t.Errorf("%s should outrank %s", higher, lower)
		}
		if lower.Outranks(higher) {
			t.Errorf("%s should not outrank %s", lower, higher)
		}
	}
}

func TestPriority_WeightUnknown(t *testing.T) {
	if got := Priority("bogus").Weight(); got != PriorityMedium.Weight() {
		t.Errorf("unknown priority weight = %v, want medium weight %v", got, PriorityMedium.Weight())
	}
}
