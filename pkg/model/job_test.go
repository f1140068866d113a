package model

import (
	"errors"
	"testing"
	"time"
)

func TestNewJob(t *testing.T) {
	job := NewJob("ingest", PriorityHigh)

	if job.ID == "" {
		t.Fatal("NewJob assigned empty ID")
	}
	if job.Status != StatusPending {
		t.Errorf("Status = %q, want %q", job.Status, StatusPending)
	}
	if job.RetryPolicy.MaxRetries != 3 {
		t.Errorf("default MaxRetries = %d, want 3", job.RetryPolicy.MaxRetries)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Error("timestamps not stamped")
	}
}

func TestJob_UpdateStatus_StampsTimestamps(t *testing.T) {
	job := NewJob("ingest", PriorityMedium)

	mustUpdate(t, job, StatusQueued)
	mustUpdate(t, job, StatusRunning)
	if job.StartedAt == nil {
		t.Fatal("StartedAt not stamped on RUNNING")
	}
	mustUpdate(t, job, StatusCompleted)
	if job.CompletedAt == nil {
		t.Fatal("CompletedAt not stamped on COMPLETED")
	}
}

func TestJob_UpdateStatus_RejectsInvalid(t *testing.T) {
	job := NewJob("ingest", PriorityMedium)

	err := job.UpdateStatus(StatusCompleted)
	if err == nil {
		t.Fatal("PENDING → COMPLETED accepted, want error")
	}
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("error type = %T, want *InvalidTransitionError", err)
	}
	if job.Status != StatusPending {
		t.Errorf("status mutated on rejected transition: %q", job.Status)
	}
}

func TestJob_UpdateStatus_RetryClearsRunTimestamps(t *testing.T) {
	job := NewJob("ingest", PriorityMedium)
	mustUpdate(t, job, StatusQueued)
	mustUpdate(t, job, StatusRunning)
	mustUpdate(t, job, StatusFailed)
	mustUpdate(t, job, StatusRetrying)

	if job.StartedAt != nil || job.CompletedAt != nil {
		t.Error("RETRYING should clear StartedAt and CompletedAt")
	}
}

func TestJob_AddDependency(t *testing.T) {
	job := NewJob("ingest", PriorityMedium)
	dep := Dependency{TargetJobID: "job_x", Type: DependencyRequired}

	if err := job.AddDependency(dep); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}
	if err := job.AddDependency(dep); err == nil {
		t.Error("duplicate dependency accepted")
	}
	if err := job.AddDependency(Dependency{TargetJobID: job.ID, Type: DependencyRequired}); err == nil {
		t.Error("self-dependency accepted")
	}
}

func TestJob_RemoveDependency(t *testing.T) {
	job := NewJob("ingest", PriorityMedium)
	job.Dependencies = []Dependency{
		{TargetJobID: "a", Type: DependencyRequired},
		{TargetJobID: "b", Type: DependencyOptional},
	}

	if !job.RemoveDependency("a") {
		t.Error("RemoveDependency(a) = false, want true")
	}
	if job.RemoveDependency("missing") {
		t.Error("RemoveDependency(missing) = true, want false")
	}
	if len(job.Dependencies) != 1 || job.Dependencies[0].TargetJobID != "b" {
		t.Errorf("dependencies after removal = %+v", job.Dependencies)
	}
}

func TestJob_PriorityScore_Monotonic(t *testing.T) {
	now := time.Now().UTC()

	higher := NewJob("a", PriorityHigh)
	lower := NewJob("a", PriorityLow)
	if higher.PriorityScore(now) <= lower.PriorityScore(now) {
		t.Error("higher priority should score above lower priority")
	}

	fresh := NewJob("a", PriorityMedium)
	aged := NewJob("a", PriorityMedium)
	aged.CreatedAt = now.Add(-10 * time.Hour)
	if aged.PriorityScore(now) <= fresh.PriorityScore(now) {
		t.Error("older job should score above fresh job of same priority")
	}

	retried := NewJob("a", PriorityMedium)
	retried.CreatedAt = fresh.CreatedAt
	retried.RetryCount = 2
	if retried.PriorityScore(now) <= fresh.PriorityScore(now) {
		t.Error("retried job should score above unretried job of same priority")
	}
}

func mustUpdate(t *testing.T, job *Job, next JobStatus) {
	t.Helper()
	if err := job.UpdateStatus(next); err != nil {
		t.Fatalf("UpdateStatus(%s): %v", next, err)
	}
}
