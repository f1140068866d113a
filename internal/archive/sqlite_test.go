package archive

import (
	"context"
	"testing"
	"time"

	"github.com/teoat/nexus378-sub000/internal/logging"
	"github.com/teoat/nexus378-sub000/pkg/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(":memory:", logging.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func terminalJob(t *testing.T, id string, status model.JobStatus) *model.Job {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	started := now.Add(time.Second)
	completed := now.Add(5 * time.Second)
	return &model.Job{
		ID:            id,
		Type:          "evidence_processing",
		Priority:      model.PriorityHigh,
		Status:        status,
		RetryCount:    2,
		EstimatedCost: 12.5,
		Dependencies: []model.Dependency{
			{TargetJobID: "job_other", Type: model.DependencyRequired},
		},
		Metadata:    map[string]string{"case": "378"},
		CreatedAt:   now,
		StartedAt:   &started,
		CompletedAt: &completed,
	}
}

func TestArchiveAndGetJob(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	job := terminalJob(t, "job_arch-1", model.StatusCompleted)
	if err := st.ArchiveJob(ctx, job); err != nil {
		t.Fatalf("ArchiveJob: %v", err)
	}

	got, err := st.GetJob(ctx, "job_arch-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got == nil {
		t.Fatal("GetJob returned nil")
	}
	if got.Job.Type != "evidence_processing" || got.Job.Status != model.StatusCompleted {
		t.Errorf("job = %+v", got.Job)
	}
	if got.Job.RetryCount != 2 || got.Job.EstimatedCost != 12.5 {
		t.Errorf("retry/cost = %d/%.1f", got.Job.RetryCount, got.Job.EstimatedCost)
	}
	if len(got.Job.Dependencies) != 1 || got.Job.Dependencies[0].TargetJobID != "job_other" {
		t.Errorf("dependencies = %+v", got.Job.Dependencies)
	}
	if got.Job.Metadata["case"] != "378" {
		t.Errorf("metadata = %v", got.Job.Metadata)
	}
	if !got.Job.CreatedAt.Equal(job.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.Job.CreatedAt, job.CreatedAt)
	}
	if got.Job.StartedAt == nil || !got.Job.StartedAt.Equal(*job.StartedAt) {
		t.Errorf("started_at = %v", got.Job.StartedAt)
	}
	if got.ArchivedAt.IsZero() {
		t.Error("archived_at not set")
	}
}

func TestArchiveJob_RejectsNonTerminal(t *testing.T) {
	st := testStore(t)
	job := terminalJob(t, "job_arch-2", model.StatusCompleted)
	job.Status = model.StatusRunning
	if err := st.ArchiveJob(context.Background(), job); err == nil {
		t.Fatal("expected error for non-terminal job")
	}
}

func TestGetJob_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetJob(context.Background(), "job_missing")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestListJobs_FilterAndPagination(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	statuses := []model.JobStatus{
		model.StatusCompleted, model.StatusCompleted, model.StatusFailed,
	}
	for i, status := range statuses {
		job := terminalJob(t, "job_list-"+string(rune('a'+i)), status)
		if err := st.ArchiveJob(ctx, job); err != nil {
			t.Fatalf("ArchiveJob: %v", err)
		}
	}

	all, total, err := st.ListJobs(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Errorf("all = %d/%d, want 3/3", len(all), total)
	}

	failed, total, err := st.ListJobs(ctx, model.StatusFailed, 10, 0)
	if err != nil {
		t.Fatalf("ListJobs(failed): %v", err)
	}
	if total != 1 || len(failed) != 1 || failed[0].Job.Status != model.StatusFailed {
		t.Errorf("failed = %d/%d", len(failed), total)
	}

	page, total, err := st.ListJobs(ctx, "", 2, 2)
	if err != nil {
		t.Fatalf("ListJobs(page): %v", err)
	}
	if total != 3 || len(page) != 1 {
		t.Errorf("page = %d/%d, want 1/3", len(page), total)
	}
}

func TestRecordAndListAttempts(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	ok := true
	attempts := []model.RetryAttempt{
		{
			JobID: "job_r", Attempt: 1, Strategy: model.BackoffExponential,
			Delay: 5 * time.Second, Category: model.CategoryNetwork,
			ErrorType: "ConnectionError", Decision: model.DecisionWait,
			DecidedAt: time.Now().UTC().Truncate(time.Millisecond),
		},
		{
			JobID: "job_r", Attempt: 2, Strategy: model.BackoffExponential,
			Delay: 10 * time.Second, Category: model.CategoryNetwork,
			ErrorType: "ConnectionError", Decision: model.DecisionWait, Succeeded: &ok,
			DecidedAt: time.Now().UTC().Truncate(time.Millisecond),
		},
	}
	for _, a := range attempts {
		if err := st.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	got, err := st.ListAttempts(ctx, "job_r")
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("attempts = %d, want 2", len(got))
	}
	if got[0].Attempt != 1 || got[1].Attempt != 2 {
		t.Errorf("order = %d,%d", got[0].Attempt, got[1].Attempt)
	}
	if got[1].Delay != 10*time.Second {
		t.Errorf("delay = %v, want 10s", got[1].Delay)
	}
	if got[0].Succeeded != nil {
		t.Error("attempt 1 should have nil Succeeded")
	}
	if got[1].Succeeded == nil || !*got[1].Succeeded {
		t.Error("attempt 2 should have Succeeded=true")
	}
}

func TestRecordAndListViolations(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	violations := []model.SLAViolation{
		{
			ID: "viol_1", SLAID: "sla_a", Metric: model.MetricSuccessRate,
			Value: 85, Target: 95, Status: model.SLAViolated,
			Severity: model.SeverityHigh, OccurredAt: now.Add(-2 * time.Hour),
		},
		{
			ID: "viol_2", SLAID: "sla_a", Metric: model.MetricSuccessRate,
			Value: 70, Target: 95, Status: model.SLACritical,
			Severity: model.SeverityCritical, OccurredAt: now,
		},
		{
			ID: "viol_3", SLAID: "sla_b", Metric: model.MetricErrorRate,
			Value: 12, Target: 5, Status: model.SLAViolated,
			Severity: model.SeverityHigh, OccurredAt: now,
		},
	}
	for _, v := range violations {
		if err := st.RecordViolation(ctx, v); err != nil {
			t.Fatalf("RecordViolation: %v", err)
		}
	}

	got, err := st.ListViolations(ctx, "sla_a", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListViolations: %v", err)
	}
	if len(got) != 1 || got[0].ID != "viol_2" {
		t.Errorf("got = %+v, want only viol_2", got)
	}

	all, err := st.ListViolations(ctx, "", now.Add(-3*time.Hour))
	if err != nil {
		t.Fatalf("ListViolations(all): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}
	if all[0].ID != "viol_1" {
		t.Errorf("oldest first, got %s", all[0].ID)
	}
}
