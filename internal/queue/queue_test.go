package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/teoat/nexus378-sub000/internal/logging"
	"github.com/teoat/nexus378-sub000/pkg/model"
)

func newTestQueue(t *testing.T, cfg Config) *Queue {
	t.Helper()
	q, err := NewQueue("test", cfg, logging.Discard())
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	return q
}

func addJob(t *testing.T, q *Queue, id string, p model.Priority) *model.Job {
	t.Helper()
	job := model.NewJob("work", p)
	job.ID = id
	if err := q.AddJob(job); err != nil {
		t.Fatalf("AddJob(%s): %v", id, err)
	}
	return job
}

func drainOrder(q *Queue) []string {
	var order []string
	for {
		job := q.NextJob()
		if job == nil {
			return order
		}
		order = append(order, job.ID)
	}
}

func TestPriorityFirst_DequeueOrder(t *testing.T) {
	cfg := DefaultConfig()
	q := newTestQueue(t, cfg)

	addJob(t, q, "low", model.PriorityLow)
	addJob(t, q, "critical", model.PriorityCritical)
	addJob(t, q, "medium", model.PriorityMedium)

	got := drainOrder(q)
	want := []string{"critical", "medium", "low"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("dequeue order = %v, want %v", got, want)
		}
	}
}

func TestPriorityFirst_FIFOWithinBucket(t *testing.T) {
	q := newTestQueue(t, DefaultConfig())
	addJob(t, q, "first", model.PriorityMedium)
	addJob(t, q, "second", model.PriorityMedium)
	addJob(t, q, "third", model.PriorityMedium)

	got := drainOrder(q)
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bucket order = %v, want %v", got, want)
		}
	}
}

func TestFairSharing_ServesStarvedBuckets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyFairSharing
	cfg.FairShareQuantum = 100
	q := newTestQueue(t, cfg)

	for i := 0; i < 3; i++ {
		addJob(t, q, "high_"+string(rune('a'+i)), model.PriorityHigh)
		addJob(t, q, "low_"+string(rune('a'+i)), model.PriorityLow)
	}

	// With equal counters, buckets alternate rather than one bucket
	// monopolizing service.
	first := q.NextJob()
	second := q.NextJob()
	if first.Priority == second.Priority {
		t.Errorf("fair sharing served %s twice in a row from equal counters", first.Priority)
	}
}

func TestFairSharing_QuantumResetsCounters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyFairSharing
	cfg.FairShareQuantum = 2
	q := newTestQueue(t, cfg)

	addJob(t, q, "a", model.PriorityHigh)
	addJob(t, q, "b", model.PriorityHigh)
	addJob(t, q, "c", model.PriorityHigh)

	q.NextJob()
	q.NextJob() // quantum exhausted here
	if len(q.fairCounters) != 0 {
		t.Errorf("fair counters not reset after quantum: %v", q.fairCounters)
	}
}

func TestWeightedRoundRobin_RotatesWithinBucket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyWeightedRR
	q := newTestQueue(t, cfg)

	addJob(t, q, "a", model.PriorityMedium)
	addJob(t, q, "b", model.PriorityMedium)
	addJob(t, q, "c", model.PriorityMedium)

	// Persistent index: first pick at offset 0, second at offset 1 of the
	// remaining [b c], i.e. c.
	if job := q.NextJob(); job.ID != "a" {
		t.Fatalf("first pick = %s, want a", job.ID)
	}
	if job := q.NextJob(); job.ID != "c" {
		t.Fatalf("second pick = %s, want c (rotated index)", job.ID)
	}
}

func TestDeadlineAware_PicksNearestDeadline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyDeadlineAware
	q := newTestQueue(t, cfg)

	now := time.Now().UTC()
	soon := now.Add(10 * time.Minute)
	later := now.Add(2 * time.Hour)
	past := now.Add(-time.Minute)

	a := addJob(t, q, "later", model.PriorityHigh)
	a.Deadline = &later
	b := addJob(t, q, "soon", model.PriorityLow)
	b.Deadline = &soon
	c := addJob(t, q, "overdue", model.PriorityCritical)
	c.Deadline = &past

	// Nearest still-positive deadline wins regardless of priority; the
	// overdue job is not selectable by deadline and falls to later picks.
	if job := q.NextJob(); job.ID != "soon" {
		t.Errorf("first pick = %s, want soon", job.ID)
	}
}

func TestDeadlineAware_FallsBackToPriorityFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyDeadlineAware
	q := newTestQueue(t, cfg)

	addJob(t, q, "low", model.PriorityLow)
	addJob(t, q, "high", model.PriorityHigh)

	if job := q.NextJob(); job.ID != "high" {
		t.Errorf("fallback pick = %s, want high", job.ID)
	}
}

func TestCostAware_PicksCheapest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyCostAware
	q := newTestQueue(t, cfg)

	a := addJob(t, q, "pricey", model.PriorityCritical)
	a.EstimatedCost = 90
	b := addJob(t, q, "cheap", model.PriorityLow)
	b.EstimatedCost = 5

	if job := q.NextJob(); job.ID != "cheap" {
		t.Errorf("pick = %s, want cheap", job.ID)
	}
}

func TestHybrid_PrefersUrgentHighPriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyHybrid
	q := newTestQueue(t, cfg)

	deadline := time.Now().UTC().Add(5 * time.Minute)
	a := addJob(t, q, "urgent_critical", model.PriorityCritical)
	a.Deadline = &deadline
	b := addJob(t, q, "idle_batch", model.PriorityBatch)
	b.EstimatedCost = 50

	if job := q.NextJob(); job.ID != "urgent_critical" {
		t.Errorf("pick = %s, want urgent_critical", job.ID)
	}
}

func TestAddJob_FullQueue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 2
	q := newTestQueue(t, cfg)

	addJob(t, q, "a", model.PriorityMedium)
	addJob(t, q, "b", model.PriorityMedium)

	job := model.NewJob("work", model.PriorityMedium)
	err := q.AddJob(job)
	if !errors.Is(err, model.ErrQueueFull) {
		t.Fatalf("AddJob on full queue = %v, want ErrQueueFull", err)
	}
	if q.Status().State != StateFull {
		t.Errorf("queue state = %s, want FULL", q.Status().State)
	}

	// Draining one job reopens the queue.
	q.NextJob()
	if err := q.AddJob(job); err != nil {
		t.Errorf("AddJob after drain: %v", err)
	}
}

func TestPausedQueue_NoIntakeNoService(t *testing.T) {
	q := newTestQueue(t, DefaultConfig())
	addJob(t, q, "a", model.PriorityMedium)
	q.Pause()

	if err := q.AddJob(model.NewJob("work", model.PriorityMedium)); !errors.Is(err, model.ErrQueueInactive) {
		t.Errorf("paused AddJob = %v, want ErrQueueInactive", err)
	}
	if job := q.NextJob(); job != nil {
		t.Errorf("paused NextJob = %v, want nil", job.ID)
	}

	q.Resume()
	if job := q.NextJob(); job == nil || job.ID != "a" {
		t.Error("resume did not restore service")
	}
}

func TestDrainingQueue_ServesButRefusesIntake(t *testing.T) {
	q := newTestQueue(t, DefaultConfig())
	addJob(t, q, "a", model.PriorityMedium)
	q.Drain()

	if err := q.AddJob(model.NewJob("work", model.PriorityMedium)); !errors.Is(err, model.ErrQueueInactive) {
		t.Errorf("draining AddJob = %v, want ErrQueueInactive", err)
	}
	if job := q.NextJob(); job == nil || job.ID != "a" {
		t.Fatal("draining queue should continue serving")
	}
	if q.Status().State != StateStopped {
		t.Errorf("drained queue state = %s, want STOPPED", q.Status().State)
	}
}

func TestMarkLifecycle_UpdatesSetsAndAverages(t *testing.T) {
	q := newTestQueue(t, DefaultConfig())
	addJob(t, q, "a", model.PriorityMedium)

	job := q.NextJob()
	q.MarkProcessing(job.ID)
	if got := q.Status().Processing; got != 1 {
		t.Fatalf("processing = %d, want 1", got)
	}
	q.MarkCompleted(job.ID)

	st := q.Status()
	if st.Processing != 0 || st.Completed != 1 {
		t.Errorf("after completion: processing=%d completed=%d", st.Processing, st.Completed)
	}
	if st.AvgWaitTime < 0 || st.AvgProcessingTime < 0 {
		t.Errorf("negative averages: wait=%v processing=%v", st.AvgWaitTime, st.AvgProcessingTime)
	}
}

func TestForget_DropsFinishedBookkeeping(t *testing.T) {
	q := newTestQueue(t, DefaultConfig())
	addJob(t, q, "a", model.PriorityMedium)
	addJob(t, q, "b", model.PriorityMedium)

	q.MarkProcessing(q.NextJob().ID)
	q.MarkCompleted("a")
	q.MarkProcessing(q.NextJob().ID)
	q.MarkFailed("b")

	q.Forget("a")
	st := q.Status()
	if st.Completed != 0 {
		t.Errorf("completed = %d after Forget(a), want 0", st.Completed)
	}
	if st.Failed != 1 {
		t.Errorf("failed = %d before Forget(b), want 1", st.Failed)
	}
	q.Forget("b")
	if st := q.Status(); st.Failed != 0 {
		t.Errorf("failed = %d after Forget(b), want 0", st.Failed)
	}
}

func TestRemoveJob(t *testing.T) {
	q := newTestQueue(t, DefaultConfig())
	addJob(t, q, "a", model.PriorityMedium)

	if !q.RemoveJob("a") {
		t.Error("RemoveJob(a) = false, want true")
	}
	if q.RemoveJob("a") {
		t.Error("second RemoveJob(a) = true, want false")
	}
	if q.Size() != 0 {
		t.Errorf("size = %d after removal", q.Size())
	}
}

func TestEmptyQueue_NextJobNil(t *testing.T) {
	q := newTestQueue(t, DefaultConfig())
	if job := q.NextJob(); job != nil {
		t.Errorf("NextJob on empty queue = %v, want nil", job)
	}
}
