package retry

import (
	"testing"
	"time"

	"github.com/teoat/nexus378-sub000/internal/logging"
	"github.com/teoat/nexus378-sub000/pkg/model"
)

func newTestRetryManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(logging.Discard())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		errType string
		message string
		want    model.ErrorCategory
	}{
		{"TimeoutError", "anything", model.CategoryTimeout},
		{"ValidationError", "anything", model.CategoryValidation},
		{"MemoryError", "anything", model.CategoryResource},
		{"", "connection refused by peer", model.CategoryNetwork},
		{"", "request timed out after 30s", model.CategoryTimeout},
		{"", "input is invalid: missing field", model.CategoryValidation},
		{"", "service unavailable, try later", model.CategoryTransient},
		{"", "no space left on device", model.CategoryResource},
		{"", "upstream dependency missing", model.CategoryDependency},
		{"", "internal error: panic recovered", model.CategorySystem},
		{"", "something nobody has seen before", model.CategoryUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.errType, tt.message); got != tt.want {
			t.Errorf("Classify(%q, %q) = %q, want %q", tt.errType, tt.message, got, tt.want)
		}
	}
}

func TestClassify_OverrideBeatsKeywords(t *testing.T) {
	// The exact-type override wins even when the message matches a
	// different keyword.
	if got := Classify("ValidationError", "connection refused"); got != model.CategoryValidation {
		t.Errorf("override lost to keyword: got %q", got)
	}
}

func TestShouldRetry(t *testing.T) {
	m := newTestRetryManager(t)
	job := model.NewJob("work", model.PriorityMedium)
	job.RetryPolicy.MaxRetries = 3

	transient := m.ClassifyError(job.ID, job.RetryCount, "", "temporary failure")
	if got := m.ShouldRetry(job, transient); got == model.DecisionFail {
		t.Errorf("transient failure with retries left = %q, want retry/wait", got)
	}

	permanent := m.ClassifyError(job.ID, job.RetryCount, "", "unauthorized access")
	if got := m.ShouldRetry(job, permanent); got != model.DecisionFail {
		t.Errorf("permanent failure = %q, want fail", got)
	}

	job.RetryCount = 3
	if got := m.ShouldRetry(job, transient); got != model.DecisionFail {
		t.Errorf("exhausted retries = %q, want fail", got)
	}
}

func TestShouldRetry_PolicyRestrictions(t *testing.T) {
	m := newTestRetryManager(t)
	job := model.NewJob("work", model.PriorityMedium)
	job.RetryPolicy.RetryOnExceptions = []string{"TimeoutError"}

	match := m.ClassifyError(job.ID, 0, "TimeoutError", "deadline exceeded")
	if got := m.ShouldRetry(job, match); got == model.DecisionFail {
		t.Errorf("matching exception type = %q, want retry/wait", got)
	}

	other := m.ClassifyError(job.ID, 0, "ConnectionError", "connection reset")
	if got := m.ShouldRetry(job, other); got != model.DecisionFail {
		t.Errorf("non-matching exception type = %q, want fail", got)
	}
}

func TestDelay_ExponentialBackoff(t *testing.T) {
	m := newTestRetryManager(t)
	job := model.NewJob("work", model.PriorityMedium)
	job.RetryPolicy = model.RetryPolicy{
		MaxRetries:        10,
		RetryDelay:        5 * time.Second,
		BackoffMultiplier: 2,
		MaxRetryDelay:     60 * time.Second,
	}
	info := m.ClassifyError(job.ID, 0, "", "temporary failure") // transient → exponential

	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second}
	for attempt, w := range want {
		job.RetryCount = attempt
		got, strategy := m.Delay(job, info)
		if strategy != model.BackoffExponential {
			t.Fatalf("strategy = %q, want exponential", strategy)
		}
		if got != w {
			t.Errorf("attempt %d delay = %v, want %v", attempt, got, w)
		}
	}
}

func TestDelay_LinearForTimeout(t *testing.T) {
	m := newTestRetryManager(t)
	job := model.NewJob("work", model.PriorityMedium)
	job.RetryPolicy.RetryDelay = 3 * time.Second
	job.RetryPolicy.MaxRetryDelay = time.Minute
	info := m.ClassifyError(job.ID, 0, "TimeoutError", "timed out")

	job.RetryCount = 2
	got, strategy := m.Delay(job, info)
	if strategy != model.BackoffLinear {
		t.Fatalf("strategy = %q, want linear", strategy)
	}
	if got != 9*time.Second {
		t.Errorf("linear delay at attempt 2 = %v, want 9s", got)
	}
}

func TestDelay_FixedForResource(t *testing.T) {
	m := newTestRetryManager(t)
	job := model.NewJob("work", model.PriorityMedium)
	job.RetryPolicy.RetryDelay = 7 * time.Second
	job.RetryCount = 4
	info := m.ClassifyError(job.ID, 4, "MemoryError", "out of memory")

	got, strategy := m.Delay(job, info)
	if strategy != model.BackoffFixed {
		t.Fatalf("strategy = %q, want fixed", strategy)
	}
	if got != 7*time.Second {
		t.Errorf("fixed delay = %v, want 7s", got)
	}
}

func TestDelay_RandomJitterBounds(t *testing.T) {
	m := newTestRetryManager(t)
	policy := model.RetryPolicy{RetryDelay: 10 * time.Second, BackoffMultiplier: 2}

	for i := 0; i < 50; i++ {
		d := m.delayFor(model.BackoffRandom, policy, 1)
		// exponential base at attempt 1 is 20s; jitter ∈ [0.5, 1.5)
		if d < 10*time.Second || d >= 30*time.Second {
			t.Fatalf("jittered delay %v outside [10s, 30s)", d)
		}
	}
}

func TestRecordAndResolveAttempts(t *testing.T) {
	m := newTestRetryManager(t)
	info := m.ClassifyError("job_1", 0, "", "temporary failure")

	m.RecordAttempt(info, model.DecisionWait, model.BackoffExponential, 5*time.Second)
	m.ResolveAttempt("job_1", true)

	history := m.History("job_1")
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].Succeeded == nil || !*history[0].Succeeded {
		t.Error("attempt not marked succeeded")
	}

	metrics := m.Metrics()
	if metrics.TotalRetries != 1 || metrics.SuccessfulRetries != 1 {
		t.Errorf("metrics = %+v", metrics)
	}
	if metrics.SuccessRate != 1.0 {
		t.Errorf("success rate = %v, want 1.0", metrics.SuccessRate)
	}
	if metrics.AverageDelay != 5*time.Second {
		t.Errorf("average delay = %v, want 5s", metrics.AverageDelay)
	}
}

func TestForget_DropsHistoryAndTypeBuffers(t *testing.T) {
	m := newTestRetryManager(t)

	for i := 0; i < 5; i++ {
		info := m.ClassifyError("job_gone", i, "ConnectionError", "connection reset")
		m.RecordAttempt(info, model.DecisionWait, model.BackoffExponential, time.Second)
	}
	info := m.ClassifyError("job_kept", 0, "ConnectionError", "connection reset")
	m.RecordAttempt(info, model.DecisionWait, model.BackoffExponential, time.Second)
	m.ResolveAttempt("job_kept", true)

	m.Forget("job_gone")

	if history := m.History("job_gone"); len(history) != 0 {
		t.Errorf("history = %d attempts after Forget, want 0", len(history))
	}
	if history := m.History("job_kept"); len(history) != 1 {
		t.Errorf("other job's history = %d attempts, want 1", len(history))
	}
	// The forgotten job's entries leave pattern analysis too: one remaining
	// occurrence is below the reporting threshold.
	if patterns := m.AnalyzePatterns(); len(patterns) != 0 {
		t.Errorf("patterns after Forget = %v, want none", patterns)
	}
	// Aggregate counters keep their totals.
	if metrics := m.Metrics(); metrics.TotalRetries != 6 {
		t.Errorf("total retries = %d, want 6", metrics.TotalRetries)
	}
}

func TestAnalyzePatterns(t *testing.T) {
	m := newTestRetryManager(t)

	// Below the occurrence threshold: no pattern reported.
	for i := 0; i < 3; i++ {
		info := m.ClassifyError("job_a", i, "ConnectionError", "connection reset")
		m.RecordAttempt(info, model.DecisionWait, model.BackoffExponential, time.Second)
	}
	if patterns := m.AnalyzePatterns(); len(patterns) != 0 {
		t.Errorf("patterns below threshold = %v, want none", patterns)
	}

	// Cross the threshold with mostly-failing retries.
	for i := 0; i < 5; i++ {
		info := m.ClassifyError("job_b", i, "ConnectionError", "connection reset")
		m.RecordAttempt(info, model.DecisionWait, model.BackoffExponential, time.Second)
		m.ResolveAttempt("job_b", i == 0)
	}

	patterns := m.AnalyzePatterns()
	p, ok := patterns["ConnectionError"]
	if !ok {
		t.Fatal("no pattern for ConnectionError past threshold")
	}
	if p.Occurrences != 8 {
		t.Errorf("occurrences = %d, want 8", p.Occurrences)
	}
	if p.SuccessRate >= 0.3 {
		t.Errorf("success rate = %v, want < 0.3", p.SuccessRate)
	}
}

func TestRecommendations(t *testing.T) {
	m := newTestRetryManager(t)

	perm := m.ClassifyError("job_1", 0, "", "forbidden by policy")
	recs := m.Recommendations(perm)
	if len(recs) == 0 {
		t.Fatal("no recommendations for permanent error")
	}

	unknown := m.ClassifyError("job_2", 0, "", "novel mystery")
	recs = m.Recommendations(unknown)
	if len(recs) != 1 {
		t.Errorf("unknown error recommendations = %v, want the default one", recs)
	}
}
