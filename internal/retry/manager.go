package retry

import (
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/teoat/nexus378-sub000/pkg/model"
)

// Manager decides, for a failed job, whether and when to retry, and keeps the
// audit trail of every decision.
type Manager struct {
	mu      sync.Mutex
	logger  *slog.Logger
	history map[string][]*model.RetryAttempt // by job ID
	byType  map[string][]*model.RetryAttempt // by error type, for pattern analysis

	totalRetries      int
	successfulRetries int
	failedRetries     int
	totalDelay        time.Duration
}

// NewManager creates an empty retry manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:  logger.With("component", "retry"),
		history: make(map[string][]*model.RetryAttempt),
		byType:  make(map[string][]*model.RetryAttempt),
	}
}

// ClassifyError builds an ErrorInfo for a job failure.
func (m *Manager) ClassifyError(jobID string, retryCount int, errType, message string) model.ErrorInfo {
	category := Classify(errType, message)
	return model.ErrorInfo{
		Type:       errType,
		Message:    message,
		Category:   category,
		Severity:   SeverityFor(category),
		JobID:      jobID,
		RetryCount: retryCount,
		OccurredAt: time.Now().UTC(),
	}
}

// ShouldRetry applies the job's policy to the classified failure.
// FAIL when retries are exhausted, the category is non-retryable, or the
// policy restricts retryable types/statuses and this error matches none.
// WAIT when a retry is due after a computed delay; RETRY for immediate.
func (m *Manager) ShouldRetry(job *model.Job, info model.ErrorInfo) model.RetryDecision {
	policy := job.RetryPolicy
	if job.RetryCount >= policy.MaxRetries {
		return model.DecisionFail
	}
	if !info.Category.Retryable() {
		return model.DecisionFail
	}
	if len(policy.RetryOnExceptions) > 0 && !containsString(policy.RetryOnExceptions, info.Type) {
		return model.DecisionFail
	}
	if len(policy.RetryOnStatuses) > 0 && !containsStatus(policy.RetryOnStatuses, job.Status) {
		return model.DecisionFail
	}
	if delay, _ := m.Delay(job, info); delay > 0 {
		return model.DecisionWait
	}
	return model.DecisionRetry
}

// Delay computes the backoff before the next attempt. The strategy follows
// the error category: transient and network failures back off exponentially,
// resource pressure takes a fixed pause, timeouts grow linearly, everything
// else is fixed.
func (m *Manager) Delay(job *model.Job, info model.ErrorInfo) (time.Duration, model.BackoffStrategy) {
	strategy := strategyFor(info.Category)
	return m.delayFor(strategy, job.RetryPolicy, job.RetryCount), strategy
}

func strategyFor(category model.ErrorCategory) model.BackoffStrategy {
	switch category {
	case model.CategoryTransient, model.CategoryNetwork:
		return model.BackoffExponential
	case model.CategoryResource:
		return model.BackoffFixed
	case model.CategoryTimeout:
		return model.BackoffLinear
	default:
		return model.BackoffFixed
	}
}

// delayFor computes the delay for one strategy at the given attempt count.
func (m *Manager) delayFor(strategy model.BackoffStrategy, policy model.RetryPolicy, retryCount int) time.Duration {
	base := policy.RetryDelay
	max := policy.MaxRetryDelay

	var d time.Duration
	switch strategy {
	case model.BackoffImmediate:
		return 0
	case model.BackoffFixed:
		d = base
	case model.BackoffExponential:
		multiplier := policy.BackoffMultiplier
		if multiplier <= 0 {
			multiplier = 2
		}
		d = time.Duration(float64(base) * math.Pow(multiplier, float64(retryCount)))
	case model.BackoffLinear:
		d = base * time.Duration(1+retryCount)
	case model.BackoffRandom:
		exp := m.delayFor(model.BackoffExponential, policy, retryCount)
		jitter := 0.5 + rand.Float64() // uniform [0.5, 1.5)
		d = time.Duration(float64(exp) * jitter)
	default:
		d = base
	}

	if max > 0 && d > max {
		d = max
	}
	return d
}

// RecordAttempt appends one retry decision to the audit trail.
func (m *Manager) RecordAttempt(info model.ErrorInfo, decision model.RetryDecision, strategy model.BackoffStrategy, delay time.Duration) *model.RetryAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempt := &model.RetryAttempt{
		JobID:     info.JobID,
		Attempt:   info.RetryCount + 1,
		Strategy:  strategy,
		Delay:     delay,
		Category:  info.Category,
		ErrorType: info.Type,
		Decision:  decision,
		DecidedAt: time.Now().UTC(),
	}
	m.history[info.JobID] = append(m.history[info.JobID], attempt)
	m.byType[info.Type] = append(m.byType[info.Type], attempt)

	if decision != model.DecisionFail {
		m.totalRetries++
		m.totalDelay += delay
	}
	return attempt
}

// ResolveAttempt records the outcome of a job's most recent retry.
func (m *Manager) ResolveAttempt(jobID string, succeeded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempts := m.history[jobID]
	for i := len(attempts) - 1; i >= 0; i-- {
		a := attempts[i]
		if a.Succeeded != nil || a.Decision == model.DecisionFail {
			continue
		}
		now := time.Now().UTC()
		a.Succeeded = &succeeded
		a.ResolvedAt = &now
		if succeeded {
			m.successfulRetries++
		} else {
			m.failedRetries++
		}
		return
	}
}

// Forget drops a job's audit trail, including its entries in the per-type
// analysis buffers. Retention cleanup calls this after the attempts are
// archived; the aggregate counters keep their totals.
func (m *Manager) Forget(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history[jobID]) == 0 {
		return
	}
	delete(m.history, jobID)
	for errType, attempts := range m.byType {
		kept := attempts[:0]
		for _, a := range attempts {
			if a.JobID != jobID {
				kept = append(kept, a)
			}
		}
		if len(kept) == 0 {
			delete(m.byType, errType)
		} else {
			m.byType[errType] = kept
		}
	}
}

// History returns the audit trail for one job, oldest first.
func (m *Manager) History(jobID string) []model.RetryAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.RetryAttempt, 0, len(m.history[jobID]))
	for _, a := range m.history[jobID] {
		out = append(out, *a)
	}
	return out
}

// Metrics summarizes retry activity since start.
type Metrics struct {
	TotalRetries      int           `json:"total_retries"`
	SuccessfulRetries int           `json:"successful_retries"`
	FailedRetries     int           `json:"failed_retries"`
	SuccessRate       float64       `json:"success_rate"`
	AverageDelay      time.Duration `json:"average_delay"`
}

// Metrics returns current retry counters.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Metrics{
		TotalRetries:      m.totalRetries,
		SuccessfulRetries: m.successfulRetries,
		FailedRetries:     m.failedRetries,
	}
	if resolved := m.successfulRetries + m.failedRetries; resolved > 0 {
		out.SuccessRate = float64(m.successfulRetries) / float64(resolved)
	}
	if m.totalRetries > 0 {
		out.AverageDelay = m.totalDelay / time.Duration(m.totalRetries)
	}
	return out
}

// Trend describes the short-term direction of an error type's frequency.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Pattern is the analyzed history of one error type.
type Pattern struct {
	ErrorType   string  `json:"error_type"`
	Occurrences int     `json:"occurrences"`
	SuccessRate float64 `json:"success_rate"`
	// Frequency is occurrences per hour over the observed span.
	Frequency float64 `json:"frequency"`
	Trend     Trend   `json:"trend"`
}

// patternMinOccurrences is the sample size below which no pattern is reported.
const patternMinOccurrences = 5

// AnalyzePatterns computes per-error-type statistics for types with enough
// history: retry success rate, frequency, and a short-term trend comparing
// the recent window against the overall rate.
func (m *Manager) AnalyzePatterns() map[string]Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	patterns := make(map[string]Pattern)

	for errType, attempts := range m.byType {
		if len(attempts) < patternMinOccurrences {
			continue
		}

		resolved, succeeded := 0, 0
		recent := 0
		first := attempts[0].DecidedAt
		for _, a := range attempts {
			if a.Succeeded != nil {
				resolved++
				if *a.Succeeded {
					succeeded++
				}
			}
			if now.Sub(a.DecidedAt) <= 10*time.Minute {
				recent++
			}
		}

		span := now.Sub(first)
		if span < time.Minute {
			span = time.Minute
		}
		overallPerMin := float64(len(attempts)) / span.Minutes()
		recentPerMin := float64(recent) / 10.0

		trend := TrendStable
		switch {
		case recentPerMin > overallPerMin*1.2:
			trend = TrendIncreasing
		case recentPerMin < overallPerMin*0.8:
			trend = TrendDecreasing
		}

		p := Pattern{
			ErrorType:   errType,
			Occurrences: len(attempts),
			Frequency:   overallPerMin * 60,
			Trend:       trend,
		}
		if resolved > 0 {
			p.SuccessRate = float64(succeeded) / float64(resolved)
		}
		patterns[errType] = p
	}
	return patterns
}

// Recommendations produces operator guidance for a failure, based on its
// category and the analyzed history of its error type.
func (m *Manager) Recommendations(info model.ErrorInfo) []string {
	patterns := m.AnalyzePatterns()

	var recs []string
	switch info.Category {
	case model.CategoryPermanent, model.CategoryValidation:
		recs = append(recs, "error is non-retryable; fix the job definition or inputs before resubmitting")
	case model.CategoryResource:
		recs = append(recs, "resource pressure detected; review resource requirements or expand worker capacity")
	case model.CategoryNetwork:
		recs = append(recs, "network failure; verify connectivity to downstream collaborators")
	case model.CategoryDependency:
		recs = append(recs, "dependency failure; inspect upstream jobs before retrying")
	}

	if p, ok := patterns[info.Type]; ok {
		if p.SuccessRate < 0.3 {
			recs = append(recs, "retry success rate for this error type is low; consider alternative handling")
		}
		if p.Trend == TrendIncreasing {
			recs = append(recs, "this error type is occurring more frequently; investigate a systemic cause")
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "no specific guidance; standard retry policy applies")
	}
	return recs
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsStatus(list []model.JobStatus, s model.JobStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
