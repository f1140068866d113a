package model

import "time"

// ErrorCategory classifies a failure for retry-policy selection.
type ErrorCategory string

const (
	CategoryTransient  ErrorCategory = "transient"
	CategoryPermanent  ErrorCategory = "permanent"
	CategoryResource   ErrorCategory = "resource"
	CategoryNetwork    ErrorCategory = "network"
	CategoryTimeout    ErrorCategory = "timeout"
	CategoryDependency ErrorCategory = "dependency"
	CategoryValidation ErrorCategory = "validation"
	CategorySystem     ErrorCategory = "system"
	CategoryUnknown    ErrorCategory = "unknown"
)

// Retryable returns true if failures in this category may be retried.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryPermanent, CategoryValidation:
		return false
	}
	return true
}

// Severity grades an error or alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorInfo captures a classified job failure.
type ErrorInfo struct {
	Type       string        `json:"type"`
	Message    string        `json:"message"`
	Category   ErrorCategory `json:"category"`
	Severity   Severity      `json:"severity"`
	JobID      string        `json:"job_id"`
	RetryCount int           `json:"retry_count"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// RetryDecision is the outcome of a should-retry evaluation.
type RetryDecision string

const (
	DecisionRetry RetryDecision = "retry"
	DecisionWait  RetryDecision = "wait"
	DecisionFail  RetryDecision = "fail"
)

// BackoffStrategy names the delay computation applied between attempts.
type BackoffStrategy string

const (
	BackoffImmediate   BackoffStrategy = "immediate"
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffRandom      BackoffStrategy = "random"
)

// RetryAttempt is an immutable audit record of one retry decision.
type RetryAttempt struct {
	JobID      string          `json:"job_id"`
	Attempt    int             `json:"attempt"`
	Strategy   BackoffStrategy `json:"strategy"`
	Delay      time.Duration   `json:"delay"`
	Category   ErrorCategory   `json:"category"`
	ErrorType  string          `json:"error_type"`
	Decision   RetryDecision   `json:"decision"`
	Succeeded  *bool           `json:"succeeded,omitempty"`
	DecidedAt  time.Time       `json:"decided_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}
