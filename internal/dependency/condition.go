package dependency

import (
	"fmt"
	"strings"
	"time"

	"github.com/teoat/nexus378-sub000/pkg/model"
)

// ConditionKind enumerates the supported conditional-dependency expressions.
// Free-form evaluation is deliberately not supported; unknown kinds are
// rejected at insertion time.
type ConditionKind string

const (
	CondAlways    ConditionKind = "always"
	CondNever     ConditionKind = "never"
	CondJobStatus ConditionKind = "job_status"
	CondTimeBased ConditionKind = "time_based"
)

// Condition is a parsed conditional-dependency expression.
//
// Syntax:
//
//	always
//	never
//	job_status:<job_id>=<status>
//	time_based:after=<RFC3339>
type Condition struct {
	Kind   ConditionKind
	JobID  string
	Status model.JobStatus
	After  time.Time
}

// ParseCondition parses expr into a Condition.
func ParseCondition(expr string) (Condition, error) {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "" || expr == string(CondAlways):
		return Condition{Kind: CondAlways}, nil
	case expr == string(CondNever):
		return Condition{Kind: CondNever}, nil
	case strings.HasPrefix(expr, string(CondJobStatus)+":"):
		rest := strings.TrimPrefix(expr, string(CondJobStatus)+":")
		jobID, status, ok := strings.Cut(rest, "=")
		if !ok || jobID == "" || status == "" {
			return Condition{}, fmt.Errorf("malformed job_status condition %q", expr)
		}
		return Condition{Kind: CondJobStatus, JobID: jobID, Status: model.JobStatus(status)}, nil
	case strings.HasPrefix(expr, string(CondTimeBased)+":"):
		rest := strings.TrimPrefix(expr, string(CondTimeBased)+":")
		rule, value, ok := strings.Cut(rest, "=")
		if !ok || rule != "after" {
			return Condition{}, fmt.Errorf("malformed time_based condition %q", expr)
		}
		after, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return Condition{}, fmt.Errorf("time_based condition %q: %w", expr, err)
		}
		return Condition{Kind: CondTimeBased, After: after}, nil
	}
	return Condition{}, fmt.Errorf("unknown condition kind in %q", expr)
}

// Evaluate returns whether the condition currently holds. statusOf reports the
// last-known status of a job, with ok=false for unknown jobs.
func (c Condition) Evaluate(now time.Time, statusOf func(id string) (model.JobStatus, bool)) bool {
	switch c.Kind {
	case CondAlways:
		return true
	case CondNever:
		return false
	case CondJobStatus:
		status, ok := statusOf(c.JobID)
		return ok && status == c.Status
	case CondTimeBased:
		return now.After(c.After)
	}
	return false
}
