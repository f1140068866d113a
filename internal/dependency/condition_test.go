package dependency

import (
	"testing"
	"time"

	"github.com/teoat/nexus378-sub000/pkg/model"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		expr    string
		kind    ConditionKind
		wantErr bool
	}{
		{"always", CondAlways, false},
		{"", CondAlways, false},
		{"never", CondNever, false},
		{"job_status:job_1=COMPLETED", CondJobStatus, false},
		{"time_based:after=2026-01-02T15:04:05Z", CondTimeBased, false},
		{"job_status:missing_equals", "", true},
		{"job_status:=COMPLETED", "", true},
		{"time_based:before=2026-01-02T15:04:05Z", "", true},
		{"time_based:after=not-a-time", "", true},
		{"eval(os.system)", "", true},
	}
	for _, tt := range tests {
		cond, err := ParseCondition(tt.expr)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCondition(%q) accepted, want error", tt.expr)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCondition(%q): %v", tt.expr, err)
			continue
		}
		if cond.Kind != tt.kind {
			t.Errorf("ParseCondition(%q).Kind = %q, want %q", tt.expr, cond.Kind, tt.kind)
		}
	}
}

func TestCondition_Evaluate(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	statuses := map[string]model.JobStatus{"j1": model.StatusCompleted}
	statusOf := func(id string) (model.JobStatus, bool) {
		s, ok := statuses[id]
		return s, ok
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"always", true},
		{"never", false},
		{"job_status:j1=COMPLETED", true},
		{"job_status:j1=FAILED", false},
		{"job_status:unknown=COMPLETED", false},
		{"time_based:after=2026-01-01T00:00:00Z", true},
		{"time_based:after=2027-01-01T00:00:00Z", false},
	}
	for _, tt := range tests {
		cond, err := ParseCondition(tt.expr)
		if err != nil {
			t.Fatalf("ParseCondition(%q): %v", tt.expr, err)
		}
		if got := cond.Evaluate(now, statusOf); got != tt.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}
