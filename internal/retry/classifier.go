package retry

import (
	"strings"

	"github.com/teoat/nexus378-sub000/pkg/model"
)

// typeOverrides maps exact error type names to categories. Overrides take
// precedence over keyword matching.
var typeOverrides = map[string]model.ErrorCategory{
	"TimeoutError":          model.CategoryTimeout,
	"ConnectionError":       model.CategoryNetwork,
	"ConnectionResetError":  model.CategoryNetwork,
	"BrokenPipeError":       model.CategoryNetwork,
	"MemoryError":           model.CategoryResource,
	"OSError":               model.CategorySystem,
	"PermissionError":       model.CategoryPermanent,
	"ValidationError":       model.CategoryValidation,
	"ValueError":            model.CategoryValidation,
	"DependencyError":       model.CategoryDependency,
	"NotImplementedError":   model.CategoryPermanent,
	"DeadlineExceededError": model.CategoryTimeout,
}

// keywordTable maps message/type substrings to categories. First match wins;
// order is most-specific first.
var keywordTable = []struct {
	keyword  string
	category model.ErrorCategory
}{
	{"deadline exceeded", model.CategoryTimeout},
	{"timed out", model.CategoryTimeout},
	{"timeout", model.CategoryTimeout},
	{"connection refused", model.CategoryNetwork},
	{"connection reset", model.CategoryNetwork},
	{"no route to host", model.CategoryNetwork},
	{"dns", model.CategoryNetwork},
	{"network", model.CategoryNetwork},
	{"unreachable", model.CategoryNetwork},
	{"out of memory", model.CategoryResource},
	{"disk full", model.CategoryResource},
	{"no space left", model.CategoryResource},
	{"too many open files", model.CategoryResource},
	{"resource exhausted", model.CategoryResource},
	{"quota", model.CategoryResource},
	{"rate limit", model.CategoryTransient},
	{"temporarily unavailable", model.CategoryTransient},
	{"temporary", model.CategoryTransient},
	{"try again", model.CategoryTransient},
	{"service unavailable", model.CategoryTransient},
	{"conflict", model.CategoryTransient},
	{"dependency", model.CategoryDependency},
	{"invalid", model.CategoryValidation},
	{"malformed", model.CategoryValidation},
	{"schema", model.CategoryValidation},
	{"validation", model.CategoryValidation},
	{"not found", model.CategoryPermanent},
	{"unauthorized", model.CategoryPermanent},
	{"forbidden", model.CategoryPermanent},
	{"unsupported", model.CategoryPermanent},
	{"not implemented", model.CategoryPermanent},
	{"panic", model.CategorySystem},
	{"internal error", model.CategorySystem},
	{"segfault", model.CategorySystem},
}

// Classify derives the error category from an exact-type override when one
// exists, falling back to keyword matching over the type and message.
func Classify(errType, message string) model.ErrorCategory {
	if cat, ok := typeOverrides[errType]; ok {
		return cat
	}
	haystack := strings.ToLower(errType + " " + message)
	for _, entry := range keywordTable {
		if strings.Contains(haystack, entry.keyword) {
			return entry.category
		}
	}
	return model.CategoryUnknown
}

// SeverityFor grades a category for alerting and audit purposes.
func SeverityFor(category model.ErrorCategory) model.Severity {
	switch category {
	case model.CategorySystem:
		return model.SeverityCritical
	case model.CategoryPermanent, model.CategoryDependency:
		return model.SeverityHigh
	case model.CategoryResource, model.CategoryTimeout:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}
