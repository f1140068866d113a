package model

// Priority orders jobs for scheduling. CRITICAL outranks everything;
// MAINTENANCE yields to all other work.
type Priority string

const (
	PriorityCritical    Priority = "critical"
	PriorityHigh        Priority = "high"
	PriorityMedium      Priority = "medium"
	PriorityLow         Priority = "low"
	PriorityBatch       Priority = "batch"
	PriorityMaintenance Priority = "maintenance"
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// Priorities lists all priority levels from highest to lowest.
var Priorities = []Priority{
	PriorityCritical,
	PriorityHigh,
	PriorityMedium,
	PriorityLow,
	PriorityBatch,
	PriorityMaintenance,
}

// defaultWeights are the base scheduling weights per priority level.
var defaultWeights = map[Priority]float64{
	PriorityCritical:    100,
	PriorityHigh:        80,
	PriorityMedium:      60,
	PriorityLow:         40,
	PriorityBatch:       20,
	PriorityMaintenance: 10,
}

// Weight returns the base scheduling weight for the priority.
// Unknown priorities weigh the same as MEDIUM.
func (p Priority) Weight() float64 {
	if w, ok := defaultWeights[p]; ok {
		return w
	}
	return defaultWeights[PriorityMedium]
}

// Valid returns true if p is a recognized priority level.
func (p Priority) Valid() bool {
	_, ok := defaultWeights[p]
	return ok
}

// Outranks returns true if p is strictly higher priority than other.
func (p Priority) Outranks(other Priority) bool {
	return p.Weight() > other.Weight()
}
