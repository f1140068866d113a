package dependency

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teoat/nexus378-sub000/pkg/model"
)

// Manager maintains the dependency graph and answers "what can run next".
// All public methods are safe for concurrent use; the graph itself is only
// touched under mu.
type Manager struct {
	mu       sync.RWMutex
	graph    *graph
	canStart map[string]bool // cached start decisions, invalidated on status changes
	logger   *slog.Logger

	forcedResolutions int
}

// NewManager creates an empty dependency manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		graph:    newGraph(),
		canStart: make(map[string]bool),
		logger:   logger.With("component", "dependency"),
	}
}

// Register adds the job to the graph with no dependencies. Safe to call for
// already-known jobs; status and priority are refreshed.
func (m *Manager) Register(job *model.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.graph.ensure(job.ID)
	n.status = job.Status
	n.priority = job.Priority
}

// AddDependencies inserts the job's edges into the graph. If the insertion
// would create a cycle, every edge added for this job is rolled back and a
// CycleError is returned, leaving the graph consistent.
func (m *Manager) AddDependencies(job *model.Job, deps []model.Dependency) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.graph.ensure(job.ID)
	n.status = job.Status
	n.priority = job.Priority

	now := time.Now().UTC()
	for _, dep := range deps {
		e := &edge{dep: dep, addedAt: now}
		if dep.Type == model.DependencyConditional {
			cond, err := ParseCondition(dep.Condition)
			if err != nil {
				m.graph.removeEdges(job.ID)
				return fmt.Errorf("job %s: %w", job.ID, err)
			}
			e.cond = cond
		}
		m.graph.addEdge(job.ID, e)
	}

	if m.graph.hasCycle() {
		m.graph.removeEdges(job.ID)
		cycles := m.graph.findCycles()
		nodes := []string{job.ID}
		if len(cycles) > 0 {
			nodes = cycles[0]
		}
		m.logger.Warn("dependency insertion rejected (cycle)", "job_id", job.ID)
		return &model.CycleError{JobID: job.ID, Nodes: nodes}
	}

	delete(m.canStart, job.ID)
	return nil
}

// UpdateJobStatus records a job's new status and processes the full causality
// of the change before returning: dependents' cached decisions are
// invalidated, required-dependents of a FAILED job are cascade-failed
// (recursively), and edges onto a CANCELLED job are marked skipped.
// The returned slice holds the IDs of jobs failed by cascade.
func (m *Manager) UpdateJobStatus(jobID string, status model.JobStatus) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.graph.nodes[jobID]
	if !ok {
		n = m.graph.ensure(jobID)
	}
	prev := n.status
	n.status = status
	if prev == status {
		return nil
	}

	m.invalidateDependents(jobID)

	// A status change on a holder of exclusive edges affects every peer
	// sharing those targets, not just direct dependents.
	for _, e := range n.deps {
		if e.dep.Type == model.DependencyExclusive {
			m.invalidateDependents(e.dep.TargetJobID)
		}
	}

	switch status {
	case model.StatusFailed:
		return m.cascadeFailure(jobID)
	case model.StatusCancelled:
		for _, depID := range n.dependents {
			dn := m.graph.nodes[depID]
			for _, e := range dn.deps {
				if e.dep.TargetJobID == jobID {
					e.skipped = true
				}
			}
		}
	}
	return nil
}

// cascadeFailure fails every dependent holding a live required edge on a
// failed job, recursively. Caller holds mu.
func (m *Manager) cascadeFailure(jobID string) []string {
	var failed []string
	queue := []string{jobID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := m.graph.nodes[id]
		dependents := append([]string(nil), n.dependents...)
		sort.Strings(dependents)
		for _, depID := range dependents {
			dn := m.graph.nodes[depID]
			if dn.status.IsTerminal() || dn.status == model.StatusFailed {
				continue
			}
			mustFail := false
			for _, e := range dn.deps {
				if e.dep.TargetJobID == id && e.dep.Type == model.DependencyRequired && !e.skipped {
					mustFail = true
					break
				}
			}
			if !mustFail {
				continue
			}
			dn.status = model.StatusFailed
			m.invalidateDependents(depID)
			delete(m.canStart, depID)
			failed = append(failed, depID)
			queue = append(queue, depID)
			m.logger.Info("dependent failed by cascade", "job_id", depID, "caused_by", id)
		}
	}
	return failed
}

// invalidateDependents clears cached start decisions for every direct
// dependent of jobID. Caller holds mu.
func (m *Manager) invalidateDependents(jobID string) {
	if n, ok := m.graph.nodes[jobID]; ok {
		for _, depID := range n.dependents {
			delete(m.canStart, depID)
		}
	}
}

// CanJobStart evaluates whether every dependency of the job is satisfied.
// Decisions are cached until a relevant status change invalidates them.
func (m *Manager) CanJobStart(jobID string) bool {
	m.mu.RLock()
	if cached, ok := m.canStart[jobID]; ok {
		m.mu.RUnlock()
		return cached
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	result := m.evaluateStart(jobID, time.Now().UTC(), nil)
	m.canStart[jobID] = result
	return result
}

// RemoveOrphan drops a node only if nothing connects to it. Rolls back
// placeholder targets created by a rejected insertion; a node with edges in
// either direction is left alone. Returns true if the node was removed.
func (m *Manager) RemoveOrphan(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.graph.nodes[jobID]
	if !ok || len(n.deps) > 0 || len(n.dependents) > 0 {
		return false
	}
	delete(m.graph.nodes, jobID)
	delete(m.canStart, jobID)
	return true
}

// Unresolved returns an UnresolvedDependencyError naming the first required
// dependency still unsatisfied, or nil when none block the job. Dispatch
// guards use this for a typed rejection where CanJobStart only answers yes/no.
func (m *Manager) Unresolved(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.graph.nodes[jobID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	for _, e := range n.deps {
		if e.dep.Type != model.DependencyRequired {
			continue
		}
		if !m.depSatisfied(jobID, e, now, nil) {
			return &model.UnresolvedDependencyError{JobID: jobID, TargetJobID: e.dep.TargetJobID}
		}
	}
	return nil
}

// evaluateStart checks each dependency by type. completed supplies extra
// completion knowledge beyond tracked statuses (may be nil). Caller holds mu.
func (m *Manager) evaluateStart(jobID string, now time.Time, completed map[string]bool) bool {
	n, ok := m.graph.nodes[jobID]
	if !ok {
		return true
	}
	for _, e := range n.deps {
		if !m.depSatisfied(jobID, e, now, completed) {
			return false
		}
	}
	return true
}

// depSatisfied evaluates a single edge by dependency type. Caller holds mu.
func (m *Manager) depSatisfied(jobID string, e *edge, now time.Time, completed map[string]bool) bool {
	if e.skipped {
		return true
	}
	statusOf := func(id string) (model.JobStatus, bool) {
		if completed != nil && completed[id] {
			return model.StatusCompleted, true
		}
		if tn, ok := m.graph.nodes[id]; ok {
			return tn.status, true
		}
		return "", false
	}
	target, known := statusOf(e.dep.TargetJobID)

	switch e.dep.Type {
	case model.DependencyRequired:
		return known && target == model.StatusCompleted
	case model.DependencyOptional:
		if !known {
			return false
		}
		switch target {
		case model.StatusCompleted, model.StatusSkipped, model.StatusCancelled, model.StatusFailed, model.StatusTimeout:
			return true
		}
		return false
	case model.DependencyExclusive:
		return !m.exclusivePeerRunning(jobID, e.dep.TargetJobID)
	case model.DependencyConditional:
		return e.cond.Evaluate(now, statusOf)
	case model.DependencyTimeout:
		if known && target == model.StatusCompleted {
			return true
		}
		return e.dep.Timeout > 0 && now.Sub(e.addedAt) >= e.dep.Timeout
	}
	return false
}

// exclusivePeerRunning reports whether any other holder of an exclusive edge
// onto target is currently RUNNING (or ASSIGNED). Caller holds mu.
func (m *Manager) exclusivePeerRunning(jobID, target string) bool {
	tn, ok := m.graph.nodes[target]
	if !ok {
		return false
	}
	if tn.status == model.StatusRunning || tn.status == model.StatusAssigned {
		return true
	}
	for _, peerID := range tn.dependents {
		if peerID == jobID {
			continue
		}
		pn := m.graph.nodes[peerID]
		if pn.status != model.StatusRunning && pn.status != model.StatusAssigned {
			continue
		}
		for _, e := range pn.deps {
			if e.dep.TargetJobID == target && e.dep.Type == model.DependencyExclusive {
				return true
			}
		}
	}
	return false
}

// ReadyJobs returns the IDs of non-terminal jobs whose dependency sets are
// satisfied, taking the supplied completed set as additional knowledge.
func (m *Manager) ReadyJobs(completed map[string]bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var ready []string
	for id, n := range m.graph.nodes {
		if n.status.IsTerminal() || n.status == model.StatusFailed {
			continue
		}
		if m.evaluateStart(id, now, completed) {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

// BlockedJobs returns the IDs of non-terminal jobs with at least one
// unsatisfied dependency.
func (m *Manager) BlockedJobs(completed map[string]bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var blocked []string
	for id, n := range m.graph.nodes {
		if n.status.IsTerminal() || n.status == model.StatusFailed {
			continue
		}
		if !m.evaluateStart(id, now, completed) {
			blocked = append(blocked, id)
		}
	}
	sort.Strings(blocked)
	return blocked
}

// ExecutionOrder returns a topological ordering of all known jobs, or an
// empty slice if the graph currently contains a cycle.
func (m *Manager) ExecutionOrder() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order := m.graph.topologicalOrder()
	if order == nil {
		return []string{}
	}
	return order
}

// HasCycles reports whether the graph currently contains a cycle.
func (m *Manager) HasCycles() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph.hasCycle()
}

// Resolution records a forced deadlock resolution: the cycle found and the
// edge deleted to break it.
type Resolution struct {
	Cycle         []string
	RemovedFrom   string
	RemovedTarget string
}

// ResolveDeadlocks breaks dependency cycles one at a time: find all simple
// cycles, pick the shortest, and delete the edge entering its lowest-priority
// member. This is a lossy last resort and is logged as such.
func (m *Manager) ResolveDeadlocks() []Resolution {
	m.mu.Lock()
	defer m.mu.Unlock()

	var resolutions []Resolution
	for m.graph.hasCycle() {
		cycles := m.graph.findCycles()
		if len(cycles) == 0 {
			break
		}
		cycle := cycles[0]

		// The edge to delete is the one entering the lowest-priority member,
		// so higher-priority work keeps its ordering guarantees.
		victim := 0
		for i, id := range cycle {
			if n, ok := m.graph.nodes[id]; ok {
				vn := m.graph.nodes[cycle[victim]]
				if vn == nil || vn.priority.Outranks(n.priority) {
					victim = i
				}
			}
		}
		from := cycle[victim]
		target := cycle[(victim+1)%len(cycle)]
		if !m.graph.removeEdge(from, target) {
			break
		}
		delete(m.canStart, from)

		res := Resolution{Cycle: cycle, RemovedFrom: from, RemovedTarget: target}
		resolutions = append(resolutions, res)
		m.forcedResolutions++
		m.logger.Error("deadlock resolved by force: dependency edge deleted",
			"from", from, "target", target, "cycle_len", len(cycle))
	}
	return resolutions
}

// ForcedResolutions returns the count of edges deleted by deadlock resolution
// since start. Deadlock resolution firing at all is alert-worthy.
func (m *Manager) ForcedResolutions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.forcedResolutions
}

// SweepTimeouts re-evaluates jobs holding timeout or time-based conditional
// dependencies, clearing their cached decisions so elapsed time is observed.
// Returns IDs whose cached decision flipped to startable.
func (m *Manager) SweepTimeouts(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var flipped []string
	for id, n := range m.graph.nodes {
		timeSensitive := false
		for _, e := range n.deps {
			if e.dep.Type == model.DependencyTimeout ||
				(e.dep.Type == model.DependencyConditional && e.cond.Kind == CondTimeBased) {
				timeSensitive = true
				break
			}
		}
		if !timeSensitive {
			continue
		}
		was, had := m.canStart[id]
		nowCan := m.evaluateStart(id, now, nil)
		m.canStart[id] = nowCan
		if nowCan && (!had || !was) {
			flipped = append(flipped, id)
		}
	}
	sort.Strings(flipped)
	return flipped
}

// DependencyState describes one dependency's current satisfaction.
type DependencyState struct {
	Dependency model.Dependency `json:"dependency"`
	Satisfied  bool             `json:"satisfied"`
	Skipped    bool             `json:"skipped"`
}

// Snapshot is an introspection view of one job's dependency situation.
type Snapshot struct {
	JobID        string            `json:"job_id"`
	Status       model.JobStatus   `json:"status"`
	CanStart     bool              `json:"can_start"`
	Dependencies []DependencyState `json:"dependencies"`
	Dependents   []string          `json:"dependents"`
}

// Status returns an introspection snapshot for the job.
func (m *Manager) Status(jobID string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.graph.nodes[jobID]
	if !ok {
		return nil, model.ErrJobNotFound
	}

	now := time.Now().UTC()
	snap := &Snapshot{
		JobID:      jobID,
		Status:     n.status,
		CanStart:   m.evaluateStart(jobID, now, nil),
		Dependents: append([]string(nil), n.dependents...),
	}
	for _, e := range n.deps {
		snap.Dependencies = append(snap.Dependencies, DependencyState{
			Dependency: e.dep,
			Satisfied:  m.depSatisfied(jobID, e, now, nil),
			Skipped:    e.skipped,
		})
	}
	sort.Strings(snap.Dependents)
	return snap, nil
}

// Remove deletes a job and all its edges from the graph. Used by retention
// cleanup once a terminal job ages out.
func (m *Manager) Remove(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.graph.nodes[jobID]
	if !ok {
		return
	}
	m.graph.removeEdges(jobID)
	for _, depID := range n.dependents {
		m.graph.removeEdge(depID, jobID)
		delete(m.canStart, depID)
	}
	delete(m.graph.nodes, jobID)
	delete(m.canStart, jobID)
}
