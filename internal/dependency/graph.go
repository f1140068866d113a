package dependency

import (
	"sort"
	"time"

	"github.com/teoat/nexus378-sub000/pkg/model"
)

// edge is one dependency of a job, mirrored from the job's dependency list.
type edge struct {
	dep       model.Dependency
	cond      Condition // parsed form of dep.Condition (conditional type only)
	addedAt   time.Time
	skipped   bool // set when the target was cancelled; a skipped edge is waived
}

// node holds one job's place in the graph: backward edges (what it waits on),
// forward edges (who waits on it), and the job's last-known status.
type node struct {
	id         string
	priority   model.Priority
	status     model.JobStatus
	deps       []*edge
	dependents []string
}

// graph is the adjacency structure. It carries no locking; the Manager owns
// synchronization.
type graph struct {
	nodes map[string]*node
}

func newGraph() *graph {
	return &graph{nodes: make(map[string]*node)}
}

// ensure returns the node for id, creating a placeholder if absent.
func (g *graph) ensure(id string) *node {
	n, ok := g.nodes[id]
	if !ok {
		n = &node{id: id, status: model.StatusPending, priority: model.PriorityMedium}
		g.nodes[id] = n
	}
	return n
}

// addEdge records that from depends on the edge's target.
func (g *graph) addEdge(from string, e *edge) {
	n := g.ensure(from)
	n.deps = append(n.deps, e)
	target := g.ensure(e.dep.TargetJobID)
	for _, d := range target.dependents {
		if d == from {
			return
		}
	}
	target.dependents = append(target.dependents, from)
}

// removeEdges drops all of from's backward edges and the matching forward
// references on their targets.
func (g *graph) removeEdges(from string) {
	n, ok := g.nodes[from]
	if !ok {
		return
	}
	for _, e := range n.deps {
		if target, ok := g.nodes[e.dep.TargetJobID]; ok {
			kept := target.dependents[:0]
			for _, d := range target.dependents {
				if d != from {
					kept = append(kept, d)
				}
			}
			target.dependents = kept
		}
	}
	n.deps = nil
}

// removeEdge drops the single edge from → target. Returns true if found.
func (g *graph) removeEdge(from, target string) bool {
	n, ok := g.nodes[from]
	if !ok {
		return false
	}
	kept := n.deps[:0]
	removed := false
	for _, e := range n.deps {
		if e.dep.TargetJobID == target && !removed {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	n.deps = kept
	if removed {
		if tn, ok := g.nodes[target]; ok {
			deps := tn.dependents[:0]
			for _, d := range tn.dependents {
				if d != from {
					deps = append(deps, d)
				}
			}
			tn.dependents = deps
		}
	}
	return removed
}

// hasCycle runs DFS with back-edge tracking over the backward edges.
func (g *graph) hasCycle() bool {
	const (
		white = iota // unvisited
		grey         // on the current DFS path
		black        // fully explored
	)
	color := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		for _, e := range g.nodes[id].deps {
			target := e.dep.TargetJobID
			switch color[target] {
			case grey:
				return true
			case white:
				if _, ok := g.nodes[target]; ok && visit(target) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for id := range g.nodes {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// findCycles enumerates simple cycles as node-ID slices. Cycles are
// deduplicated by canonical rotation and returned sorted shortest-first.
func (g *graph) findCycles() [][]string {
	var cycles [][]string
	seen := make(map[string]bool)

	var path []string
	onPath := make(map[string]int)

	var visit func(id string)
	visit = func(id string) {
		if pos, ok := onPath[id]; ok {
			cycle := append([]string(nil), path[pos:]...)
			key := canonicalCycleKey(cycle)
			if !seen[key] {
				seen[key] = true
				cycles = append(cycles, cycle)
			}
			return
		}
		onPath[id] = len(path)
		path = append(path, id)
		if n, ok := g.nodes[id]; ok {
			for _, e := range n.deps {
				visit(e.dep.TargetJobID)
			}
		}
		path = path[:len(path)-1]
		delete(onPath, id)
	}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		visit(id)
	}

	sort.Slice(cycles, func(i, j int) bool {
		if len(cycles[i]) != len(cycles[j]) {
			return len(cycles[i]) < len(cycles[j])
		}
		return canonicalCycleKey(cycles[i]) < canonicalCycleKey(cycles[j])
	})
	return cycles
}

// canonicalCycleKey rotates the cycle so its smallest member leads, making
// rotations of the same cycle compare equal.
func canonicalCycleKey(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	min := 0
	for i, id := range cycle {
		if id < cycle[min] {
			min = i
		}
	}
	key := ""
	for i := 0; i < len(cycle); i++ {
		key += cycle[(min+i)%len(cycle)] + "→"
	}
	return key
}

// topologicalOrder runs Kahn's algorithm over the graph. Returns nil if a
// cycle prevents a full ordering. Output is deterministic: ties break by ID.
func (g *graph) topologicalOrder() []string {
	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = 0
	}
	for _, n := range g.nodes {
		for _, e := range n.deps {
			if _, ok := g.nodes[e.dep.TargetJobID]; ok {
				inDegree[n.id]++
			}
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		dependents := append([]string(nil), g.nodes[id].dependents...)
		sort.Strings(dependents)
		for _, dep := range dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(g.nodes) {
		return nil
	}
	return order
}
