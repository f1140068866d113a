package queue

import (
	"sort"
	"time"

	"github.com/teoat/nexus378-sub000/pkg/model"
)

// selectNext picks and removes the next job according to the configured
// strategy. Returns nil when nothing is selectable. Caller holds mu.
func (q *Queue) selectNext(now time.Time) *model.Job {
	if q.sizeLocked() == 0 {
		return nil
	}
	switch q.cfg.Strategy {
	case StrategyFairSharing:
		return q.selectFairSharing()
	case StrategyWeightedRR:
		return q.selectWeightedRoundRobin()
	case StrategyDeadlineAware:
		return q.selectDeadlineAware(now)
	case StrategyCostAware:
		return q.selectCostAware()
	case StrategyHybrid:
		return q.selectHybrid(now)
	default:
		return q.selectPriorityFirst()
	}
}

// prioritiesByWeight returns all priority levels ordered by configured weight
// descending, ties broken by the canonical priority order.
func (q *Queue) prioritiesByWeight() []model.Priority {
	ordered := append([]model.Priority(nil), model.Priorities...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return q.cfg.weightOf(ordered[i]) > q.cfg.weightOf(ordered[j])
	})
	return ordered
}

// popHead removes and returns the oldest job of the given bucket.
// Caller holds mu.
func (q *Queue) popHead(p model.Priority) *model.Job {
	bucket := q.buckets[p]
	if len(bucket) == 0 {
		return nil
	}
	job := bucket[0]
	q.buckets[p] = bucket[1:]
	return job
}

// popAt removes and returns the job at index i of the bucket. Caller holds mu.
func (q *Queue) popAt(p model.Priority, i int) *model.Job {
	bucket := q.buckets[p]
	job := bucket[i]
	q.buckets[p] = append(bucket[:i], bucket[i+1:]...)
	return job
}

// selectPriorityFirst serves the head of the highest-weighted non-empty
// bucket; FIFO within the bucket.
func (q *Queue) selectPriorityFirst() *model.Job {
	for _, p := range q.prioritiesByWeight() {
		if job := q.popHead(p); job != nil {
			return job
		}
	}
	return nil
}

// selectFairSharing serves the non-empty bucket with the lowest service
// counter, incrementing it. All counters reset once the quantum (a count of
// served requests) is exhausted.
func (q *Queue) selectFairSharing() *model.Job {
	var chosen model.Priority
	found := false
	for _, p := range q.prioritiesByWeight() {
		if len(q.buckets[p]) == 0 {
			continue
		}
		if !found || q.fairCounters[p] < q.fairCounters[chosen] {
			chosen = p
			found = true
		}
	}
	if !found {
		return nil
	}

	q.fairCounters[chosen]++
	q.fairServed++
	if q.cfg.FairShareQuantum > 0 && q.fairServed >= q.cfg.FairShareQuantum {
		q.fairCounters = make(map[model.Priority]int)
		q.fairServed = 0
	}
	return q.popHead(chosen)
}

// selectWeightedRoundRobin iterates buckets by weight descending and
// round-robins within the first non-empty bucket via a persistent index.
func (q *Queue) selectWeightedRoundRobin() *model.Job {
	for _, p := range q.prioritiesByWeight() {
		bucket := q.buckets[p]
		if len(bucket) == 0 {
			continue
		}
		i := q.rrIndex[p] % len(bucket)
		q.rrIndex[p]++
		return q.popAt(p, i)
	}
	return nil
}

// selectDeadlineAware picks the job with the smallest still-positive time to
// its effective deadline (deadline minus the configured buffer), ties broken
// by priority weight. Falls back to priority-first when no job carries a
// usable deadline.
func (q *Queue) selectDeadlineAware(now time.Time) *model.Job {
	bestPriority := model.Priority("")
	bestIdx := -1
	var bestRemaining time.Duration

	for p, bucket := range q.buckets {
		for i, job := range bucket {
			if job.Deadline == nil {
				continue
			}
			remaining := job.Deadline.Add(-q.cfg.DeadlineBuffer).Sub(now)
			if remaining <= 0 {
				continue
			}
			better := bestIdx < 0 ||
				remaining < bestRemaining ||
				(remaining == bestRemaining && q.cfg.weightOf(p) > q.cfg.weightOf(bestPriority))
			if better {
				bestPriority, bestIdx, bestRemaining = p, i, remaining
			}
		}
	}
	if bestIdx < 0 {
		return q.selectPriorityFirst()
	}
	return q.popAt(bestPriority, bestIdx)
}

// selectCostAware picks the cheapest job, ties broken by priority weight.
// When a cost threshold is configured, jobs at or under it are preferred.
func (q *Queue) selectCostAware() *model.Job {
	pick := func(underThreshold bool) (model.Priority, int) {
		bestPriority := model.Priority("")
		bestIdx := -1
		bestCost := 0.0
		for p, bucket := range q.buckets {
			for i, job := range bucket {
				if underThreshold && q.cfg.CostThreshold > 0 && job.EstimatedCost > q.cfg.CostThreshold {
					continue
				}
				better := bestIdx < 0 ||
					job.EstimatedCost < bestCost ||
					(job.EstimatedCost == bestCost && q.cfg.weightOf(p) > q.cfg.weightOf(bestPriority))
				if better {
					bestPriority, bestIdx, bestCost = p, i, job.EstimatedCost
				}
			}
		}
		return bestPriority, bestIdx
	}

	p, i := pick(true)
	if i < 0 {
		p, i = pick(false)
	}
	if i < 0 {
		return nil
	}
	return q.popAt(p, i)
}

// selectHybrid scores every candidate and serves the maximum:
// 10×priority_weight + urgency(deadline) + cost term + fairness term.
// The fairness counter for the chosen priority is bumped so heavily-served
// priorities gradually yield.
func (q *Queue) selectHybrid(now time.Time) *model.Job {
	bestPriority := model.Priority("")
	bestIdx := -1
	bestScore := 0.0

	for p, bucket := range q.buckets {
		for i, job := range bucket {
			score := 10*q.cfg.weightOf(p) + q.urgencyTerm(job, now) + costTerm(job) - float64(q.fairCounters[p])
			if bestIdx < 0 || score > bestScore {
				bestPriority, bestIdx, bestScore = p, i, score
			}
		}
	}
	if bestIdx < 0 {
		return nil
	}
	q.fairCounters[bestPriority]++
	return q.popAt(bestPriority, bestIdx)
}

// urgencyTerm grows as a job approaches its deadline; overdue jobs get the
// maximum boost. Jobs without deadlines contribute nothing.
func (q *Queue) urgencyTerm(job *model.Job, now time.Time) float64 {
	if job.Deadline == nil {
		return 0
	}
	remaining := job.Deadline.Add(-q.cfg.DeadlineBuffer).Sub(now)
	if remaining <= 0 {
		return 100
	}
	return 100 / (1 + remaining.Hours())
}

// costTerm penalizes expensive jobs.
func costTerm(job *model.Job) float64 {
	return -job.EstimatedCost / 10
}
