package queue

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teoat/nexus378-sub000/pkg/model"
)

// Strategy selects the scheduling discipline a queue runs.
type Strategy string

const (
	StrategyPriorityFirst Strategy = "priority_first"
	StrategyFairSharing   Strategy = "fair_sharing"
	StrategyWeightedRR    Strategy = "weighted_round_robin"
	StrategyDeadlineAware Strategy = "deadline_aware"
	StrategyCostAware     Strategy = "cost_aware"
	StrategyHybrid        Strategy = "hybrid"
)

// Valid returns true if s is a recognized strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyPriorityFirst, StrategyFairSharing, StrategyWeightedRR,
		StrategyDeadlineAware, StrategyCostAware, StrategyHybrid:
		return true
	}
	return false
}

// State represents a queue's operational state.
type State string

const (
	StateActive   State = "ACTIVE"
	StatePaused   State = "PAUSED"
	StateDraining State = "DRAINING"
	StateFull     State = "FULL"
	StateStopped  State = "STOPPED"
)

// Config holds a queue's creation-time settings.
type Config struct {
	Strategy         Strategy                   `yaml:"strategy"`
	MaxSize          int                        `yaml:"max_size"`
	PriorityWeights  map[model.Priority]float64 `yaml:"priority_weights,omitempty"`
	FairShareQuantum int                        `yaml:"fair_share_quantum,omitempty"`
	EnablePreemption bool                       `yaml:"enable_preemption,omitempty"`
	CostThreshold    float64                    `yaml:"cost_threshold,omitempty"`
	DeadlineBuffer   time.Duration              `yaml:"deadline_buffer,omitempty"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:         StrategyPriorityFirst,
		MaxSize:          1000,
		FairShareQuantum: 100,
	}
}

// weightOf returns the configured weight for a priority, falling back to the
// model defaults.
func (c Config) weightOf(p model.Priority) float64 {
	if w, ok := c.PriorityWeights[p]; ok {
		return w
	}
	return p.Weight()
}

// Queue holds jobs for one scheduling discipline. Buckets preserve FIFO order
// within a priority; cross-bucket order is the strategy's business.
type Queue struct {
	mu     sync.Mutex
	name   string
	cfg    Config
	state  State
	logger *slog.Logger

	buckets    map[model.Priority][]*model.Job
	enqueuedAt map[string]time.Time
	handedOut  map[string]time.Time // dequeued but not yet marked processing; jobID → enqueue time
	processing map[string]time.Time // jobID → processing start
	completed  map[string]bool
	failed     map[string]bool

	// strategy-local counters
	fairCounters map[model.Priority]int
	fairServed   int
	rrIndex      map[model.Priority]int

	waitSamples    int
	avgWait        time.Duration
	processSamples int
	avgProcessing  time.Duration
}

// NewQueue creates an ACTIVE queue with the given configuration.
func NewQueue(name string, cfg Config, logger *slog.Logger) (*Queue, error) {
	if !cfg.Strategy.Valid() {
		return nil, fmt.Errorf("queue %s: unknown strategy %q", name, cfg.Strategy)
	}
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("queue %s: max_size must be positive", name)
	}
	return &Queue{
		name:         name,
		cfg:          cfg,
		state:        StateActive,
		logger:       logger.With("component", "queue", "queue", name),
		buckets:      make(map[model.Priority][]*model.Job),
		enqueuedAt:   make(map[string]time.Time),
		handedOut:    make(map[string]time.Time),
		processing:   make(map[string]time.Time),
		completed:    make(map[string]bool),
		failed:       make(map[string]bool),
		fairCounters: make(map[model.Priority]int),
		rrIndex:      make(map[model.Priority]int),
	}, nil
}

// Name returns the queue's name.
func (q *Queue) Name() string { return q.name }

// AddJob enqueues the job. Rejects when the queue is full (entering FULL
// state) or not accepting work.
func (q *Queue) AddJob(job *model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch q.state {
	case StateActive:
	case StateFull:
		if q.sizeLocked() >= q.cfg.MaxSize {
			return fmt.Errorf("queue %s: %w", q.name, model.ErrQueueFull)
		}
		q.state = StateActive
	default:
		return fmt.Errorf("queue %s (%s): %w", q.name, q.state, model.ErrQueueInactive)
	}

	if q.sizeLocked() >= q.cfg.MaxSize {
		q.state = StateFull
		q.logger.Warn("queue full", "max_size", q.cfg.MaxSize)
		return fmt.Errorf("queue %s: %w", q.name, model.ErrQueueFull)
	}

	q.buckets[job.Priority] = append(q.buckets[job.Priority], job)
	q.enqueuedAt[job.ID] = time.Now().UTC()
	return nil
}

// NextJob selects and removes the next job per the queue's strategy.
// Returns nil when the queue holds no selectable job. A PAUSED queue stops
// draining as well; DRAINING continues to serve until empty.
func (q *Queue) NextJob() *model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state == StatePaused || q.state == StateStopped {
		return nil
	}

	job := q.selectNext(time.Now().UTC())
	if job == nil {
		return nil
	}
	q.handedOut[job.ID] = q.enqueuedAt[job.ID]
	delete(q.enqueuedAt, job.ID)
	if q.state == StateFull && q.sizeLocked() < q.cfg.MaxSize {
		q.state = StateActive
	}
	if q.state == StateDraining && q.sizeLocked() == 0 {
		q.state = StateStopped
		q.logger.Info("queue drained")
	}
	return job
}

// MarkProcessing records that the job began processing and folds its wait
// time into the running average.
func (q *Queue) MarkProcessing(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	q.processing[jobID] = now
	if enqueued, ok := q.handedOut[jobID]; ok {
		if !enqueued.IsZero() {
			q.recordWait(now.Sub(enqueued))
		}
		delete(q.handedOut, jobID)
	}
}

// MarkCompleted moves the job from processing to completed and folds its
// processing time into the running average.
func (q *Queue) MarkCompleted(jobID string) {
	q.finish(jobID, true)
}

// MarkFailed moves the job from processing to failed.
func (q *Queue) MarkFailed(jobID string) {
	q.finish(jobID, false)
}

func (q *Queue) finish(jobID string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if started, inFlight := q.processing[jobID]; inFlight {
		q.recordProcessing(time.Now().UTC().Sub(started))
		delete(q.processing, jobID)
	}
	if ok {
		q.completed[jobID] = true
	} else {
		q.failed[jobID] = true
	}
}

// Forget drops a finished job's bookkeeping so the completed/failed sets do
// not grow without bound. Retention cleanup calls this once the job ages out.
func (q *Queue) Forget(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.completed, jobID)
	delete(q.failed, jobID)
	delete(q.handedOut, jobID)
	delete(q.processing, jobID)
}

// RemoveJob removes a queued or in-flight job, for cancellation.
// Returns true if the job was held by this queue.
func (q *Queue) RemoveJob(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for p, bucket := range q.buckets {
		for i, job := range bucket {
			if job.ID == jobID {
				q.buckets[p] = append(bucket[:i], bucket[i+1:]...)
				delete(q.enqueuedAt, jobID)
				if q.state == StateFull && q.sizeLocked() < q.cfg.MaxSize {
					q.state = StateActive
				}
				return true
			}
		}
	}
	if _, ok := q.handedOut[jobID]; ok {
		delete(q.handedOut, jobID)
		return true
	}
	if _, ok := q.processing[jobID]; ok {
		delete(q.processing, jobID)
		return true
	}
	return false
}

// Pause stops the queue from serving or accepting jobs.
func (q *Queue) Pause() {
	q.setState(StatePaused)
}

// Resume reactivates a paused or drained queue.
func (q *Queue) Resume() {
	q.setState(StateActive)
}

// Drain stops intake; existing jobs continue to be served until empty.
func (q *Queue) Drain() {
	q.setState(StateDraining)
}

func (q *Queue) setState(s State) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != s {
		q.logger.Info("queue state change", "from", q.state, "to", s)
		q.state = s
	}
}

// Clear discards all queued jobs. In-flight jobs are untouched.
// Returns the number of jobs dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.sizeLocked()
	q.buckets = make(map[model.Priority][]*model.Job)
	q.enqueuedAt = make(map[string]time.Time)
	if q.state == StateFull {
		q.state = StateActive
	}
	return dropped
}

// Size returns the number of queued (not in-flight) jobs.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeLocked()
}

func (q *Queue) sizeLocked() int {
	n := 0
	for _, bucket := range q.buckets {
		n += len(bucket)
	}
	return n
}

// Occupancy returns queued size as a fraction of max_size.
func (q *Queue) Occupancy() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return float64(q.sizeLocked()) / float64(q.cfg.MaxSize)
}

// donateLowPriority pops up to n jobs from the lowest-priority non-empty
// buckets (oldest first within a bucket) for migration to another queue.
func (q *Queue) donateLowPriority(n int) []*model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var donated []*model.Job
	for i := len(model.Priorities) - 1; i >= 0 && len(donated) < n; i-- {
		p := model.Priorities[i]
		for len(q.buckets[p]) > 0 && len(donated) < n {
			job := q.buckets[p][0]
			q.buckets[p] = q.buckets[p][1:]
			delete(q.enqueuedAt, job.ID)
			donated = append(donated, job)
		}
	}
	if len(donated) > 0 && q.state == StateFull && q.sizeLocked() < q.cfg.MaxSize {
		q.state = StateActive
	}
	return donated
}

// recordWait folds one wait-time sample into the running average.
// Caller holds mu.
func (q *Queue) recordWait(d time.Duration) {
	q.waitSamples++
	q.avgWait += (d - q.avgWait) / time.Duration(q.waitSamples)
}

// recordProcessing folds one processing-time sample into the running average.
// Caller holds mu.
func (q *Queue) recordProcessing(d time.Duration) {
	q.processSamples++
	q.avgProcessing += (d - q.avgProcessing) / time.Duration(q.processSamples)
}

// Status is a point-in-time snapshot of queue state and statistics.
type Status struct {
	Name              string                 `json:"name"`
	State             State                  `json:"state"`
	Strategy          Strategy               `json:"strategy"`
	Size              int                    `json:"size"`
	MaxSize           int                    `json:"max_size"`
	ByPriority        map[model.Priority]int `json:"by_priority"`
	Processing        int                    `json:"processing"`
	Completed         int                    `json:"completed"`
	Failed            int                    `json:"failed"`
	AvgWaitTime       time.Duration          `json:"avg_wait_time"`
	AvgProcessingTime time.Duration          `json:"avg_processing_time"`
}

// Status returns a snapshot of the queue.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	byPriority := make(map[model.Priority]int)
	for p, bucket := range q.buckets {
		if len(bucket) > 0 {
			byPriority[p] = len(bucket)
		}
	}
	return Status{
		Name:              q.name,
		State:             q.state,
		Strategy:          q.cfg.Strategy,
		Size:              q.sizeLocked(),
		MaxSize:           q.cfg.MaxSize,
		ByPriority:        byPriority,
		Processing:        len(q.processing),
		Completed:         len(q.completed),
		Failed:            len(q.failed),
		AvgWaitTime:       q.avgWait,
		AvgProcessingTime: q.avgProcessing,
	}
}
