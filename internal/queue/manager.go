package queue

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/teoat/nexus378-sub000/pkg/model"
)

// Well-known queue names used by priority-based routing fallback.
const (
	QueueHighPriority = "high_priority"
	QueueStandard     = "standard"
	QueueBatch        = "batch"
)

// ManagerConfig holds manager-level settings.
type ManagerConfig struct {
	// RebalanceThreshold is the occupancy fraction above which a queue
	// donates low-priority work during a balancing cycle.
	RebalanceThreshold float64 `yaml:"rebalance_threshold"`
	// DonationFraction caps how much of an overloaded queue moves per cycle.
	DonationFraction float64 `yaml:"donation_fraction"`
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		RebalanceThreshold: 0.8,
		DonationFraction:   0.25,
	}
}

// Manager owns the named queues, routes incoming jobs, and rebalances load.
type Manager struct {
	mu      sync.RWMutex
	queues  map[string]*Queue
	routing map[string]string // job type → queue name
	cfg     ManagerConfig
	logger  *slog.Logger
}

// NewManager creates an empty queue manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.RebalanceThreshold <= 0 {
		cfg.RebalanceThreshold = DefaultManagerConfig().RebalanceThreshold
	}
	if cfg.DonationFraction <= 0 {
		cfg.DonationFraction = DefaultManagerConfig().DonationFraction
	}
	return &Manager{
		queues:  make(map[string]*Queue),
		routing: make(map[string]string),
		cfg:     cfg,
		logger:  logger.With("component", "queue_manager"),
	}
}

// CreateQueue adds a named queue. Names are unique.
func (m *Manager) CreateQueue(name string, cfg Config) (*Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.queues[name]; exists {
		return nil, fmt.Errorf("queue %s already exists", name)
	}
	q, err := NewQueue(name, cfg, m.logger)
	if err != nil {
		return nil, err
	}
	m.queues[name] = q
	m.logger.Info("queue created", "queue", name, "strategy", cfg.Strategy, "max_size", cfg.MaxSize)
	return q, nil
}

// CreateDefaultQueues provisions the three routing-fallback queues.
func (m *Manager) CreateDefaultQueues() error {
	for _, name := range []string{QueueHighPriority, QueueStandard, QueueBatch} {
		if _, err := m.CreateQueue(name, DefaultConfig()); err != nil {
			return err
		}
	}
	return nil
}

// Queue returns the named queue.
func (m *Manager) Queue(name string) (*Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, model.ErrQueueNotFound)
	}
	return q, nil
}

// SetRouting maps a job type to a queue. Explicit rules outrank the
// priority-based fallback.
func (m *Manager) SetRouting(jobType, queueName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[queueName]; !ok {
		return fmt.Errorf("%s: %w", queueName, model.ErrQueueNotFound)
	}
	m.routing[jobType] = queueName
	return nil
}

// RouteFor resolves which queue a job belongs to: the explicit job-type rule
// wins, then CRITICAL/HIGH go to the high-priority queue, BATCH/MAINTENANCE
// to the batch queue, everything else to standard.
func (m *Manager) RouteFor(job *model.Job) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if name, ok := m.routing[job.Type]; ok {
		return name
	}
	var fallback string
	switch job.Priority {
	case model.PriorityCritical, model.PriorityHigh:
		fallback = QueueHighPriority
	case model.PriorityBatch, model.PriorityMaintenance:
		fallback = QueueBatch
	default:
		fallback = QueueStandard
	}
	if _, ok := m.queues[fallback]; ok {
		return fallback
	}
	// Degenerate setup with no default queues: route to any queue, by name
	// for determinism.
	names := make([]string, 0, len(m.queues))
	for name := range m.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		return names[0]
	}
	return fallback
}

// AddJob routes the job and enqueues it, returning the chosen queue name.
func (m *Manager) AddJob(job *model.Job) (string, error) {
	name := m.RouteFor(job)
	q, err := m.Queue(name)
	if err != nil {
		return "", err
	}
	if err := q.AddJob(job); err != nil {
		return "", err
	}
	return name, nil
}

// NextJob pulls the next job from the named queue, or, with an empty name,
// from the first queue with selectable work (high-priority first, then
// standard, batch, then the rest by name).
func (m *Manager) NextJob(queueName string) (string, *model.Job, error) {
	if queueName != "" {
		q, err := m.Queue(queueName)
		if err != nil {
			return "", nil, err
		}
		return queueName, q.NextJob(), nil
	}

	for _, q := range m.queuesInServiceOrder() {
		if job := q.NextJob(); job != nil {
			return q.Name(), job, nil
		}
	}
	return "", nil, nil
}

// queuesInServiceOrder lists queues with the well-known ones leading.
func (m *Manager) queuesInServiceOrder() []*Queue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ordered := make([]*Queue, 0, len(m.queues))
	seen := make(map[string]bool)
	for _, name := range []string{QueueHighPriority, QueueStandard, QueueBatch} {
		if q, ok := m.queues[name]; ok {
			ordered = append(ordered, q)
			seen[name] = true
		}
	}
	rest := make([]string, 0, len(m.queues))
	for name := range m.queues {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		ordered = append(ordered, m.queues[name])
	}
	return ordered
}

// RemoveJob removes the job from whichever queue holds it.
// Returns the holding queue's name and whether removal happened.
func (m *Manager) RemoveJob(jobID string) (string, bool) {
	for _, q := range m.queuesInServiceOrder() {
		if q.RemoveJob(jobID) {
			return q.Name(), true
		}
	}
	return "", false
}

// Forget drops the job's finished bookkeeping from every queue. A rebalanced
// job can leave entries in more than one, so all of them are swept.
func (m *Manager) Forget(jobID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.queues {
		q.Forget(jobID)
	}
}

// Rebalance runs one load-balancing cycle: every queue above the occupancy
// threshold donates up to the configured fraction of its lowest-priority jobs
// to the least-loaded other queue with spare capacity. Returns the number of
// migrated jobs.
func (m *Manager) Rebalance() int {
	queues := m.queuesInServiceOrder()
	migrated := 0

	for _, src := range queues {
		if src.Occupancy() < m.cfg.RebalanceThreshold {
			continue
		}

		// Least-loaded other queue with spare capacity.
		var dst *Queue
		for _, cand := range queues {
			if cand == src || cand.Occupancy() >= 1.0 {
				continue
			}
			if candStatus := cand.Status(); candStatus.State != StateActive {
				continue
			}
			if dst == nil || cand.Occupancy() < dst.Occupancy() {
				dst = cand
			}
		}
		if dst == nil {
			continue
		}

		budget := int(float64(src.Size()) * m.cfg.DonationFraction)
		if budget < 1 {
			budget = 1
		}
		if spare := dst.Status().MaxSize - dst.Size(); budget > spare {
			budget = spare
		}
		if budget <= 0 {
			continue
		}

		donated := src.donateLowPriority(budget)
		for _, job := range donated {
			if err := dst.AddJob(job); err != nil {
				// Destination filled mid-cycle; put the job back.
				if rerr := src.AddJob(job); rerr != nil {
					m.logger.Error("rebalance lost capacity on both sides", "job_id", job.ID, "error", rerr)
				}
				continue
			}
			migrated++
		}
		if len(donated) > 0 {
			m.logger.Info("rebalanced queues", "from", src.Name(), "to", dst.Name(), "migrated", migrated)
		}
	}
	return migrated
}

// StatusAll returns snapshots for every queue, sorted by name.
func (m *Manager) StatusAll() []Status {
	m.mu.RLock()
	queues := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.RUnlock()

	statuses := make([]Status, 0, len(queues))
	for _, q := range queues {
		statuses = append(statuses, q.Status())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}
