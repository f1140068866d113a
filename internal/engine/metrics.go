package engine

import (
	"fmt"
	"time"

	"github.com/teoat/nexus378-sub000/internal/queue"
	"github.com/teoat/nexus378-sub000/pkg/model"
)

// MetricValue implements sla.MetricSource over the engine's own statistics.
// Rates are percentages; times are seconds; throughput is jobs per minute.
func (e *Engine) MetricValue(metric model.SLAMetric) (float64, error) {
	e.mu.Lock()
	completed := e.completed
	failed := e.failed + e.timedOut
	startedAt := e.startedAt
	e.mu.Unlock()

	switch metric {
	case model.MetricSuccessRate:
		finished := completed + failed
		if finished == 0 {
			return 100, nil
		}
		return 100 * float64(completed) / float64(finished), nil

	case model.MetricErrorRate:
		finished := completed + failed
		if finished == 0 {
			return 0, nil
		}
		return 100 * float64(failed) / float64(finished), nil

	case model.MetricThroughput:
		minutes := time.Since(startedAt).Minutes()
		if minutes <= 0 {
			return 0, nil
		}
		return float64(completed) / minutes, nil

	case model.MetricAvailability:
		statuses := e.queues.StatusAll()
		if len(statuses) == 0 {
			return 0, nil
		}
		active := 0
		for _, st := range statuses {
			if st.State == queue.StateActive {
				active++
			}
		}
		return 100 * float64(active) / float64(len(statuses)), nil

	case model.MetricQueueTime:
		return e.avgQueueSeconds(func(st queue.Status) time.Duration { return st.AvgWaitTime }), nil

	case model.MetricProcessingTime:
		return e.avgQueueSeconds(func(st queue.Status) time.Duration { return st.AvgProcessingTime }), nil

	case model.MetricResponseTime:
		return e.avgQueueSeconds(func(st queue.Status) time.Duration {
			return st.AvgWaitTime + st.AvgProcessingTime
		}), nil
	}
	return 0, fmt.Errorf("unknown metric %q", metric)
}

// avgQueueSeconds averages a per-queue duration across queues that have seen
// any traffic.
func (e *Engine) avgQueueSeconds(pick func(queue.Status) time.Duration) float64 {
	var sum time.Duration
	n := 0
	for _, st := range e.queues.StatusAll() {
		d := pick(st)
		if d <= 0 {
			continue
		}
		sum += d
		n++
	}
	if n == 0 {
		return 0
	}
	return (sum / time.Duration(n)).Seconds()
}
