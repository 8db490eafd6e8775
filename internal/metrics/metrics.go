// Package metrics instruments the courier engine with Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jzx17/gocourier/pkg/task"
	"github.com/jzx17/gocourier/pkg/types"
)

const (
	MetricTasksSubmitted      = "tasks_submitted_total"
	MetricTasksCompleted      = "tasks_completed_total"
	MetricTasksHarvested      = "tasks_harvested_total"
	MetricTaskDuration        = "task_duration_seconds"
	MetricQueueTasks          = "queue_tasks"
	MetricInvariantViolations = "invariant_violations_total"

	subsystem = "engine"
)

// Collector holds the engine metrics. The zero value is not usable; a nil
// *Collector is, and records nothing.
type Collector struct {
	submitted  *prometheus.CounterVec
	completed  *prometheus.CounterVec
	harvested  prometheus.Counter
	duration   *prometheus.HistogramVec
	queue      *prometheus.GaugeVec
	violations prometheus.Counter
}

// New creates a Collector and registers it with reg. A nil reg leaves the
// collectors unregistered, which is what tests and embedders without a
// metrics endpoint want.
func New(reg prometheus.Registerer, namespace string) (*Collector, error) {
	c := &Collector{
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      MetricTasksSubmitted,
				Help:      "Number of tasks accepted by Submit.",
			},
			[]string{"type"},
		),
		completed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      MetricTasksCompleted,
				Help:      "Number of tasks finished by workers, by outcome.",
			},
			[]string{"type", "state"},
		),
		harvested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      MetricTasksHarvested,
				Help:      "Number of finished tasks returned by Harvest.",
			},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      MetricTaskDuration,
				Help:      "Handler execution time.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"type"},
		),
		queue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      MetricQueueTasks,
				Help:      "Tasks held by the queue, by state.",
			},
			[]string{"state"},
		),
		violations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      MetricInvariantViolations,
				Help:      "Harvests that found a pending notification but no finished task.",
			},
		),
	}

	if reg == nil {
		return c, nil
	}
	for _, col := range c.collectors() {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{c.submitted, c.completed, c.harvested, c.duration, c.queue, c.violations}
}

// Unregister removes the collectors from reg
func (c *Collector) Unregister(reg prometheus.Registerer) {
	if c == nil || reg == nil {
		return
	}
	for _, col := range c.collectors() {
		reg.Unregister(col)
	}
}

// TaskSubmitted counts an accepted submission
func (c *Collector) TaskSubmitted(typ task.Type) {
	if c == nil {
		return
	}
	c.submitted.WithLabelValues(string(typ)).Inc()
}

// TaskCompleted records a worker finishing a task. Its signature matches
// worker.CompletionFunc.
func (c *Collector) TaskCompleted(typ task.Type, state task.State, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.completed.WithLabelValues(string(typ), state.String()).Inc()
	c.duration.WithLabelValues(string(typ)).Observe(elapsed.Seconds())
}

// Harvested counts tasks returned to the caller
func (c *Collector) Harvested(n int) {
	if c == nil || n == 0 {
		return
	}
	c.harvested.Add(float64(n))
}

// InvariantViolation counts a pending notification with nothing to harvest
func (c *Collector) InvariantViolation() {
	if c == nil {
		return
	}
	c.violations.Inc()
}

// ObserveQueue publishes the queue composition
func (c *Collector) ObserveQueue(stats types.QueueStats) {
	if c == nil {
		return
	}
	c.queue.WithLabelValues(task.StateCreated.String()).Set(float64(stats.Created))
	c.queue.WithLabelValues(task.StateStarted.String()).Set(float64(stats.Started))
	c.queue.WithLabelValues("finished").Set(float64(stats.Finished))
}
