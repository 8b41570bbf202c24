package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// taskDurationBuckets cover the lifetime of a requirement task: four LLM
// stages plus a clone and push, so seconds up to minutes.
var taskDurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600}

// TaskMetrics tracks requirement task outcomes.
//
// Metrics:
//   - loom_tasks_total: tasks entering each status
//   - loom_task_duration_seconds: creation-to-terminal duration by status
type TaskMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewTaskMetrics creates and registers task metrics with the registry.
func NewTaskMetrics(namespace string, registry *prometheus.Registry) *TaskMetrics {
	tm := &TaskMetrics{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total number of tasks entering each status",
			},
			[]string{"status"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Time from task creation to a terminal status",
				Buckets:   taskDurationBuckets,
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(tm.total, tm.duration)

	return tm
}

// Record counts a task entering status, observing the time since creation
// when it is known.
func (tm *TaskMetrics) Record(status string, duration time.Duration) {
	tm.total.WithLabelValues(status).Inc()
	if duration > 0 {
		tm.duration.WithLabelValues(status).Observe(duration.Seconds())
	}
}
