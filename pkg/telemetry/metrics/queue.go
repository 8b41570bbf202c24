package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QueueMetrics tracks job queue depth and settlements.
//
// Metrics:
//   - loom_queue_jobs: current jobs by state, from periodic Stats censuses
//   - loom_queue_outcomes_total: settled jobs by outcome
type QueueMetrics struct {
	jobs     *prometheus.GaugeVec
	outcomes *prometheus.CounterVec
}

// NewQueueMetrics creates and registers queue metrics with the registry.
func NewQueueMetrics(namespace string, registry *prometheus.Registry) *QueueMetrics {
	qm := &QueueMetrics{
		jobs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_jobs",
				Help:      "Current number of queue jobs by state",
			},
			[]string{"state"},
		),

		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_outcomes_total",
				Help:      "Total number of job settlements by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(qm.jobs, qm.outcomes)

	return qm
}

// SetDepth records the current number of jobs in a state.
func (qm *QueueMetrics) SetDepth(state string, count int) {
	qm.jobs.WithLabelValues(state).Set(float64(count))
}

// RecordOutcome counts a job settlement: "completed", "retried", "failed"
// or "stalled".
func (qm *QueueMetrics) RecordOutcome(outcome string) {
	qm.outcomes.WithLabelValues(outcome).Inc()
}
