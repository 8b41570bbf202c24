package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// stageDurationBuckets cover a single pipeline stage, dominated by LLM
// round trips: 100ms up to the 120s generation timeout.
var stageDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// StageMetrics tracks per-stage pipeline performance.
//
// Metrics:
//   - loom_stage_duration_seconds: stage duration histogram
//   - loom_stage_failures_total: failed stage executions
type StageMetrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewStageMetrics creates and registers stage metrics with the registry.
func NewStageMetrics(namespace string, registry *prometheus.Registry) *StageMetrics {
	sm := &StageMetrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stage executions in seconds",
				Buckets:   stageDurationBuckets,
			},
			[]string{"stage"},
		),

		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Total number of failed pipeline stage executions",
			},
			[]string{"stage"},
		),
	}

	registry.MustRegister(sm.duration, sm.failures)

	return sm
}

// Record observes one stage execution.
func (sm *StageMetrics) Record(stage string, duration time.Duration, failed bool) {
	sm.duration.WithLabelValues(stage).Observe(duration.Seconds())
	if failed {
		sm.failures.WithLabelValues(stage).Inc()
	}
}
