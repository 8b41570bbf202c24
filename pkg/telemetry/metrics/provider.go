package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics tracks LLM provider health and performance.
//
// Metrics:
//   - loom_provider_health: provider health status (1=healthy, 0=unhealthy)
//   - loom_provider_latency_seconds: dispatch latency
//   - loom_provider_errors_total: provider errors by type
//   - loom_provider_calls_total: dispatches per provider and model
type ProviderMetrics struct {
	health  *prometheus.GaugeVec
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
	calls   *prometheus.CounterVec
}

// NewProviderMetrics creates and registers provider metrics with the registry.
func NewProviderMetrics(namespace string, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_health",
				Help:      "Provider health status (1=healthy, 0=unhealthy)",
			},
			[]string{"provider"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_latency_seconds",
				Help:      "Provider dispatch latency in seconds",
				Buckets:   stageDurationBuckets,
			},
			[]string{"provider", "model"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Total number of provider errors by type",
			},
			[]string{"provider", "error_type"},
		),

		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of dispatches to each provider",
			},
			[]string{"provider", "model"},
		),
	}

	registry.MustRegister(
		pm.health,
		pm.latency,
		pm.errors,
		pm.calls,
	)

	return pm
}

// RecordCall observes one dispatch. errorType is empty for a success;
// error types follow the provider error taxonomy ("rate_limit", "timeout",
// "auth", "server_error", "client_error", "network", "parse", ...).
func (pm *ProviderMetrics) RecordCall(provider, model string, duration time.Duration, errorType string) {
	pm.calls.WithLabelValues(provider, model).Inc()
	pm.latency.WithLabelValues(provider, model).Observe(duration.Seconds())
	if errorType != "" {
		pm.errors.WithLabelValues(provider, errorType).Inc()
	}
}

// UpdateHealth sets the health gauge for a provider.
func (pm *ProviderMetrics) UpdateHealth(provider string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	pm.health.WithLabelValues(provider).Set(value)
}
