package metrics

import (
	"time"

	"forgehq/loom/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every Prometheus metric the pipeline exports and the
// registry they live in. Component code records through the typed methods;
// the server mounts Handler() at the configured metrics path.
//
// Every label in the schema is bounded: statuses and stages are enums,
// providers and models come from configuration, and HTTP routes are
// patterns. Nothing user-supplied reaches a label.
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	taskMetrics     *TaskMetrics
	stageMetrics    *StageMetrics
	providerMetrics *ProviderMetrics
	queueMetrics    *QueueMetrics
	httpMetrics     *HTTPMetrics
}

// NewCollector creates a metrics collector registered against registry.
// A nil registry gets a fresh private one.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "loom"
	}

	return &Collector{
		config:          cfg,
		registry:        registry,
		taskMetrics:     NewTaskMetrics(cfg.Namespace, registry),
		stageMetrics:    NewStageMetrics(cfg.Namespace, registry),
		providerMetrics: NewProviderMetrics(cfg.Namespace, registry),
		queueMetrics:    NewQueueMetrics(cfg.Namespace, registry),
		httpMetrics:     NewHTTPMetrics(cfg.Namespace, registry),
	}
}

// RecordTask counts a task entering status, with the time since creation
// when known. Zero duration skips the histogram.
func (c *Collector) RecordTask(status string, duration time.Duration) {
	if !c.config.IsEnabled() {
		return
	}
	c.taskMetrics.Record(status, duration)
}

// RecordStage observes one pipeline stage execution.
func (c *Collector) RecordStage(stage string, duration time.Duration, failed bool) {
	if !c.config.IsEnabled() {
		return
	}
	c.stageMetrics.Record(stage, duration, failed)
}

// RecordProviderCall observes one provider dispatch. errorType is empty
// for a success (see providers.ErrorType).
func (c *Collector) RecordProviderCall(provider, model string, duration time.Duration, errorType string) {
	if !c.config.IsEnabled() {
		return
	}
	c.providerMetrics.RecordCall(provider, model, duration, errorType)
}

// UpdateProviderHealth sets the health gauge for a provider.
func (c *Collector) UpdateProviderHealth(provider string, healthy bool) {
	if !c.config.IsEnabled() {
		return
	}
	c.providerMetrics.UpdateHealth(provider, healthy)
}

// SetQueueDepth records the current number of jobs in a queue state.
func (c *Collector) SetQueueDepth(state string, count int) {
	if !c.config.IsEnabled() {
		return
	}
	c.queueMetrics.SetDepth(state, count)
}

// RecordJobOutcome counts a job settlement ("completed", "retried",
// "failed", "stalled").
func (c *Collector) RecordJobOutcome(outcome string) {
	if !c.config.IsEnabled() {
		return
	}
	c.queueMetrics.RecordOutcome(outcome)
}

// RecordHTTPRequest observes one served API request. route must be the
// route pattern, not the raw URL path.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if !c.config.IsEnabled() {
		return
	}
	c.httpMetrics.Record(method, route, status, duration)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
