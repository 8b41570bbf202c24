// Package metrics provides Prometheus metrics collection for the pipeline.
//
// # Overview
//
// The metrics package covers the requirement pipeline end to end: task
// outcomes, per-stage durations, LLM provider health and latency, queue
// depth, and the HTTP API surface. A single Collector owns the registry
// and every metric family.
//
// # Metric Categories
//
//   - Task metrics: tasks by status, creation-to-terminal duration
//   - Stage metrics: per-stage duration histograms and failure counts
//   - Provider metrics: health gauge, dispatch latency, calls, errors by type
//   - Queue metrics: jobs by state, settlement outcomes
//   - HTTP metrics: request counts and duration by method and route
//
// # Usage
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//
//	// Record a stage execution
//	collector.RecordStage("code_generation", 3200*time.Millisecond, false)
//
//	// Record a provider dispatch
//	collector.RecordProviderCall("openai", "gpt-4o", 950*time.Millisecond, "")
//
//	// Expose the endpoint
//	mux.Handle("/metrics", collector.Handler())
//
// # Histogram Buckets
//
// Buckets are sized for LLM workloads rather than web latencies:
//
//	Stage/provider duration: 0.1s to 120s (the generation timeout)
//	Task duration: 1s to 600s (a full pipeline run)
//	HTTP duration: standard Prometheus buckets
//
// # Cardinality
//
// Every label is drawn from a bounded set: statuses and stages are enums,
// provider and model names come from configuration, queue states are fixed,
// and HTTP routes are patterns with path parameters collapsed. The package
// therefore needs no runtime cardinality guard.
package metrics
