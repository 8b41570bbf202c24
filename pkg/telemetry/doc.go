// Package telemetry groups the observability building blocks.
//
// # Components
//
//   - logging: structured slog setup with component loggers and
//     request/task context attributes
//   - metrics: Prometheus collector for task, stage, provider, queue and
//     HTTP metrics, served on the configured metrics path
//   - health: dependency reachability checks served on /health
//
// The subpackages are wired by pkg/server; nothing here keeps global
// state beyond the process-wide slog default installed by logging.Setup.
package telemetry
