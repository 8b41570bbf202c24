// Package logging configures structured logging for the pipeline.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - Structured logging with JSON and text formats
//   - Context-aware logging with request and task identifiers
//   - Per-component loggers (queue, analyzer, committer, ...)
//   - Credential masking for configuration summaries
//
// # Usage
//
//	// Install the process-wide logger
//	if err := logging.Setup(logging.Config{Level: "info", Format: "json"}); err != nil {
//	    return err
//	}
//
//	// Create a component logger
//	log := logging.Component("queue")
//	log.Info("worker started", "concurrency", 5)
//
//	// Context-aware logging carries request_id / task_id automatically
//	ctx = logging.WithTaskID(ctx, task.ID)
//	log.InfoContext(ctx, "stage complete", logging.ContextAttrs(ctx)...)
package logging
