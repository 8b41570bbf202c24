// Package server provides the HTTP server for the task API.
//
// It mounts the api package's handlers under the configured prefix,
// wires the middleware chain around them, and manages the server
// lifecycle: start, graceful shutdown and OS signals (SIGTERM, SIGINT).
//
// # Basic Usage
//
//	srv := server.New(server.Options{
//	    Config:    &cfg.Server,
//	    Auth:      &cfg.Auth,
//	    Store:     st,
//	    Queue:     q,
//	    Collector: collector,
//	    Checker:   checker,
//	})
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Start blocks until the context is cancelled, a signal arrives or the
// listener fails, then drains in-flight requests for up to the
// configured shutdown timeout.
//
// # Routes
//
//	POST {prefix}/requirement-tasks              submit a requirement
//	GET  {prefix}/requirement-tasks              list tasks
//	GET  {prefix}/requirement-tasks/{taskId}     poll one task
//	GET  {prefix}/requirement-tasks/queue/stats  queue census
//	POST {prefix}/requirement-tasks/queue/clean  remove terminal jobs
//	GET  /health                                 dependency health
//	GET  /metrics                                Prometheus exposition
//	GET  /version                                build information
//
// # Middleware Chain
//
// Requests pass through, outermost first:
//
//  1. Recovery: turns panics into 500 envelopes
//  2. RequestID: assigns or propagates X-Request-ID
//  3. Logging: one structured line per request
//  4. CORS: cross-origin headers and preflight
//  5. Timeout: per-request deadline
//  6. Auth: shared-secret guard, API subtree only
//
// Health, metrics and version sit outside the guard so probes and
// scrapers need no credentials.
package server
