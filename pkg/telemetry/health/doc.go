// Package health aggregates dependency reachability checks behind one
// HTTP endpoint.
//
// # Overview
//
// The server registers a check per dependency and mounts Handler at
// /health. Checks run concurrently, each under its own timeout, so the
// endpoint answers within one check budget even when a dependency hangs.
// The response is 200 with status "ok" when every dependency is
// reachable and 503 with status "degraded" otherwise, with per-check
// results in the body either way.
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//
//	checker.RegisterCheck("store", st.Ping)
//	checker.RegisterCheck("queue", q.Ping)
//	checker.RegisterCheck("providers", func(ctx context.Context) error {
//	    if len(registry.ListAvailable()) == 0 {
//	        return errors.New("no healthy provider")
//	    }
//	    return nil
//	})
//
//	mux.HandleFunc("/health", checker.Handler())
//	mux.HandleFunc("/version", health.VersionHandler("1.0.0", "abc123", "2026-08-25"))
//
// # Registered Checks
//
//   - store: task database answers a ping
//   - queue: job database answers a ping
//   - providers: at least one LLM provider is enabled and healthy
//
// # Example Response
//
// Healthy:
//
//	{
//	    "status": "ok",
//	    "checks": {
//	        "store": {"status": "ok", "duration_ms": 0.4},
//	        "queue": {"status": "ok", "duration_ms": 0.2},
//	        "providers": {"status": "ok", "duration_ms": 0.1}
//	    },
//	    "timestamp": "2026-08-25T10:30:00Z"
//	}
//
// Degraded:
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "store": {"status": "unhealthy", "message": "connection refused", "duration_ms": 12.7},
//	        "queue": {"status": "ok", "duration_ms": 0.2},
//	        "providers": {"status": "ok", "duration_ms": 0.1}
//	    },
//	    "timestamp": "2026-08-25T10:30:00Z"
//	}
package health
