// Package middleware provides the HTTP middleware chain of the task
// API server.
//
// The server applies them outermost first:
//
//	Recovery → RequestID → Logging → CORS → Timeout → Auth
//
// Recovery sits outside everything so a panic anywhere in the chain
// still produces a well-formed 500. Auth sits innermost and only wraps
// the API subtree; health and metrics endpoints stay unguarded so
// probes and scrapers need no credentials.
package middleware
