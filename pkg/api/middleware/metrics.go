package middleware

import (
	"net/http"
	"time"
)

// MetricsRecorder receives one observation per completed HTTP request.
// *metrics.Collector satisfies it.
type MetricsRecorder interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// MetricsMiddleware records request counts and latencies per route. The
// route is the registered pattern, not the raw URL path, so ids don't
// explode label cardinality. A nil recorder disables the middleware.
//
// Example usage:
//
//	handler = MetricsMiddleware(collector, "/api/requirement-tasks/{taskId}")(handler)
func MetricsMiddleware(recorder MetricsRecorder, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			recorder.RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(startTime))
		})
	}
}
