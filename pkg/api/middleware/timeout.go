package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"forgehq/loom/pkg/api/types"
	"forgehq/loom/pkg/telemetry/logging"
)

// TimeoutMiddleware enforces a per-request deadline. When it expires
// the handler's context is cancelled and a 504 envelope is written. A
// timeout of zero or less disables the middleware.
//
// The deadline covers the whole request including store and queue
// round-trips; handlers must respect context cancellation.
//
// Example usage:
//
//	handler = TimeoutMiddleware(30 * time.Second)(handler)
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(w, r.WithContext(ctx))
			}()

			select {
			case <-done:
				return

			case <-ctx.Done():
				if ctx.Err() != context.DeadlineExceeded {
					return
				}

				// Log against the parent context; ctx is already
				// cancelled.
				slog.WarnContext(r.Context(), "request timed out",
					"request_id", logging.GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"timeout", timeout.String(),
				)

				errResp := types.NewErrorResponse(types.CodeTimeout,
					"Request timeout: the request took too long to complete")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusGatewayTimeout)
				_ = json.NewEncoder(w).Encode(errResp)
			}
		})
	}
}
