package api

import (
	"net/http"
	"strings"

	"forgehq/loom/pkg/api/middleware"
)

// Routes registers the requirement-task endpoints on mux under prefix.
// Patterns use method matching, so an unsupported method on a known
// path gets 405 from the mux. Each route is wrapped in the metrics
// middleware with its pattern as the route label; a nil recorder
// disables that.
func (h *Handler) Routes(mux *http.ServeMux, prefix string, recorder middleware.MetricsRecorder) {
	base := strings.TrimSuffix(prefix, "/") + "/requirement-tasks"

	register := func(method, path string, handler http.HandlerFunc) {
		mux.Handle(method+" "+path, middleware.MetricsMiddleware(recorder, path)(handler))
	}

	register(http.MethodPost, base, h.CreateTask)
	register(http.MethodGet, base, h.ListTasks)
	register(http.MethodGet, base+"/queue/stats", h.QueueStats)
	register(http.MethodPost, base+"/queue/clean", h.CleanQueue)

	// {taskId} matches a single segment, so the literal queue routes
	// above never shadow it.
	register(http.MethodGet, base+"/{taskId}", h.GetTask)
}
