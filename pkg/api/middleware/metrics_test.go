package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type recordedRequest struct {
	method string
	route  string
	status int
}

type stubRecorder struct {
	requests []recordedRequest
}

func (s *stubRecorder) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	s.requests = append(s.requests, recordedRequest{method: method, route: route, status: status})
}

func TestMetricsMiddleware(t *testing.T) {
	t.Run("records route and status", func(t *testing.T) {
		recorder := &stubRecorder{}
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		route := "/api/requirement-tasks/{taskId}"
		wrapped := MetricsMiddleware(recorder, route)(handler)

		req := httptest.NewRequest(http.MethodGet, "/api/requirement-tasks/abc-123", nil)
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)

		if len(recorder.requests) != 1 {
			t.Fatalf("expected 1 recorded request, got %d", len(recorder.requests))
		}
		got := recorder.requests[0]
		if got.method != http.MethodGet {
			t.Errorf("expected method GET, got %s", got.method)
		}
		if got.route != route {
			t.Errorf("expected route %q, got %q", route, got.route)
		}
		if got.status != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", got.status)
		}
	})

	t.Run("defaults status to 200 when handler writes body only", func(t *testing.T) {
		recorder := &stubRecorder{}
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		})

		wrapped := MetricsMiddleware(recorder, "/api/requirement-tasks")(handler)

		req := httptest.NewRequest(http.MethodGet, "/api/requirement-tasks", nil)
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)

		if len(recorder.requests) != 1 {
			t.Fatalf("expected 1 recorded request, got %d", len(recorder.requests))
		}
		if got := recorder.requests[0].status; got != http.StatusOK {
			t.Errorf("expected status 200, got %d", got)
		}
	})

	t.Run("nil recorder passes through", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		wrapped := MetricsMiddleware(nil, "/api/requirement-tasks")(handler)

		req := httptest.NewRequest(http.MethodGet, "/api/requirement-tasks", nil)
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
	})
}
