package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{
			name:            "default timeout",
			timeout:         0,
			expectedTimeout: 5 * time.Second,
		},
		{
			name:            "custom timeout",
			timeout:         10 * time.Second,
			expectedTimeout: 10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(tt.timeout)

			if checker.timeout != tt.expectedTimeout {
				t.Errorf("expected timeout %v, got %v", tt.expectedTimeout, checker.timeout)
			}
			if checker.CheckCount() != 0 {
				t.Errorf("expected 0 checks, got %d", checker.CheckCount())
			}
		})
	}
}

func TestRegisterCheck_Replaces(t *testing.T) {
	checker := New(time.Second)

	checker.RegisterCheck("store", func(ctx context.Context) error { return errors.New("down") })
	checker.RegisterCheck("store", func(ctx context.Context) error { return nil })

	if checker.CheckCount() != 1 {
		t.Fatalf("expected 1 check after replacement, got %d", checker.CheckCount())
	}

	status := checker.Check(context.Background())
	if status.Status != StatusOK {
		t.Errorf("expected replacement check to win, got status %q", status.Status)
	}
}

func TestCheck_AllHealthy(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterCheck("store", func(ctx context.Context) error { return nil })
	checker.RegisterCheck("queue", func(ctx context.Context) error { return nil })

	status := checker.Check(context.Background())

	if status.Status != StatusOK {
		t.Errorf("expected status %q, got %q", StatusOK, status.Status)
	}
	if len(status.Checks) != 2 {
		t.Fatalf("expected 2 check results, got %d", len(status.Checks))
	}
	for name, result := range status.Checks {
		if result.Status != StatusOK {
			t.Errorf("check %s: expected %q, got %q", name, StatusOK, result.Status)
		}
		if result.Message != "" {
			t.Errorf("check %s: expected no message, got %q", name, result.Message)
		}
	}
	if status.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestCheck_Degraded(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterCheck("store", func(ctx context.Context) error { return nil })
	checker.RegisterCheck("providers", func(ctx context.Context) error {
		return errors.New("no healthy provider")
	})

	status := checker.Check(context.Background())

	if status.Status != StatusDegraded {
		t.Errorf("expected status %q, got %q", StatusDegraded, status.Status)
	}
	if status.Checks["store"].Status != StatusOK {
		t.Errorf("expected store ok, got %q", status.Checks["store"].Status)
	}
	providers := status.Checks["providers"]
	if providers.Status != StatusUnhealthy {
		t.Errorf("expected providers unhealthy, got %q", providers.Status)
	}
	if providers.Message != "no healthy provider" {
		t.Errorf("expected failure message, got %q", providers.Message)
	}
}

func TestCheck_NoChecks(t *testing.T) {
	checker := New(time.Second)

	status := checker.Check(context.Background())

	if status.Status != StatusOK {
		t.Errorf("expected empty checker to report %q, got %q", StatusOK, status.Status)
	}
	if len(status.Checks) != 0 {
		t.Errorf("expected no check results, got %d", len(status.Checks))
	}
}

func TestCheck_Timeout(t *testing.T) {
	checker := New(50 * time.Millisecond)
	checker.RegisterCheck("stuck", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	status := checker.Check(context.Background())
	elapsed := time.Since(start)

	if status.Status != StatusDegraded {
		t.Errorf("expected status %q, got %q", StatusDegraded, status.Status)
	}
	result := status.Checks["stuck"]
	if result.Status != StatusUnhealthy {
		t.Errorf("expected stuck check unhealthy, got %q", result.Status)
	}
	if !strings.Contains(result.Message, "timed out") {
		t.Errorf("expected timeout message, got %q", result.Message)
	}
	if elapsed > time.Second {
		t.Errorf("expected check to return near the 50ms deadline, took %v", elapsed)
	}
}

func TestCheck_RunsConcurrently(t *testing.T) {
	checker := New(time.Second)
	for _, name := range []string{"a", "b", "c"} {
		checker.RegisterCheck(name, func(ctx context.Context) error {
			time.Sleep(50 * time.Millisecond)
			return nil
		})
	}

	start := time.Now()
	status := checker.Check(context.Background())
	elapsed := time.Since(start)

	if status.Status != StatusOK {
		t.Fatalf("expected status %q, got %q", StatusOK, status.Status)
	}
	// Three 50ms checks run in parallel, not 150ms back to back.
	if elapsed > 140*time.Millisecond {
		t.Errorf("expected concurrent checks, took %v", elapsed)
	}
}

func TestHandler_Healthy(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterCheck("store", func(ctx context.Context) error { return nil })

	rec := httptest.NewRecorder()
	checker.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var status Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if status.Status != StatusOK {
		t.Errorf("expected body status %q, got %q", StatusOK, status.Status)
	}
	if _, ok := status.Checks["store"]; !ok {
		t.Error("expected store check in body")
	}
}

func TestHandler_Degraded(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterCheck("queue", func(ctx context.Context) error { return errors.New("closed") })

	rec := httptest.NewRecorder()
	checker.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}

	var status Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if status.Checks["queue"].Message != "closed" {
		t.Errorf("expected failure message in body, got %q", status.Checks["queue"].Message)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	checker := New(time.Second)

	rec := httptest.NewRecorder()
	checker.Handler()(rec, httptest.NewRequest(http.MethodPost, "/health", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rec.Code)
	}
}

func TestHandler_Head(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterCheck("store", func(ctx context.Context) error { return nil })

	rec := httptest.NewRecorder()
	checker.Handler()(rec, httptest.NewRequest(http.MethodHead, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for HEAD, got %d bytes", rec.Body.Len())
	}
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler("1.2.3", "abc123", "2026-08-25T00:00:00Z")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var info VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if info.Version != "1.2.3" || info.Commit != "abc123" {
		t.Errorf("expected version fields echoed, got %+v", info)
	}
	if !strings.HasPrefix(info.GoVersion, "go") {
		t.Errorf("expected runtime go version, got %q", info.GoVersion)
	}
}
