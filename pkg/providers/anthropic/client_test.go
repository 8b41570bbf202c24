package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"forgehq/loom/pkg/providers"
)

func testConfig(baseURL string) providers.ProviderConfig {
	return providers.ProviderConfig{
		Name:    "anthropic",
		BaseURL: baseURL,
		APIKey:  "sk-ant-test",
		Model:   "claude-sonnet-4-20250514",
		Enabled: true,
		Timeout: 5 * time.Second,
	}
}

func TestSendCompletion(t *testing.T) {
	var gotPath, gotAPIKey, gotVersion string
	var gotReq MessagesRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg-1",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "hello"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 2}
		}`))
	}))
	defer server.Close()

	p, err := NewProvider(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	resp, err := p.SendCompletion(context.Background(), &providers.CompletionRequest{
		System:      "You are terse.",
		Prompt:      "Say hello.",
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("SendCompletion failed: %v", err)
	}

	if gotPath != "/v1/messages" {
		t.Errorf("expected path /v1/messages, got %s", gotPath)
	}
	if gotAPIKey != "sk-ant-test" {
		t.Errorf("expected x-api-key header, got %q", gotAPIKey)
	}
	if gotVersion != DefaultAnthropicVersion {
		t.Errorf("expected anthropic-version %q, got %q", DefaultAnthropicVersion, gotVersion)
	}
	if gotReq.System != "You are terse." {
		t.Errorf("expected top-level system field, got %q", gotReq.System)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("expected a single user message, got %+v", gotReq.Messages)
	}
	if gotReq.MaxTokens != DefaultMaxTokens {
		t.Errorf("expected default max_tokens %d, got %d", DefaultMaxTokens, gotReq.MaxTokens)
	}
	if resp.Content != "hello" {
		t.Errorf("expected content %q, got %q", "hello", resp.Content)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Errorf("expected 12 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestSendCompletion_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content": []}`))
	}))
	defer server.Close()

	p, err := NewProvider(testConfig(server.URL))
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	_, err = p.SendCompletion(context.Background(), &providers.CompletionRequest{Prompt: "hi"})
	var parseErr *providers.ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected ParseError for empty content, got %T: %v", err, err)
	}
}

func TestSendCompletion_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": "overloaded"}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 1
	p, err := NewProvider(cfg)
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	_, err = p.SendCompletion(context.Background(), &providers.CompletionRequest{Prompt: "hi"})
	var providerErr *providers.ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError for 503, got %T: %v", err, err)
	}
	if providerErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", providerErr.StatusCode)
	}
	if !providers.IsRetryable(err) {
		t.Error("expected 503 provider error to be retryable")
	}
}

func TestNewProvider_RequiresAPIKey(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.APIKey = ""
	_, err := NewProvider(cfg)
	var configErr *providers.ConfigError
	if !errors.As(err, &configErr) {
		t.Errorf("expected ConfigError, got %T: %v", err, err)
	}
}
