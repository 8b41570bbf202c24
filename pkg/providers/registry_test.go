package providers

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

// fakeProvider records calls and answers from a script.
type fakeProvider struct {
	name     string
	protocol Protocol
	enabled  bool
	content  string
	err      error
	calls    int
	lastReq  *CompletionRequest
}

func (f *fakeProvider) SendCompletion(_ context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &CompletionResponse{
		Provider: f.name,
		Model:    req.Model,
		Content:  f.content,
	}, nil
}

func (f *fakeProvider) HealthCheck(context.Context) error { return nil }

func (f *fakeProvider) GetName() string { return f.name }

func (f *fakeProvider) GetProtocol() Protocol { return f.protocol }

func (f *fakeProvider) GetConfig() ProviderConfig {
	return ProviderConfig{
		Name:     f.name,
		Protocol: f.protocol,
		Enabled:  f.enabled,
	}
}

func (f *fakeProvider) IsHealthy() bool { return true }

func (f *fakeProvider) GetHealth() ProviderHealth {
	return ProviderHealth{IsHealthy: true, LastCheck: time.Now()}
}

func (f *fakeProvider) Close() error { return nil }

func newFake(name string, protocol Protocol, enabled bool) *fakeProvider {
	return &fakeProvider{
		name:     name,
		protocol: protocol,
		enabled:  enabled,
		content:  "response from " + name,
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts RegistryOptions
	}{
		{
			name: "empty provider set",
			opts: RegistryOptions{},
		},
		{
			name: "duplicate names",
			opts: RegistryOptions{
				Providers: []Provider{
					newFake("a", ProtocolOpenAIChat, true),
					newFake("a", ProtocolOllamaGenerate, true),
				},
			},
		},
		{
			name: "unknown default",
			opts: RegistryOptions{
				Providers:       []Provider{newFake("a", ProtocolOpenAIChat, true)},
				DefaultProvider: "missing",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.opts); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNewRegistry_DefaultsToFirstProvider(t *testing.T) {
	reg, err := NewRegistry(RegistryOptions{
		Providers: []Provider{
			newFake("first", ProtocolOpenAIChat, true),
			newFake("second", ProtocolAnthropicMessages, true),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := reg.DefaultProvider(); got != "first" {
		t.Errorf("expected default provider %q, got %q", "first", got)
	}
}

func TestCall_UsesDefaultProvider(t *testing.T) {
	primary := newFake("primary", ProtocolOpenAIChat, true)
	secondary := newFake("secondary", ProtocolAnthropicMessages, true)

	reg, err := NewRegistry(RegistryOptions{
		Providers:       []Provider{primary, secondary},
		DefaultProvider: "primary",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := reg.Call(context.Background(), "do the thing", "be brief", CallOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Provider != "primary" {
		t.Errorf("expected response from primary, got %q", resp.Provider)
	}
	if secondary.calls != 0 {
		t.Errorf("expected secondary untouched, got %d calls", secondary.calls)
	}
	if primary.lastReq.System != "be brief" {
		t.Errorf("expected system prompt forwarded, got %q", primary.lastReq.System)
	}
	if primary.lastReq.Temperature != DefaultTemperature {
		t.Errorf("expected default temperature %v, got %v", DefaultTemperature, primary.lastReq.Temperature)
	}
}

func TestCall_FallsBackOnFailure(t *testing.T) {
	primary := newFake("primary", ProtocolOpenAIChat, true)
	primary.err = &ProviderError{Provider: "primary", StatusCode: 503, Message: "unavailable"}
	secondary := newFake("secondary", ProtocolAnthropicMessages, true)

	reg, err := NewRegistry(RegistryOptions{
		Providers:       []Provider{primary, secondary},
		FallbackOrder:   []string{"primary", "secondary"},
		DefaultProvider: "primary",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := reg.Call(context.Background(), "prompt", "", CallOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Provider != "secondary" {
		t.Errorf("expected fallback to secondary, got %q", resp.Provider)
	}
	if primary.calls != 1 {
		t.Errorf("expected a single call to primary, got %d", primary.calls)
	}
}

func TestCall_DisableFallbackReturnsError(t *testing.T) {
	primary := newFake("primary", ProtocolOpenAIChat, true)
	primary.err = &ProviderError{Provider: "primary", StatusCode: 500, Message: "boom"}
	secondary := newFake("secondary", ProtocolAnthropicMessages, true)

	reg, err := NewRegistry(RegistryOptions{
		Providers:       []Provider{primary, secondary},
		DefaultProvider: "primary",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = reg.Call(context.Background(), "prompt", "", CallOptions{DisableFallback: true})
	if err == nil {
		t.Fatal("expected error with fallback disabled, got nil")
	}

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Errorf("expected ProviderError, got %T", err)
	}
	if secondary.calls != 0 {
		t.Errorf("expected secondary untouched with fallback disabled, got %d calls", secondary.calls)
	}
}

func TestCall_SkipsDisabledTarget(t *testing.T) {
	disabled := newFake("disabled", ProtocolOpenAIChat, false)
	backup := newFake("backup", ProtocolOllamaGenerate, true)

	reg, err := NewRegistry(RegistryOptions{
		Providers:       []Provider{disabled, backup},
		DefaultProvider: "disabled",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := reg.Call(context.Background(), "prompt", "", CallOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Provider != "backup" {
		t.Errorf("expected fallback past disabled provider, got %q", resp.Provider)
	}
	if disabled.calls != 0 {
		t.Errorf("expected no calls to disabled provider, got %d", disabled.calls)
	}
}

func TestCallWithFallback_HonorsOrderAndExclusions(t *testing.T) {
	a := newFake("a", ProtocolOpenAIChat, true)
	a.err = fmt.Errorf("a is down")
	b := newFake("b", ProtocolAnthropicMessages, true)
	c := newFake("c", ProtocolOllamaGenerate, true)

	reg, err := NewRegistry(RegistryOptions{
		Providers:     []Provider{a, b, c},
		FallbackOrder: []string{"a", "b", "c"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := reg.CallWithFallback(context.Background(), "prompt", "", CallOptions{
		ExcludeProviders: []string{"b"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Provider != "c" {
		t.Errorf("expected c after a failed and b excluded, got %q", resp.Provider)
	}
	if b.calls != 0 {
		t.Errorf("expected excluded provider untouched, got %d calls", b.calls)
	}
}

func TestCallWithFallback_AllFail(t *testing.T) {
	a := newFake("a", ProtocolOpenAIChat, true)
	a.err = fmt.Errorf("a is down")
	b := newFake("b", ProtocolAnthropicMessages, true)
	b.err = fmt.Errorf("b is down")

	reg, err := NewRegistry(RegistryOptions{
		Providers: []Provider{a, b},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = reg.CallWithFallback(context.Background(), "prompt", "", CallOptions{})
	if err == nil {
		t.Fatal("expected error when every provider fails, got nil")
	}
	if !errors.Is(err, b.err) {
		t.Errorf("expected last failure %v in chain, got %v", b.err, err)
	}
}

func TestCallWithFallback_NoEnabledProvider(t *testing.T) {
	reg, err := NewRegistry(RegistryOptions{
		Providers: []Provider{newFake("a", ProtocolOpenAIChat, false)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = reg.CallWithFallback(context.Background(), "prompt", "", CallOptions{})
	if err == nil {
		t.Fatal("expected error with no enabled providers, got nil")
	}
}

func TestListAvailable(t *testing.T) {
	reg, err := NewRegistry(RegistryOptions{
		Providers: []Provider{
			newFake("a", ProtocolOpenAIChat, true),
			newFake("b", ProtocolAnthropicMessages, false),
			newFake("c", ProtocolOllamaGenerate, true),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := reg.ListAvailable()
	want := []string{"a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestListByProtocol(t *testing.T) {
	reg, err := NewRegistry(RegistryOptions{
		Providers: []Provider{
			newFake("codellama", ProtocolOllamaGenerate, true),
			newFake("openai", ProtocolOpenAIChat, true),
			newFake("deepseek", ProtocolOllamaGenerate, true),
			newFake("off", ProtocolOllamaGenerate, false),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := reg.ListByProtocol(ProtocolOllamaGenerate)
	want := []string{"codellama", "deepseek"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
		want    bool
	}{
		{name: "lowercase ok", content: "ok", want: true},
		{name: "uppercase OK", content: "OK", want: true},
		{name: "ok inside sentence", content: "Sure: OK.", want: true},
		{name: "unrelated answer", content: "hello there", want: false},
		{name: "call failure", err: fmt.Errorf("connection refused"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFake("target", ProtocolOllamaGenerate, true)
			p.content = tt.content
			p.err = tt.err

			reg, err := NewRegistry(RegistryOptions{Providers: []Provider{p}})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, err := reg.Probe(context.Background(), "target")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestProbe_UnknownProvider(t *testing.T) {
	reg, err := NewRegistry(RegistryOptions{
		Providers: []Provider{newFake("a", ProtocolOpenAIChat, true)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := reg.Probe(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown provider, got nil")
	}
}
