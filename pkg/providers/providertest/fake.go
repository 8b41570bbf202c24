// Package providertest provides a scriptable in-memory Provider for
// exercising code that calls the registry without touching the network.
package providertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"forgehq/loom/pkg/providers"
)

type scripted struct {
	content string
	err     error
}

// Fake is a scriptable Provider. Responses are served from an installed
// handler, or from a queued script in order with the last entry sticky.
// Every request is recorded for assertions. Safe for concurrent use.
type Fake struct {
	name     string
	protocol providers.Protocol
	model    string
	enabled  bool

	mu       sync.Mutex
	script   []scripted
	requests []providers.CompletionRequest
	handler  func(req *providers.CompletionRequest) (string, error)
	closed   bool
}

// New creates an enabled Fake speaking the given protocol.
func New(name string, protocol providers.Protocol) *Fake {
	return &Fake{
		name:     name,
		protocol: protocol,
		model:    name + "-model",
		enabled:  true,
	}
}

// WithModel overrides the model name reported in responses.
func (f *Fake) WithModel(model string) *Fake {
	f.model = model
	return f
}

// Disable marks the provider disabled so the registry skips it.
func (f *Fake) Disable() *Fake {
	f.enabled = false
	return f
}

// Respond queues one successful response. When the script runs out the
// last entry keeps answering.
func (f *Fake) Respond(content string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, scripted{content: content})
	return f
}

// FailWith queues one failure.
func (f *Fake) FailWith(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, scripted{err: err})
	return f
}

// Handle installs fn as the response source. It takes precedence over
// any queued script.
func (f *Fake) Handle(fn func(req *providers.CompletionRequest) (string, error)) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = fn
	return f
}

// Calls returns how many completions have been requested.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of every recorded request, in order.
func (f *Fake) Requests() []providers.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]providers.CompletionRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// LastRequest returns the most recent request, or nil when none was
// made.
func (f *Fake) LastRequest() *providers.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	req := f.requests[len(f.requests)-1]
	return &req
}

// Closed reports whether Close has been called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// SendCompletion implements providers.Provider.
func (f *Fake) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.requests = append(f.requests, *req)
	handler := f.handler
	var next scripted
	hasScript := len(f.script) > 0
	if hasScript {
		next = f.script[0]
		if len(f.script) > 1 {
			f.script = f.script[1:]
		}
	}
	f.mu.Unlock()

	var content string
	var err error
	switch {
	case handler != nil:
		content, err = handler(req)
	case hasScript:
		content, err = next.content, next.err
	default:
		err = fmt.Errorf("providertest: %q has no scripted response", f.name)
	}
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = f.model
	}
	return &providers.CompletionResponse{
		Provider: f.name,
		Model:    model,
		Content:  content,
	}, nil
}

// HealthCheck implements providers.Provider.
func (f *Fake) HealthCheck(context.Context) error { return nil }

// GetName implements providers.Provider.
func (f *Fake) GetName() string { return f.name }

// GetProtocol implements providers.Provider.
func (f *Fake) GetProtocol() providers.Protocol { return f.protocol }

// GetConfig implements providers.Provider.
func (f *Fake) GetConfig() providers.ProviderConfig {
	return providers.ProviderConfig{
		Name:     f.name,
		Protocol: f.protocol,
		Model:    f.model,
		Enabled:  f.enabled,
	}
}

// IsHealthy implements providers.Provider.
func (f *Fake) IsHealthy() bool { return true }

// GetHealth implements providers.Provider.
func (f *Fake) GetHealth() providers.ProviderHealth {
	return providers.ProviderHealth{IsHealthy: true, LastCheck: time.Now()}
}

// Close implements providers.Provider.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Registry builds a registry over the given fakes, with the first fake
// as default and fallback order following the argument order.
func Registry(t interface{ Fatalf(string, ...interface{}) }, fakes ...*Fake) *providers.Registry {
	ps := make([]providers.Provider, len(fakes))
	names := make([]string, len(fakes))
	for i, fake := range fakes {
		ps[i] = fake
		names[i] = fake.name
	}

	reg, err := providers.NewRegistry(providers.RegistryOptions{
		Providers:     ps,
		FallbackOrder: names,
	})
	if err != nil {
		t.Fatalf("providertest: failed to build registry: %v", err)
	}
	return reg
}
