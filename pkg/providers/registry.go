package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultTemperature is used when a call does not specify one.
const DefaultTemperature = 0.2

// probePrompt is the canary sent by Probe. Any response containing "ok"
// (case-insensitive) counts as affirmative.
const probePrompt = `Respond with only the word "ok".`

// CallOptions tune a single registry call.
type CallOptions struct {
	// Provider routes the call to a specific provider by name.
	// Empty selects the registry's default provider.
	Provider string

	// Temperature controls randomness. Zero selects DefaultTemperature.
	Temperature float64

	// MaxTokens caps the completion length. Zero selects the provider
	// default.
	MaxTokens int

	// DisableFallback turns off the fallback chain, so a failure of the
	// selected provider is returned as-is.
	DisableFallback bool

	// ExcludeProviders names providers the fallback chain must skip.
	ExcludeProviders []string
}

// CallObserver receives the outcome of every provider dispatch, including
// fallback attempts. Implementations must be fast and goroutine safe.
type CallObserver func(provider, model string, duration time.Duration, err error)

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	// Providers in configuration order. Order matters: providers not named
	// in FallbackOrder are tried in this order after the listed ones.
	Providers []Provider

	// FallbackOrder names providers in the order the fallback chain tries
	// them. Names not present in Providers are ignored.
	FallbackOrder []string

	// DefaultProvider receives calls that do not name a provider.
	DefaultProvider string

	// Observer, when set, is invoked after each dispatch.
	Observer CallObserver
}

// Registry indexes the configured providers and routes completion calls,
// walking the fallback chain when a backend fails. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	byName   map[string]Provider
	order    []string
	fallback []string
	def      string
	observer CallObserver
	logger   *slog.Logger
}

// NewRegistry builds a Registry from opts. It rejects duplicate provider
// names, an unknown default provider, and an empty provider set.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if len(opts.Providers) == 0 {
		return nil, fmt.Errorf("registry requires at least one provider")
	}

	byName := make(map[string]Provider, len(opts.Providers))
	order := make([]string, 0, len(opts.Providers))
	for _, p := range opts.Providers {
		name := p.GetName()
		if name == "" {
			return nil, fmt.Errorf("provider with empty name")
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("duplicate provider name %q", name)
		}
		byName[name] = p
		order = append(order, name)
	}

	def := opts.DefaultProvider
	if def == "" {
		def = order[0]
	}
	if _, ok := byName[def]; !ok {
		return nil, fmt.Errorf("default provider %q is not configured", def)
	}

	// Keep only fallback entries that exist; unknown names are operator
	// typos, not fatal.
	fallback := make([]string, 0, len(opts.FallbackOrder))
	for _, name := range opts.FallbackOrder {
		if _, ok := byName[name]; ok {
			fallback = append(fallback, name)
		} else {
			slog.Warn("fallback order names unknown provider, skipping", "provider", name)
		}
	}

	return &Registry{
		byName:   byName,
		order:    order,
		fallback: fallback,
		def:      def,
		observer: opts.Observer,
		logger:   slog.Default().With("component", "providers"),
	}, nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// DefaultProvider returns the name of the default provider.
func (r *Registry) DefaultProvider() string {
	return r.def
}

// ListAvailable returns the names of all enabled providers in
// configuration order.
func (r *Registry) ListAvailable() []string {
	available := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if r.byName[name].GetConfig().Enabled {
			available = append(available, name)
		}
	}
	return available
}

// ListByProtocol returns the names of enabled providers speaking the given
// protocol, in configuration order.
func (r *Registry) ListByProtocol(protocol Protocol) []string {
	var names []string
	for _, name := range r.order {
		p := r.byName[name]
		if p.GetConfig().Enabled && p.GetProtocol() == protocol {
			names = append(names, name)
		}
	}
	return names
}

// Call routes one completion to the provider named in opts (or the default)
// and, unless fallback is disabled, walks the fallback chain when that
// provider fails.
func (r *Registry) Call(ctx context.Context, prompt, system string, opts CallOptions) (*CompletionResponse, error) {
	target := opts.Provider
	if target == "" {
		target = r.def
	}

	p, ok := r.byName[target]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", target)
	}
	if !p.GetConfig().Enabled {
		if opts.DisableFallback {
			return nil, fmt.Errorf("provider %q is disabled", target)
		}
		return r.fallbackFrom(ctx, prompt, system, opts, target, fmt.Errorf("provider %q is disabled", target))
	}

	resp, err := r.sendTo(ctx, p, prompt, system, opts)
	if err == nil {
		return resp, nil
	}

	if opts.DisableFallback {
		return nil, err
	}

	r.logger.WarnContext(ctx, "provider call failed, trying fallback chain",
		"provider", target,
		"error", err,
	)
	return r.fallbackFrom(ctx, prompt, system, opts, target, err)
}

// CallWithFallback iterates providers in fallback order, then any remaining
// enabled providers not listed, skipping excluded ones. It returns the first
// success; after every candidate has failed it reports the last error.
func (r *Registry) CallWithFallback(ctx context.Context, prompt, system string, opts CallOptions) (*CompletionResponse, error) {
	return r.fallbackFrom(ctx, prompt, system, opts, "", nil)
}

// fallbackFrom walks the chain, skipping skipName and anything excluded.
// seedErr is the error that triggered the walk, reported if no candidate
// remains.
func (r *Registry) fallbackFrom(ctx context.Context, prompt, system string, opts CallOptions, skipName string, seedErr error) (*CompletionResponse, error) {
	excluded := make(map[string]bool, len(opts.ExcludeProviders)+1)
	for _, name := range opts.ExcludeProviders {
		excluded[name] = true
	}
	if skipName != "" {
		excluded[skipName] = true
	}

	lastErr := seedErr
	tried := 0
	for _, name := range r.candidateOrder() {
		if excluded[name] {
			continue
		}
		p := r.byName[name]
		if !p.GetConfig().Enabled {
			continue
		}

		tried++
		resp, err := r.sendTo(ctx, p, prompt, system, opts)
		if err == nil {
			if lastErr != nil {
				r.logger.InfoContext(ctx, "fallback provider succeeded",
					"provider", name,
				)
			}
			return resp, nil
		}

		lastErr = err
		r.logger.WarnContext(ctx, "fallback candidate failed",
			"provider", name,
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, lastErr
		}
	}

	if lastErr == nil {
		return nil, fmt.Errorf("no enabled provider available")
	}
	if tried == 0 && seedErr != nil {
		return nil, seedErr
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// candidateOrder returns the fallback order followed by the remaining
// providers in configuration order. The result is deterministic for a
// fixed configuration.
func (r *Registry) candidateOrder() []string {
	seen := make(map[string]bool, len(r.fallback))
	candidates := make([]string, 0, len(r.order))
	for _, name := range r.fallback {
		if !seen[name] {
			seen[name] = true
			candidates = append(candidates, name)
		}
	}
	for _, name := range r.order {
		if !seen[name] {
			seen[name] = true
			candidates = append(candidates, name)
		}
	}
	return candidates
}

// sendTo builds the wire request and dispatches it to one provider.
func (r *Registry) sendTo(ctx context.Context, p Provider, prompt, system string, opts CallOptions) (*CompletionResponse, error) {
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}

	req := &CompletionRequest{
		System:      system,
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   opts.MaxTokens,
	}

	start := time.Now()
	resp, err := p.SendCompletion(ctx, req)
	if r.observer != nil {
		r.observer(p.GetName(), p.GetConfig().Model, time.Since(start), err)
	}
	return resp, err
}

// Probe sends a minimal canary prompt to the named provider and reports
// whether it answered affirmatively.
func (r *Registry) Probe(ctx context.Context, name string) (bool, error) {
	p, ok := r.byName[name]
	if !ok {
		return false, fmt.Errorf("unknown provider %q", name)
	}

	resp, err := p.SendCompletion(ctx, &CompletionRequest{
		Prompt:      probePrompt,
		Temperature: 0.1,
		MaxTokens:   8,
	})
	if err != nil {
		r.logger.DebugContext(ctx, "probe failed", "provider", name, "error", err)
		return false, nil
	}

	return strings.Contains(strings.ToLower(resp.Content), "ok"), nil
}

// Providers returns every registered provider in configuration order,
// enabled or not.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Close closes every registered provider. The last error wins.
func (r *Registry) Close() error {
	var lastErr error
	for _, name := range r.order {
		if err := r.byName[name].Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
