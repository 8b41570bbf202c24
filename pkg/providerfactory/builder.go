package providerfactory

import (
	"context"
	"fmt"
	"log/slog"

	"forgehq/loom/pkg/providers"
)

// BuildOptions carry registry-level routing configuration.
type BuildOptions struct {
	// FallbackOrder names providers in the order the fallback chain tries
	// them. Providers not listed are tried afterwards in configuration
	// order.
	FallbackOrder []string

	// DefaultProvider receives calls that do not name a provider. Empty
	// selects the first configured provider.
	DefaultProvider string

	// Observer, when set, is notified after every provider call with the
	// provider name, model, duration, and error (nil on success).
	Observer providers.CallObserver
}

// BuildRegistry creates every configured provider and assembles them into a
// routing registry. Health checkers are started for enabled providers that
// configure a check interval; the context stops them.
//
// A single invalid provider configuration fails the whole build: partially
// constructed providers are closed and the error is returned, so the caller
// can refuse to start rather than run with a silently smaller provider set.
func BuildRegistry(ctx context.Context, configs []providers.ProviderConfig, opts BuildOptions) (*providers.Registry, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	built := make([]providers.Provider, 0, len(configs))
	closeAll := func() {
		for _, p := range built {
			p.Close()
		}
	}

	for _, config := range configs {
		cfg := config
		if !cfg.Enabled {
			// Disabled providers are still registered so they can be
			// listed and re-enabled, but never probed.
			cfg.HealthCheckInterval = 0
		}

		provider, err := NewProviderWithHealthCheck(ctx, cfg)
		if err != nil {
			closeAll()
			return nil, err
		}
		built = append(built, provider)
	}

	registry, err := providers.NewRegistry(providers.RegistryOptions{
		Providers:       built,
		FallbackOrder:   opts.FallbackOrder,
		DefaultProvider: opts.DefaultProvider,
		Observer:        opts.Observer,
	})
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to build provider registry: %w", err)
	}

	slog.Info("provider registry built",
		"providers", len(built),
		"available", len(registry.ListAvailable()),
		"default", registry.DefaultProvider(),
	)

	return registry, nil
}

// HealthSummary provides an overview of provider health across a registry.
type HealthSummary struct {
	// Total is the total number of providers
	Total int `json:"total"`

	// Healthy is the number of healthy providers
	Healthy int `json:"healthy"`

	// Unhealthy is the number of unhealthy providers
	Unhealthy int `json:"unhealthy"`

	// Details contains per-provider health information
	Details map[string]ProviderStatus `json:"details"`
}

// ProviderStatus is the reportable slice of a provider's health state.
type ProviderStatus struct {
	Healthy             bool   `json:"healthy"`
	Enabled             bool   `json:"enabled"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
}

// Summarize collects the health state of every provider in the registry.
func Summarize(registry *providers.Registry) HealthSummary {
	all := registry.Providers()

	summary := HealthSummary{
		Total:   len(all),
		Details: make(map[string]ProviderStatus, len(all)),
	}

	for _, p := range all {
		health := p.GetHealth()
		status := ProviderStatus{
			Healthy:             health.IsHealthy,
			Enabled:             p.GetConfig().Enabled,
			ConsecutiveFailures: health.ConsecutiveFailures,
		}
		if health.LastError != nil {
			status.LastError = health.LastError.Error()
		}
		summary.Details[p.GetName()] = status

		if health.IsHealthy {
			summary.Healthy++
		}
	}

	summary.Unhealthy = summary.Total - summary.Healthy

	return summary
}
