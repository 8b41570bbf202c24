package providerfactory

import (
	"sort"

	"forgehq/loom/pkg/config"
	"forgehq/loom/pkg/providers"
)

// FromConfig converts the configuration's provider entries into provider
// specs plus registry build options.
//
// Providers from the config map are emitted in name order so the registry's
// configuration order is stable across restarts. Every model listed in the
// Ollama section is materialized as its own provider, registered under the
// model name and speaking ollama-generate; an explicit provider entry with
// the same name wins over the materialized one.
func FromConfig(cfg *config.Config) ([]providers.ProviderConfig, BuildOptions) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]providers.ProviderConfig, 0, len(names)+len(cfg.Ollama.Models))
	seen := make(map[string]bool, len(names))

	for _, name := range names {
		p := cfg.Providers[name]
		specs = append(specs, providers.ProviderConfig{
			Name:                name,
			Protocol:            providers.Protocol(p.Protocol),
			BaseURL:             p.BaseURL,
			APIKey:              p.APIKey,
			Model:               p.Model,
			Enabled:             p.IsEnabled(),
			Timeout:             p.Timeout,
			MaxRetries:          p.MaxRetries,
			HealthCheckInterval: p.HealthCheckInterval,
		})
		seen[name] = true
	}

	for _, model := range cfg.Ollama.Models {
		if seen[model] {
			continue
		}
		seen[model] = true
		specs = append(specs, providers.ProviderConfig{
			Name:                model,
			Protocol:            providers.ProtocolOllamaGenerate,
			BaseURL:             cfg.Ollama.BaseURL,
			Model:               model,
			Enabled:             true,
			Timeout:             cfg.Ollama.Timeout,
			HealthCheckInterval: cfg.Ollama.HealthCheckInterval,
		})
	}

	return specs, BuildOptions{
		FallbackOrder:   cfg.Routing.FallbackOrder,
		DefaultProvider: cfg.Routing.DefaultProvider,
	}
}
