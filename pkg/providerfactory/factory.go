package providerfactory

import (
	"context"
	"fmt"
	"log/slog"

	"forgehq/loom/pkg/providers"
	"forgehq/loom/pkg/providers/anthropic"
	"forgehq/loom/pkg/providers/google"
	"forgehq/loom/pkg/providers/ollama"
	"forgehq/loom/pkg/providers/openai"
)

// NewProvider creates a provider instance for the protocol named in the
// configuration.
//
// Supported protocols:
//   - "openai-chat": OpenAI and OpenAI-compatible chat completions APIs
//   - "anthropic-messages": Anthropic Messages API
//   - "google-generate": Google generateContent API
//   - "ollama-generate": native Ollama generate API
//
// When config.Protocol is empty it is inferred from the provider name;
// unrecognized names map to ollama-generate, since locally hosted models
// are registered under their model names.
//
// Example:
//
//	config := providers.ProviderConfig{
//	    Name:     "openai",
//	    Protocol: providers.ProtocolOpenAIChat,
//	    APIKey:   "sk-...",
//	    Model:    "gpt-4o-mini",
//	}
//	provider, err := providerfactory.NewProvider(config)
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
func NewProvider(config providers.ProviderConfig) (providers.Provider, error) {
	protocol := config.Protocol
	if protocol == "" {
		protocol = inferProtocol(config.Name)
		config.Protocol = protocol
	}

	slog.Debug("creating provider",
		"name", config.Name,
		"protocol", protocol,
		"base_url", config.BaseURL,
	)

	var provider providers.Provider
	var err error

	switch protocol {
	case providers.ProtocolOpenAIChat:
		provider, err = openai.NewProvider(config)

	case providers.ProtocolAnthropicMessages:
		provider, err = anthropic.NewProvider(config)

	case providers.ProtocolGoogleGenerate:
		provider, err = google.NewProvider(config)

	case providers.ProtocolOllamaGenerate:
		provider, err = ollama.NewProvider(config)

	default:
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "protocol",
			Message:  fmt.Sprintf("unsupported protocol: %q (supported: openai-chat, anthropic-messages, google-generate, ollama-generate)", protocol),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", config.Name, err)
	}

	slog.Info("provider created successfully",
		"name", config.Name,
		"protocol", protocol,
	)

	return provider, nil
}

// NewProviderWithHealthCheck creates a provider and starts its background
// health checker when a check interval is configured. The context stops
// the checker.
func NewProviderWithHealthCheck(ctx context.Context, config providers.ProviderConfig) (providers.Provider, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}

	if config.HealthCheckInterval <= 0 {
		return provider, nil
	}

	type healthCheckStarter interface {
		StartHealthChecker(context.Context)
	}

	if hcs, ok := provider.(healthCheckStarter); ok {
		hcs.StartHealthChecker(ctx)
		slog.Debug("health checker started", "provider", config.Name)
	}

	return provider, nil
}

// inferProtocol maps well-known provider names to their protocols.
func inferProtocol(name string) providers.Protocol {
	switch name {
	case "openai", "deepseek", "groq", "mistral":
		return providers.ProtocolOpenAIChat
	case "anthropic":
		return providers.ProtocolAnthropicMessages
	case "google", "gemini":
		return providers.ProtocolGoogleGenerate
	default:
		return providers.ProtocolOllamaGenerate
	}
}
