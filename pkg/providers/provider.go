package providers

import "context"

// Provider is the uniform contract every LLM backend adapter implements.
//
// Adapters are constructed once at startup from ProviderConfig and are
// safe for concurrent use. A Provider owns its HTTP client and health
// state; Close releases both.
//
// Example usage:
//
//	p, err := ollama.NewProvider(providers.ProviderConfig{
//	    Name:     "llama3",
//	    Protocol: providers.ProtocolOllamaGenerate,
//	    BaseURL:  "http://localhost:11434",
//	    Model:    "llama3",
//	    Enabled:  true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	resp, err := p.SendCompletion(ctx, &providers.CompletionRequest{
//	    Prompt: "Summarize the requirement.",
//	})
type Provider interface {
	// SendCompletion sends a completion request and returns the
	// normalized response. Transport and status failures return
	// retryable error types; malformed bodies return *ParseError.
	SendCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// HealthCheck verifies the backend is reachable. It is cheaper than
	// a completion and does not consume model quota.
	HealthCheck(ctx context.Context) error

	// GetName returns the registry identifier of this provider.
	GetName() string

	// GetProtocol returns the wire protocol this adapter speaks.
	GetProtocol() Protocol

	// GetConfig returns the provider configuration.
	GetConfig() ProviderConfig

	// IsHealthy returns the current health verdict.
	IsHealthy() bool

	// GetHealth returns detailed health information.
	GetHealth() ProviderHealth

	// Close releases the adapter's resources.
	Close() error
}
