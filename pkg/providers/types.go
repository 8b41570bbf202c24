package providers

import "time"

// Protocol identifies the wire format an adapter speaks.
type Protocol string

const (
	// ProtocolOpenAIChat is the OpenAI-compatible chat completions protocol.
	ProtocolOpenAIChat Protocol = "openai-chat"

	// ProtocolAnthropicMessages is the Anthropic messages protocol.
	ProtocolAnthropicMessages Protocol = "anthropic-messages"

	// ProtocolGoogleGenerate is the Google generateContent protocol.
	ProtocolGoogleGenerate Protocol = "google-generate"

	// ProtocolOllamaGenerate is the local Ollama generate protocol.
	ProtocolOllamaGenerate Protocol = "ollama-generate"
)

// KnownProtocols lists every protocol an adapter exists for.
var KnownProtocols = []Protocol{
	ProtocolOpenAIChat,
	ProtocolAnthropicMessages,
	ProtocolGoogleGenerate,
	ProtocolOllamaGenerate,
}

// ValidProtocol reports whether p names a supported protocol.
func ValidProtocol(p Protocol) bool {
	for _, known := range KnownProtocols {
		if p == known {
			return true
		}
	}
	return false
}

// Message role constants for chat-style protocols.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest is the provider-agnostic completion request.
// Adapters transform it into their protocol's wire format.
type CompletionRequest struct {
	// Model is the model identifier. Empty selects the provider's
	// configured default model.
	Model string

	// System is an optional system message.
	System string

	// Prompt is the user prompt text.
	Prompt string

	// Temperature controls randomness. Zero selects the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero selects the provider
	// default (protocol-specific; Ollama maps zero to unlimited).
	MaxTokens int
}

// TokenUsage tracks token consumption for a completion, where the
// protocol reports it.
type TokenUsage struct {
	// PromptTokens is the number of tokens in the prompt
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens used (prompt + completion)
	TotalTokens int `json:"total_tokens"`
}

// CompletionResponse is the normalized completion result.
type CompletionResponse struct {
	// Provider is the name of the adapter that produced the response
	Provider string `json:"provider"`

	// Model is the model that generated the response
	Model string `json:"model"`

	// Content is the generated text
	Content string `json:"content"`

	// Usage contains token consumption, zero-valued when the protocol
	// does not report it
	Usage TokenUsage `json:"usage"`
}

// ProviderHealth tracks the health status of a provider.
type ProviderHealth struct {
	// IsHealthy indicates whether the provider is currently healthy
	IsHealthy bool

	// LastCheck is the timestamp of the last health check
	LastCheck time.Time

	// LastError is the most recent error encountered (nil if healthy)
	LastError error

	// ConsecutiveFailures counts sequential failures
	ConsecutiveFailures int

	// LastSuccessfulRequest is the timestamp of the last successful request
	LastSuccessfulRequest time.Time

	// TotalRequests is the total number of requests sent to this provider
	TotalRequests int64

	// FailedRequests is the total number of failed requests
	FailedRequests int64
}

// ProviderConfig contains configuration for a single provider instance.
type ProviderConfig struct {
	// Name is the registry identifier for this provider
	Name string

	// Protocol selects the adapter (openai-chat, anthropic-messages,
	// google-generate, ollama-generate)
	Protocol Protocol

	// BaseURL is the API endpoint base URL
	BaseURL string

	// APIKey is the credential material. The sentinel value "ollama"
	// suppresses the Authorization header on openai-chat endpoints.
	APIKey string

	// Model is the default model identifier
	Model string

	// Enabled marks the provider as a routing candidate
	Enabled bool

	// Timeout is the per-request timeout. Default: 120s
	Timeout time.Duration

	// MaxRetries is the maximum number of transport-level retry attempts.
	// Default: 3
	MaxRetries int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host.
	// Default: 10
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains pooled
	IdleConnTimeout time.Duration

	// HealthCheckInterval is how often the background checker probes the
	// endpoint. Zero disables the background checker.
	HealthCheckInterval time.Duration
}
