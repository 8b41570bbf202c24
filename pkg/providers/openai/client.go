package openai

import (
	"context"
	"fmt"
	"log/slog"

	"forgehq/loom/pkg/providers"
)

// KeylessSentinel is the credential value that marks an endpoint as not
// requiring an Authorization header (OpenAI-compatible local runtimes).
const KeylessSentinel = "ollama"

// Provider is the openai-chat adapter.
type Provider struct {
	*providers.HTTPProvider
}

// NewProvider creates a new openai-chat provider instance.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: "openai",
			Field:    "name",
			Message:  "provider name is required",
		}
	}

	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}

	if config.APIKey == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "api_key",
			Message:  fmt.Sprintf("API key is required (use %q for keyless endpoints)", KeylessSentinel),
		}
	}

	if config.Model == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "model",
			Message:  "default model is required",
		}
	}

	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	config.Protocol = providers.ProtocolOpenAIChat

	p := &Provider{
		HTTPProvider: providers.NewHTTPProvider(config),
	}

	slog.Info("openai-chat provider initialized",
		"provider", config.Name,
		"base_url", config.BaseURL,
		"model", config.Model,
	)

	return p, nil
}

// SendCompletion sends a chat completion request.
func (p *Provider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.GetConfig().Model
	}

	chatReq := transformRequest(model, req)

	url := fmt.Sprintf("%s/chat/completions", p.GetConfig().BaseURL)
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if p.GetConfig().APIKey != KeylessSentinel {
		headers["Authorization"] = "Bearer " + p.GetConfig().APIKey
	}

	var chatResp ChatResponse
	if err := p.DoJSONRequest(ctx, "POST", url, chatReq, &chatResp, headers); err != nil {
		return nil, err
	}

	content, usage, err := transformResponse(&chatResp)
	if err != nil {
		return nil, &providers.ParseError{
			Provider: p.GetName(),
			Cause:    err,
		}
	}

	respModel := chatResp.Model
	if respModel == "" {
		respModel = model
	}

	slog.Debug("completion request succeeded",
		"provider", p.GetName(),
		"model", respModel,
		"tokens", usage.TotalTokens,
	)

	return &providers.CompletionResponse{
		Provider: p.GetName(),
		Model:    respModel,
		Content:  content,
		Usage:    usage,
	}, nil
}

// validateRequest validates the completion request.
func validateRequest(req *providers.CompletionRequest) error {
	if req == nil {
		return &providers.ValidationError{
			Field:   "request",
			Message: "request cannot be nil",
		}
	}

	if req.Prompt == "" {
		return &providers.ValidationError{
			Field:   "prompt",
			Message: "prompt is required",
		}
	}

	return nil
}
