package anthropic

import (
	"context"
	"fmt"
	"log/slog"

	"forgehq/loom/pkg/providers"
)

const (
	// DefaultAnthropicVersion is the API version to use
	DefaultAnthropicVersion = "2023-06-01"

	// DefaultMaxTokens caps completions when the caller does not;
	// the Messages API rejects requests without max_tokens.
	DefaultMaxTokens = 4096
)

// Provider is the anthropic-messages adapter.
type Provider struct {
	*providers.HTTPProvider
}

// NewProvider creates a new anthropic-messages provider instance.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: "anthropic",
			Field:    "name",
			Message:  "provider name is required",
		}
	}

	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com"
	}

	if config.APIKey == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "api_key",
			Message:  "API key is required for Anthropic",
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
	config.Protocol = providers.ProtocolAnthropicMessages

	p := &Provider{
		HTTPProvider: providers.NewHTTPProvider(config),
	}

	slog.Info("anthropic-messages provider initialized",
		"provider", config.Name,
		"base_url", config.BaseURL,
		"model", config.Model,
	)

	return p, nil
}

// SendCompletion sends a messages request.
func (p *Provider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.GetConfig().Model
	}

	messagesReq := transformRequest(model, req)

	url := fmt.Sprintf("%s/v1/messages", p.GetConfig().BaseURL)
	headers := map[string]string{
		"x-api-key":         p.GetConfig().APIKey,
		"anthropic-version": DefaultAnthropicVersion,
		"Content-Type":      "application/json",
	}

	var messagesResp MessagesResponse
	if err := p.DoJSONRequest(ctx, "POST", url, messagesReq, &messagesResp, headers); err != nil {
		return nil, err
	}

	content, usage, err := transformResponse(&messagesResp)
	if err != nil {
		return nil, &providers.ParseError{
			Provider: p.GetName(),
			Cause:    err,
		}
	}

	respModel := messagesResp.Model
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
