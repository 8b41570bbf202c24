package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"forgehq/loom/pkg/providers"
)

// Provider is the google-generate adapter.
type Provider struct {
	*providers.HTTPProvider
}

// NewProvider creates a new google-generate provider instance.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: "google",
			Field:    "name",
			Message:  "provider name is required",
		}
	}

	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	if config.APIKey == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "api_key",
			Message:  "API key is required for Google",
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
	config.Protocol = providers.ProtocolGoogleGenerate

	p := &Provider{
		HTTPProvider: providers.NewHTTPProvider(config),
	}

	slog.Info("google-generate provider initialized",
		"provider", config.Name,
		"base_url", config.BaseURL,
		"model", config.Model,
	)

	return p, nil
}

// SendCompletion sends a generateContent request. The API key travels as a
// query parameter rather than a header.
func (p *Provider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.GetConfig().Model
	}

	generateReq := transformRequest(req)

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.GetConfig().BaseURL, model, url.QueryEscape(p.GetConfig().APIKey))
	headers := map[string]string{
		"Content-Type": "application/json",
	}

	var generateResp GenerateResponse
	if err := p.DoJSONRequest(ctx, "POST", endpoint, generateReq, &generateResp, headers); err != nil {
		return nil, err
	}

	content, usage, err := transformResponse(&generateResp)
	if err != nil {
		return nil, &providers.ParseError{
			Provider: p.GetName(),
			Cause:    err,
		}
	}

	slog.Debug("completion request succeeded",
		"provider", p.GetName(),
		"model", model,
		"tokens", usage.TotalTokens,
	)

	return &providers.CompletionResponse{
		Provider: p.GetName(),
		Model:    model,
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
