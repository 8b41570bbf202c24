package ollama

import (
	"context"
	"fmt"
	"log/slog"

	"forgehq/loom/pkg/providers"
)

// GenerateRequest is the native Ollama generate payload.
type GenerateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options GenerateOptions `json:"options"`
}

// GenerateOptions carries runtime sampling parameters. A num_predict of -1
// tells Ollama to generate until the model stops on its own.
type GenerateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

// GenerateResponse is the non-streaming Ollama generate response.
type GenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Provider is the ollama-generate adapter.
type Provider struct {
	*providers.HTTPProvider
}

// NewProvider creates a new ollama-generate provider instance.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: "ollama",
			Field:    "name",
			Message:  "provider name is required",
		}
	}

	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
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
	config.Protocol = providers.ProtocolOllamaGenerate

	p := &Provider{
		HTTPProvider: providers.NewHTTPProvider(config),
	}

	slog.Info("ollama-generate provider initialized",
		"provider", config.Name,
		"base_url", config.BaseURL,
		"model", config.Model,
	)

	return p, nil
}

// SendCompletion sends a generate request with streaming disabled.
func (p *Provider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if req == nil {
		return nil, &providers.ValidationError{
			Field:   "request",
			Message: "request cannot be nil",
		}
	}
	if req.Prompt == "" {
		return nil, &providers.ValidationError{
			Field:   "prompt",
			Message: "prompt is required",
		}
	}

	model := req.Model
	if model == "" {
		model = p.GetConfig().Model
	}

	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}

	numPredict := req.MaxTokens
	if numPredict == 0 {
		numPredict = -1
	}

	generateReq := &GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Options: GenerateOptions{
			Temperature: req.Temperature,
			NumPredict:  numPredict,
		},
	}

	endpoint := fmt.Sprintf("%s/api/generate", p.GetConfig().BaseURL)
	headers := map[string]string{
		"Content-Type": "application/json",
	}

	var generateResp GenerateResponse
	if err := p.DoJSONRequest(ctx, "POST", endpoint, generateReq, &generateResp, headers); err != nil {
		return nil, err
	}

	if generateResp.Response == "" {
		return nil, &providers.ParseError{
			Provider: p.GetName(),
			Cause:    fmt.Errorf("response contained no generated text"),
		}
	}

	respModel := generateResp.Model
	if respModel == "" {
		respModel = model
	}

	slog.Debug("completion request succeeded",
		"provider", p.GetName(),
		"model", respModel,
		"tokens", generateResp.PromptEvalCount+generateResp.EvalCount,
	)

	return &providers.CompletionResponse{
		Provider: p.GetName(),
		Model:    respModel,
		Content:  generateResp.Response,
		Usage: providers.TokenUsage{
			PromptTokens:     generateResp.PromptEvalCount,
			CompletionTokens: generateResp.EvalCount,
			TotalTokens:      generateResp.PromptEvalCount + generateResp.EvalCount,
		},
	}, nil
}
