package anthropic

import (
	"fmt"

	"forgehq/loom/pkg/providers"
)

// Wire types for the Messages API.

// MessagesRequest is an Anthropic messages request.
type MessagesRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature,omitempty"`
	Messages    []MessageContent `json:"messages"`
	System      string           `json:"system,omitempty"`
}

// MessageContent is one conversation turn.
type MessageContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessagesResponse is an Anthropic messages response.
type MessagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      MessagesUsage  `json:"usage"`
}

// ContentBlock is one block of response content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MessagesUsage reports token consumption.
type MessagesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// transformRequest builds the wire request. The Messages API requires
// max_tokens, so zero falls back to the adapter default.
func transformRequest(model string, req *providers.CompletionRequest) *MessagesRequest {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	return &MessagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Messages: []MessageContent{
			{Role: providers.RoleUser, Content: req.Prompt},
		},
		System: req.System,
	}
}

// transformResponse normalizes the wire response. The completion text lives
// in content[0].text; its absence is a malformed body.
func transformResponse(resp *MessagesResponse) (string, providers.TokenUsage, error) {
	if len(resp.Content) == 0 {
		return "", providers.TokenUsage{}, fmt.Errorf("response contains no content blocks")
	}

	usage := providers.TokenUsage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}

	return resp.Content[0].Text, usage, nil
}
