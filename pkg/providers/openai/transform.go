package openai

import (
	"fmt"

	"forgehq/loom/pkg/providers"
)

// Wire types for the chat completions API.

// ChatRequest is an OpenAI chat completion request.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatMessage is a message in OpenAI chat format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is an OpenAI chat completion response.
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// ChatChoice is a single completion choice.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatUsage reports token consumption.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// transformRequest builds the wire request from the provider-agnostic one.
// A system message, when present, leads the messages array.
func transformRequest(model string, req *providers.CompletionRequest) *ChatRequest {
	messages := make([]ChatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ChatMessage{Role: providers.RoleSystem, Content: req.System})
	}
	messages = append(messages, ChatMessage{Role: providers.RoleUser, Content: req.Prompt})

	return &ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

// transformResponse normalizes the wire response. The completion text lives
// in choices[0].message.content; its absence is a malformed body.
func transformResponse(resp *ChatResponse) (string, providers.TokenUsage, error) {
	if len(resp.Choices) == 0 {
		return "", providers.TokenUsage{}, fmt.Errorf("response contains no choices")
	}

	usage := providers.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	return resp.Choices[0].Message.Content, usage, nil
}
