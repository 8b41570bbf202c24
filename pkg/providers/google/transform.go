package google

import (
	"fmt"

	"forgehq/loom/pkg/providers"
)

// Wire types for the generateContent API.

// GenerateRequest is a generateContent request.
type GenerateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

// Content is one content entry.
type Content struct {
	Parts []Part `json:"parts"`
}

// Part is one text part.
type Part struct {
	Text string `json:"text"`
}

// GenerationConfig tunes the generation.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// GenerateResponse is a generateContent response.
type GenerateResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
}

// Candidate is one generated candidate.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// UsageMetadata reports token consumption.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// transformRequest builds the wire request. The protocol carries a single
// text part, so the system message is prepended to the prompt.
func transformRequest(req *providers.CompletionRequest) *GenerateRequest {
	text := req.Prompt
	if req.System != "" {
		text = req.System + "\n\n" + req.Prompt
	}

	return &GenerateRequest{
		Contents: []Content{
			{Parts: []Part{{Text: text}}},
		},
		GenerationConfig: GenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
}

// transformResponse normalizes the wire response. The completion text lives
// in candidates[0].content.parts[0].text; its absence is a malformed body.
func transformResponse(resp *GenerateResponse) (string, providers.TokenUsage, error) {
	if len(resp.Candidates) == 0 {
		return "", providers.TokenUsage{}, fmt.Errorf("response contains no candidates")
	}
	if len(resp.Candidates[0].Content.Parts) == 0 {
		return "", providers.TokenUsage{}, fmt.Errorf("candidate contains no parts")
	}

	var usage providers.TokenUsage
	if resp.UsageMetadata != nil {
		usage = providers.TokenUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	return resp.Candidates[0].Content.Parts[0].Text, usage, nil
}
