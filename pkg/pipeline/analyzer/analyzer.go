// Package analyzer turns natural-language requirements into structured
// implementation plans by prompting an LLM and parsing whatever shape
// of answer comes back.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"forgehq/loom/pkg/providers"
	"forgehq/loom/pkg/store"
)

// DefaultTimeout bounds one analysis call.
const DefaultTimeout = 60 * time.Second

// DefaultTemperature keeps analysis output stable across retries.
const DefaultTemperature = 0.1

// ConstraintType classifies a restriction extracted from the
// requirement.
type ConstraintType string

const (
	ConstraintTechnical ConstraintType = "technical"
	ConstraintBusiness  ConstraintType = "business"
	ConstraintSecurity  ConstraintType = "security"
)

// Constraint is one typed restriction the implementation must honor.
type Constraint struct {
	Type        ConstraintType `json:"type"`
	Description string         `json:"description"`
}

// Analysis is the structured reading of one requirement. Every field is
// always present; parsing fills in empty strings and lists for whatever
// the model left out.
type Analysis struct {
	Title                  string         `json:"title"`
	Functionality          string         `json:"functionality"`
	Components             []string       `json:"components"`
	InputsOutputs          string         `json:"inputsOutputs"`
	Dependencies           string         `json:"dependencies"`
	FileStructure          []string       `json:"fileStructure"`
	ImplementationStrategy string         `json:"implementationStrategy"`
	Priority               store.Priority `json:"priority"`
	Constraints            []Constraint   `json:"constraints,omitempty"`
}

// Config tunes the analyzer stage.
type Config struct {
	// Provider routes analysis calls to a specific provider. Empty uses
	// the registry default with fallback.
	Provider string

	// Temperature for analysis calls.
	// Default: 0.1
	Temperature float64

	// MaxTokens caps the completion length. Zero uses the provider
	// default.
	MaxTokens int

	// Timeout bounds one analysis call.
	// Default: 60 seconds
	Timeout time.Duration
}

// Request carries the inputs for one analysis.
type Request struct {
	RequirementText   string
	Language          store.Language
	AdditionalContext string
	TemplateContent   string
}

// Result is the structured analysis plus the provider and model that
// produced it.
type Result struct {
	Analysis Analysis
	Provider string
	Model    string
}

// Analyzer maps requirement text to an Analysis through the provider
// registry.
type Analyzer struct {
	registry *providers.Registry
	config   Config
	logger   *slog.Logger
}

// New creates an Analyzer on top of the given registry.
func New(registry *providers.Registry, config Config) *Analyzer {
	if config.Temperature == 0 {
		config.Temperature = DefaultTemperature
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Analyzer{
		registry: registry,
		config:   config,
		logger:   slog.Default().With("component", "pipeline.analyzer"),
	}
}

// Analyze prompts the registry for a structured breakdown of the
// requirement and parses the response. The provider may answer in
// strict JSON, JSON buried in prose, or labeled prose sections; all
// three are handled.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.registry.Call(ctx, buildPrompt(req), systemPrompt, providers.CallOptions{
		Provider:    a.config.Provider,
		Temperature: a.config.Temperature,
		MaxTokens:   a.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("requirement analysis failed: %w", err)
	}

	analysis := Parse(resp.Content)
	a.logger.DebugContext(ctx, "requirement analyzed",
		"provider", resp.Provider,
		"model", resp.Model,
		"title", analysis.Title,
		"components", len(analysis.Components),
		"files", len(analysis.FileStructure),
		"duration", time.Since(start),
	)

	return &Result{
		Analysis: *analysis,
		Provider: resp.Provider,
		Model:    resp.Model,
	}, nil
}

const systemPrompt = `You are a senior software architect. You break natural-language requirements down into precise, implementable plans. Respond with a single JSON object and nothing else.`

// buildPrompt renders the analysis prompt. The response schema is
// pinned so parsing can rely on key names; the heuristic parser covers
// models that ignore the instruction.
func buildPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the following software requirement for a %s implementation.\n\n", req.Language)
	b.WriteString("Requirement:\n")
	b.WriteString(strings.TrimSpace(req.RequirementText))
	b.WriteString("\n")

	if req.AdditionalContext != "" {
		b.WriteString("\nAdditional context:\n")
		b.WriteString(strings.TrimSpace(req.AdditionalContext))
		b.WriteString("\n")
	}
	if req.TemplateContent != "" {
		b.WriteString("\nCode template the implementation should follow:\n")
		b.WriteString(req.TemplateContent)
		b.WriteString("\n")
	}

	b.WriteString(`
Respond with a single JSON object using exactly these keys:
{
  "title": "short requirement title",
  "functionality": "description of the main functionality",
  "components": ["component or module", "..."],
  "inputsOutputs": "description of inputs and outputs",
  "dependencies": "dependencies or constraints",
  "fileStructure": ["relative/path/to/file", "..."],
  "implementationStrategy": "step-by-step implementation strategy",
  "priority": "low | medium | high | critical",
  "constraints": [{"type": "technical | business | security", "description": "..."}]
}`)

	return b.String()
}
