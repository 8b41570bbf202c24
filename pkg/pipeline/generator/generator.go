// Package generator produces code artifacts from analyzed requirements
// by prompting an LLM per target language and parsing the returned
// files, optionally fanning one generation out across several models
// and keeping the best result.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"forgehq/loom/pkg/pipeline/analyzer"
	"forgehq/loom/pkg/providers"
	"forgehq/loom/pkg/store"
)

// DefaultTimeout bounds one generation call, or the whole multi-model
// fan-out.
const DefaultTimeout = 120 * time.Second

// DefaultMaxParallel bounds the multi-model fan-out.
const DefaultMaxParallel = 3

// Config tunes the generator stage.
type Config struct {
	// Provider routes single-model generation to a specific provider.
	// Empty uses the registry default with fallback.
	Provider string

	// Temperature for generation calls.
	// Default: 0.2
	Temperature float64

	// MaxTokens caps the completion length. Zero uses the provider
	// default.
	MaxTokens int

	// Timeout bounds one generation.
	// Default: 120 seconds
	Timeout time.Duration

	// MultiModel fans each generation out across every enabled
	// ollama-generate provider and keeps the artifact with the most
	// files. The rest become comparison candidates.
	MultiModel bool

	// MaxParallel bounds concurrent provider calls in multi-model mode.
	// Default: 3
	MaxParallel int
}

// Request carries the inputs for one generation.
type Request struct {
	Analysis analyzer.Analysis
	Language store.Language

	// OutputPath is the task's explicit commit sub-path. Empty derives
	// one from the analysis and language.
	OutputPath string
}

// Alternate is a non-selected multi-model artifact, kept for
// comparison commits.
type Alternate struct {
	Provider string
	Files    map[string]string
}

// Result is one generated artifact plus provenance.
type Result struct {
	// Files maps relative paths to file contents. Never nil; empty
	// when the model produced nothing usable.
	Files map[string]string

	// OutputPath is the repository sub-path the artifact commits under.
	OutputPath string

	Provider string
	Model    string

	// Alternates holds the non-selected multi-model artifacts.
	Alternates []Alternate
}

// Generator turns an Analysis into a Generated Artifact through the
// provider registry.
type Generator struct {
	registry *providers.Registry
	config   Config
	logger   *slog.Logger
}

// New creates a Generator on top of the given registry.
func New(registry *providers.Registry, config Config) *Generator {
	if config.Temperature == 0 {
		config.Temperature = providers.DefaultTemperature
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxParallel <= 0 {
		config.MaxParallel = DefaultMaxParallel
	}
	return &Generator{
		registry: registry,
		config:   config,
		logger:   slog.Default().With("component", "pipeline.generator"),
	}
}

// Generate produces the artifact for req. An analysis with empty
// fields is still a valid input; the artifact just comes back small or
// empty.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = DefaultOutputPath(req.Analysis.FileStructure, req.Language)
	}

	if g.config.MultiModel {
		result, err := g.generateMulti(ctx, req, outputPath)
		if result != nil || err != nil {
			return result, err
		}
		// No fan-out candidates configured; fall through to one call.
	}
	return g.generateSingle(ctx, req, outputPath)
}

func (g *Generator) generateSingle(ctx context.Context, req Request, outputPath string) (*Result, error) {
	start := time.Now()
	resp, err := g.registry.Call(ctx, buildPrompt(req), systemPrompt, providers.CallOptions{
		Provider:    g.config.Provider,
		Temperature: g.config.Temperature,
		MaxTokens:   g.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("code generation failed: %w", err)
	}

	files := ParseFiles(resp.Content)
	g.logger.DebugContext(ctx, "code generated",
		"provider", resp.Provider,
		"model", resp.Model,
		"files", len(files),
		"output_path", outputPath,
		"duration", time.Since(start),
	)

	return &Result{
		Files:      files,
		OutputPath: outputPath,
		Provider:   resp.Provider,
		Model:      resp.Model,
	}, nil
}

// generateMulti runs the generation prompt against every enabled
// ollama-generate provider and keeps the artifact with the most files.
// It returns (nil, nil) when no candidate providers are configured.
func (g *Generator) generateMulti(ctx context.Context, req Request, outputPath string) (*Result, error) {
	names := g.registry.ListByProtocol(providers.ProtocolOllamaGenerate)
	if len(names) == 0 {
		g.logger.WarnContext(ctx, "multi-model generation enabled but no ollama-generate providers are configured")
		return nil, nil
	}

	type candidate struct {
		files map[string]string
		model string
		err   error
	}
	results := make([]candidate, len(names))
	prompt := buildPrompt(req)

	grp, groupCtx := errgroup.WithContext(ctx)
	grp.SetLimit(g.config.MaxParallel)
	for i, name := range names {
		grp.Go(func() error {
			resp, err := g.registry.Call(groupCtx, prompt, systemPrompt, providers.CallOptions{
				Provider:        name,
				Temperature:     g.config.Temperature,
				MaxTokens:       g.config.MaxTokens,
				DisableFallback: true,
			})
			if err != nil {
				// One candidate failing must not cancel the others.
				g.logger.WarnContext(groupCtx, "generation candidate failed",
					"provider", name, "error", err)
				results[i] = candidate{err: err}
				return nil
			}
			results[i] = candidate{files: ParseFiles(resp.Content), model: resp.Model}
			return nil
		})
	}
	grp.Wait()

	best := -1
	var lastErr error
	for i, c := range results {
		if c.err != nil {
			lastErr = c.err
			continue
		}
		if best == -1 || len(c.files) > len(results[best].files) {
			best = i
		}
	}
	if best == -1 {
		return nil, fmt.Errorf("code generation failed on every provider: %w", lastErr)
	}

	result := &Result{
		Files:      results[best].files,
		OutputPath: outputPath,
		Provider:   names[best],
		Model:      results[best].model,
	}
	for i, c := range results {
		if i == best || c.err != nil || len(c.files) == 0 {
			continue
		}
		result.Alternates = append(result.Alternates, Alternate{Provider: names[i], Files: c.files})
	}

	g.logger.InfoContext(ctx, "multi-model generation selected best artifact",
		"provider", result.Provider,
		"files", len(result.Files),
		"candidates", len(names),
		"alternates", len(result.Alternates),
	)
	return result, nil
}

const systemPrompt = `You are an expert software engineer. You write complete, production-ready code files. Respond with a single JSON object mapping relative file paths to full file contents, and nothing else.`

// buildPrompt renders the generation prompt from the analysis and the
// per-language guidance block.
func buildPrompt(req Request) string {
	a := req.Analysis
	var b strings.Builder

	fmt.Fprintf(&b, "Generate %s code implementing the following analyzed requirement.\n\n", req.Language)
	fmt.Fprintf(&b, "Title: %s\n", a.Title)
	fmt.Fprintf(&b, "Functionality: %s\n", a.Functionality)
	if len(a.Components) > 0 {
		b.WriteString("Components:\n")
		for _, c := range a.Components {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if a.InputsOutputs != "" {
		fmt.Fprintf(&b, "Inputs and outputs: %s\n", a.InputsOutputs)
	}
	if a.Dependencies != "" {
		fmt.Fprintf(&b, "Dependencies or constraints: %s\n", a.Dependencies)
	}
	for _, c := range a.Constraints {
		fmt.Fprintf(&b, "Constraint (%s): %s\n", c.Type, c.Description)
	}
	if len(a.FileStructure) > 0 {
		b.WriteString("Suggested file structure:\n")
		for _, p := range a.FileStructure {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if a.ImplementationStrategy != "" {
		fmt.Fprintf(&b, "Implementation strategy: %s\n", a.ImplementationStrategy)
	}

	fmt.Fprintf(&b, "\nLanguage guidance: %s\n", languageContext(req.Language))
	b.WriteString(`
Respond with a single JSON object whose keys are relative file paths and whose values are the complete file contents:
{"path/to/file.ext": "file content", ...}
Do not add commentary outside the JSON object.`)

	return b.String()
}

// languageContexts gives per-language style guidance injected into the
// generation prompt, keyed by lower-cased language name.
var languageContexts = map[string]string{
	"typescript": "Use TypeScript with strict typing. Prefer interfaces for data shapes, async/await for asynchronous flows and named exports. Keep source under src/.",
	"javascript": "Use modern JavaScript (ES2022). Prefer const, async/await and ES modules. Keep source under src/.",
	"python":     "Use Python 3.11+ with type hints throughout. Follow PEP 8, prefer dataclasses for plain data and raise precise exceptions.",
	"java":       "Use Java 17+. Organize classes by package under src/main/java, prefer constructor injection and keep fields final where possible.",
	"go":         "Write idiomatic Go. Return errors explicitly, accept context.Context on blocking operations and keep packages small.",
	"csharp":     "Use C# 12 with nullable reference types enabled. Prefer records for data shapes and async/await end to end.",
	"ruby":       "Use Ruby 3+. Follow community style, keep classes under lib/ and prefer keyword arguments for options.",
	"php":        "Use PHP 8.2+ with declare(strict_types=1). Follow PSR-12 and organize classes under src/ for PSR-4 autoloading.",
}

const genericContext = "Follow standard conventions for the target language."

func languageContext(language store.Language) string {
	if guidance, ok := languageContexts[strings.ToLower(string(language))]; ok {
		return guidance
	}
	return genericContext
}

// languageOutputPaths is the default commit sub-path per language when
// the analysis suggested no file structure.
var languageOutputPaths = map[string]string{
	"typescript": "src",
	"javascript": "src",
	"python":     "src",
	"rust":       "src",
	"csharp":     "src",
	"php":        "src",
	"java":       "src/main/java",
	"go":         "pkg",
	"ruby":       "lib",
}

// DefaultOutputPath derives the commit sub-path for an artifact: the
// most common leading directory of the suggested file structure, or a
// per-language default when no suggested path carries a directory.
// Ties keep the first seen.
func DefaultOutputPath(fileStructure []string, language store.Language) string {
	counts := make(map[string]int)
	var order []string
	for _, entry := range fileStructure {
		p := cleanPath(entry)
		i := strings.IndexByte(p, '/')
		if i <= 0 {
			// Bare filenames carry no directory to vote with.
			continue
		}
		seg := p[:i]
		if counts[seg] == 0 {
			order = append(order, seg)
		}
		counts[seg]++
	}

	best := ""
	for _, seg := range order {
		if counts[seg] > counts[best] {
			best = seg
		}
	}
	if best != "" {
		return best
	}

	if def, ok := languageOutputPaths[strings.ToLower(string(language))]; ok {
		return def
	}
	return "src"
}
