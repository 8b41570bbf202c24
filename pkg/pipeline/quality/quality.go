// Package quality scores a generated artifact on syntax validity,
// requirement coverage and holistic code quality, persists the result and
// decides whether the artifact clears the configured bar.
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"forgehq/loom/pkg/pipeline/analyzer"
	"forgehq/loom/pkg/pipeline/extract"
	"forgehq/loom/pkg/providers"
	"forgehq/loom/pkg/store"
)

const (
	// DefaultTimeout bounds each individual validation call.
	DefaultTimeout = 30 * time.Second

	// DefaultTemperature keeps verdicts close to deterministic.
	DefaultTemperature = 0.1

	// PassThreshold is the aggregate score at which an artifact passes.
	// An aggregate of exactly 85 passes.
	PassThreshold = 85.0

	maxFileChars   = 1000
	maxCorpusChars = 8000
)

// languageExtensions lists the file extensions counted as code when scoring
// syntax validity, keyed by lower-cased language name. The rust/c++/c#
// entries cover analyses naming languages outside the task enum.
var languageExtensions = map[string][]string{
	"typescript": {".ts", ".tsx"},
	"javascript": {".js", ".jsx"},
	"python":     {".py"},
	"java":       {".java"},
	"csharp":     {".cs"},
	"c#":         {".cs"},
	"go":         {".go"},
	"ruby":       {".rb"},
	"php":        {".php"},
	"rust":       {".rs"},
	"c++":        {".cpp", ".hpp", ".h"},
}

// MetricsStore is the slice of the task store the checker persists through.
type MetricsStore interface {
	UpsertMetrics(ctx context.Context, metric *store.QualityMetric) error
}

// Config carries the checker's tunables.
type Config struct {
	// Provider routes evaluation calls to a named provider. Empty uses
	// the registry default with fallback.
	Provider string

	// Temperature for evaluation calls. Default: DefaultTemperature.
	Temperature float64

	// MaxTokens caps each evaluation response. Zero uses the provider
	// default.
	MaxTokens int

	// Timeout bounds each individual LLM call. Default: DefaultTimeout.
	Timeout time.Duration

	// Threshold is the aggregate score at which artifacts pass.
	// Default: PassThreshold.
	Threshold float64
}

// Checker evaluates generated artifacts through the provider registry.
type Checker struct {
	registry *providers.Registry
	metrics  MetricsStore
	config   Config
	logger   *slog.Logger
}

// Request identifies the artifact to score.
type Request struct {
	TaskID   string
	Analysis analyzer.Analysis
	Language store.Language
	Files    map[string]string
}

// Result is the verdict returned to the pipeline. The three sub-scores are
// in [0,100]; Passed reflects the weighted aggregate against PassThreshold.
type Result struct {
	Passed              bool
	CodeQuality         float64
	RequirementCoverage float64
	SyntaxValidity      float64
	Feedback            string
}

// New creates a Checker backed by the registry and metrics store.
func New(registry *providers.Registry, metrics MetricsStore, config Config) *Checker {
	if config.Temperature == 0 {
		config.Temperature = DefaultTemperature
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Threshold <= 0 {
		config.Threshold = PassThreshold
	}
	return &Checker{
		registry: registry,
		metrics:  metrics,
		config:   config,
		logger:   slog.Default().With("component", "pipeline.quality"),
	}
}

// Check scores the artifact, writes exactly one metric row for the task and
// returns the verdict. Per-file syntax calls degrade to an invalid verdict
// on provider failure; a failed evaluation or coverage call aborts the
// check.
func (c *Checker) Check(ctx context.Context, req Request) (*Result, error) {
	syntax := c.syntaxValidity(ctx, req)

	codeQuality, payload, feedback, err := c.codeQuality(ctx, req)
	if err != nil {
		return nil, err
	}

	coverage, err := c.requirementCoverage(ctx, req)
	if err != nil {
		return nil, err
	}

	metric := &store.QualityMetric{
		TaskID:              req.TaskID,
		CodeQuality:         codeQuality,
		RequirementCoverage: coverage,
		SyntaxValidity:      syntax,
		StaticAnalysis:      payload,
		Feedback:            feedback,
	}
	if err := c.metrics.UpsertMetrics(ctx, metric); err != nil {
		return nil, fmt.Errorf("persisting quality metrics: %w", err)
	}

	overall := metric.Aggregate()
	passed := overall >= c.config.Threshold
	c.logger.InfoContext(ctx, "quality check complete",
		"task_id", req.TaskID,
		"code_quality", codeQuality,
		"requirement_coverage", coverage,
		"syntax_validity", syntax,
		"overall", overall,
		"passed", passed,
	)

	return &Result{
		Passed:              passed,
		CodeQuality:         codeQuality,
		RequirementCoverage: coverage,
		SyntaxValidity:      syntax,
		Feedback:            feedback,
	}, nil
}

// syntaxValidity scores the fraction of code files the validator accepts.
// An artifact with no code files for the language scores 0.
func (c *Checker) syntaxValidity(ctx context.Context, req Request) float64 {
	exts := languageExtensions[strings.ToLower(string(req.Language))]

	var total, valid int
	for _, filePath := range sortedPaths(req.Files) {
		if !hasExtension(filePath, exts) {
			continue
		}
		total++

		ok, err := c.validateFile(ctx, req.Language, filePath, req.Files[filePath])
		if err != nil {
			c.logger.WarnContext(ctx, "syntax validation call failed",
				"task_id", req.TaskID, "path", filePath, "error", err)
			continue
		}
		if ok {
			valid++
		}
	}

	if total == 0 {
		return 0
	}
	return float64(valid) / float64(total) * 100
}

func (c *Checker) validateFile(ctx context.Context, language store.Language, filePath, content string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	system := fmt.Sprintf(
		"You are a strict %s compiler front end. Judge whether the submitted file is syntactically valid %s. Respond with exactly one word: valid or invalid.",
		language, language)
	prompt := fmt.Sprintf("File: %s\n\n%s", filePath, content)

	resp, err := c.registry.Call(callCtx, prompt, system, c.callOptions())
	if err != nil {
		return false, err
	}
	return parseVerdict(resp.Content), nil
}

// parseVerdict reads a single-word valid/invalid answer, tolerating the
// surrounding prose models add anyway.
func parseVerdict(text string) bool {
	verdict := strings.ToLower(strings.TrimSpace(text))
	if strings.Contains(verdict, "invalid") {
		return false
	}
	return strings.Contains(verdict, "valid")
}

const evaluatorSystem = "You are a meticulous senior code reviewer. Respond with a single JSON object and nothing else."

// codeQuality asks the evaluator for a rubric score over the truncated
// corpus. A response with no parseable rubric scores 0 and carries the raw
// reply as feedback so the failure is visible in the metric row.
func (c *Checker) codeQuality(ctx context.Context, req Request) (float64, map[string]interface{}, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.registry.Call(callCtx, buildEvaluationPrompt(req), evaluatorSystem, c.callOptions())
	if err != nil {
		return 0, nil, "", fmt.Errorf("code quality evaluation failed: %w", err)
	}

	rubric, ok := parseRubric(resp.Content)
	if !ok {
		c.logger.WarnContext(ctx, "evaluation response had no parseable rubric",
			"task_id", req.TaskID, "provider", resp.Provider)
		return 0, nil, truncate(strings.TrimSpace(resp.Content), 500), nil
	}

	return clampScore(float64(rubric.TotalScore)), rubric.payload(), rubric.Feedback, nil
}

type rubricResponse struct {
	TotalScore flexScore            `json:"totalScore"`
	Scores     map[string]flexScore `json:"scores"`
	Feedback   string               `json:"feedback"`
	Issues     []json.RawMessage    `json:"issues"`
}

// payload converts the per-dimension scores into the metric row's static
// analysis column.
func (r *rubricResponse) payload() map[string]interface{} {
	if len(r.Scores) == 0 {
		return nil
	}
	payload := make(map[string]interface{}, len(r.Scores))
	for name, score := range r.Scores {
		payload[name] = float64(score)
	}
	return payload
}

func parseRubric(text string) (*rubricResponse, bool) {
	data, ok := extract.Object(text)
	if !ok {
		return nil, false
	}
	var rubric rubricResponse
	if err := json.Unmarshal(data, &rubric); err != nil {
		return nil, false
	}
	return &rubric, true
}

func buildEvaluationPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Review the following %s implementation of an analyzed requirement.\n\n", req.Language)
	if req.Analysis.Title != "" {
		fmt.Fprintf(&b, "Requirement: %s\n", req.Analysis.Title)
	}
	if req.Analysis.Functionality != "" {
		fmt.Fprintf(&b, "Expected functionality: %s\n", req.Analysis.Functionality)
	}

	b.WriteString("\nFiles:\n")
	b.WriteString(truncatedCorpus(req.Files))

	b.WriteString(`
Score the implementation on a 100-point rubric weighted correctness 30, completeness 25, code quality 25, error handling 10, security 10.

Respond with a single JSON object:
{"totalScore": <0-100>, "scores": {"correctness": <0-30>, "completeness": <0-25>, "codeQuality": <0-25>, "errorHandling": <0-10>, "security": <0-10>}, "feedback": "<overall assessment>", "issues": ["<issue>"]}
`)

	return b.String()
}

const coverageSystem = "You judge how completely a code artifact covers its stated requirement. Respond with a single JSON object and nothing else."

// requirementCoverage blends structural coverage of the analysis file list
// with an LLM judgement of functional coverage.
func (c *Checker) requirementCoverage(ctx context.Context, req Request) (float64, error) {
	structure := structureCoverage(req.Analysis.FileStructure, req.Files)

	functional, err := c.functionalCoverage(ctx, req)
	if err != nil {
		return 0, err
	}

	return clampScore(0.3*structure*100 + 0.7*functional), nil
}

func (c *Checker) functionalCoverage(ctx context.Context, req Request) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.registry.Call(callCtx, buildCoveragePrompt(req), coverageSystem, c.callOptions())
	if err != nil {
		return 0, fmt.Errorf("requirement coverage evaluation failed: %w", err)
	}

	var verdict struct {
		CoverageScore flexScore `json:"coverageScore"`
		Reason        string    `json:"reason"`
	}
	data, ok := extract.Object(resp.Content)
	if !ok || json.Unmarshal(data, &verdict) != nil {
		c.logger.WarnContext(ctx, "coverage response had no parseable verdict",
			"task_id", req.TaskID, "provider", resp.Provider)
		return 0, nil
	}

	return clampScore(float64(verdict.CoverageScore)), nil
}

func buildCoveragePrompt(req Request) string {
	var b strings.Builder

	b.WriteString("Judge how completely the code below implements the required functionality.\n\n")
	fmt.Fprintf(&b, "Required functionality: %s\n", req.Analysis.Functionality)
	if len(req.Analysis.Components) > 0 {
		fmt.Fprintf(&b, "Required components: %s\n", strings.Join(req.Analysis.Components, ", "))
	}

	b.WriteString("\nCode:\n")
	b.WriteString(joinedCode(req.Files))

	b.WriteString("\nRespond with a single JSON object: {\"coverageScore\": <0-100>, \"reason\": \"<short explanation>\"}\n")

	return b.String()
}

// structureCoverage is the fraction of filenames the analysis asked for
// that appear in the artifact, matched by name equality or by the required
// stem occurring in a generated filename. Entries without an extension are
// treated as directories and skipped; an empty requirement scores 1.
func structureCoverage(required []string, files map[string]string) float64 {
	names := make([]string, 0, len(required))
	for _, p := range required {
		base := path.Base(strings.ToLower(strings.ReplaceAll(p, "\\", "/")))
		if base == "." || base == "/" || path.Ext(base) == "" {
			continue
		}
		names = append(names, base)
	}
	if len(names) == 0 {
		return 1
	}

	generated := make([]string, 0, len(files))
	for p := range files {
		generated = append(generated, path.Base(strings.ToLower(p)))
	}

	matched := 0
	for _, name := range names {
		stem := strings.TrimSuffix(name, path.Ext(name))
		for _, gen := range generated {
			if gen == name || (stem != "" && strings.Contains(gen, stem)) {
				matched++
				break
			}
		}
	}

	return float64(matched) / float64(len(names))
}

func (c *Checker) callOptions() providers.CallOptions {
	return providers.CallOptions{
		Provider:    c.config.Provider,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}
}

// truncatedCorpus renders the artifact for an evaluation prompt, capping
// each file and the corpus as a whole.
func truncatedCorpus(files map[string]string) string {
	var b strings.Builder
	for _, filePath := range sortedPaths(files) {
		if b.Len() >= maxCorpusChars {
			b.WriteString("... (remaining files omitted)\n")
			break
		}
		content := files[filePath]
		if len(content) > maxFileChars {
			content = content[:maxFileChars] + "\n... (truncated)"
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", filePath, content)
	}
	return b.String()
}

// joinedCode concatenates the artifact for the coverage prompt, capped at
// the corpus limit.
func joinedCode(files map[string]string) string {
	var b strings.Builder
	for _, filePath := range sortedPaths(files) {
		fmt.Fprintf(&b, "// %s\n%s\n\n", filePath, files[filePath])
		if b.Len() >= maxCorpusChars {
			break
		}
	}
	if b.Len() > maxCorpusChars {
		return b.String()[:maxCorpusChars] + "\n... (truncated)"
	}
	return b.String()
}

func sortedPaths(files map[string]string) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func hasExtension(p string, exts []string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// flexScore decodes a JSON number whether or not the model quoted it.
type flexScore float64

func (s *flexScore) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("score %q is not numeric", raw)
	}
	*s = flexScore(v)
	return nil
}
