// Package pipeline drives a requirement task from pending to completed:
// LLM analysis, code generation, quality scoring and the Git commit, with
// progress and outcomes recorded on the task row after every stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"forgehq/loom/pkg/pipeline/analyzer"
	"forgehq/loom/pkg/pipeline/committer"
	"forgehq/loom/pkg/pipeline/generator"
	"forgehq/loom/pkg/pipeline/quality"
	"forgehq/loom/pkg/providers"
	"forgehq/loom/pkg/queue"
	"forgehq/loom/pkg/store"
)

// Stage names recorded in details.stage when a task fails.
const (
	StageAnalysis   = "requirement_analysis"
	StageGeneration = "code_generation"
	StageQuality    = "quality_check"
	StageCommit     = "code_commit"
)

// Progress markers written after each stage.
const (
	progressAnalyzing      = 0.1
	progressAnalyzed       = 0.3
	progressGenerated      = 0.5
	progressQualityChecked = 0.7
	progressCommitting     = 0.8
	progressCompleted      = 1.0
)

// ErrQualityGate is the failure recorded when gating is enforced and the
// artifact scores below the threshold.
var ErrQualityGate = errors.New("Low code quality score")

// TaskStore is the slice of the task store the pipeline reads and writes.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (*store.Task, error)
	UpdateStatus(ctx context.Context, id string, status store.Status, progress float64, details map[string]interface{}) error
	GetTemplate(ctx context.Context, id string) (*store.Template, error)
}

// Analyzer turns requirement text into a structured analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.Request) (*analyzer.Result, error)
}

// Generator produces source files from an analysis.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) (*generator.Result, error)
}

// Checker scores a generated artifact and persists the metric row.
type Checker interface {
	Check(ctx context.Context, req quality.Request) (*quality.Result, error)
}

// Committer pushes an artifact to a branch of the task's repository.
type Committer interface {
	Commit(ctx context.Context, req committer.Request) (*committer.Result, error)
}

// Hooks receive in-process pipeline events. Nil callbacks are skipped;
// callbacks run on the worker goroutine and must return quickly.
type Hooks struct {
	// CodeGenerated fires once the generation stage has an artifact.
	CodeGenerated func(taskID string, files []string)

	// CodeCommit fires after each pushed commit, comparison branches
	// included.
	CodeCommit func(taskID, branch, commitHash string)
}

// Metrics receives stage and task timing observations. Implementations
// must be goroutine safe; calls happen on worker goroutines.
type Metrics interface {
	RecordStage(stage string, duration time.Duration, failed bool)
	RecordTask(status string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordStage(string, time.Duration, bool) {}
func (noopMetrics) RecordTask(string, time.Duration)        {}

// Config carries the pipeline's processing policy.
type Config struct {
	// EnforceQualityGate fails tasks below the quality threshold instead
	// of committing anyway.
	EnforceQualityGate bool
}

// Options assembles a Pipeline.
type Options struct {
	Store     TaskStore
	Analyzer  Analyzer
	Generator Generator
	Checker   Checker
	Committer Committer
	Config    Config
	Hooks     Hooks

	// Metrics is optional; a no-op sink is used when nil.
	Metrics Metrics
}

// Pipeline is the queue processor for requirement tasks.
type Pipeline struct {
	store     TaskStore
	analyzer  Analyzer
	generator Generator
	checker   Checker
	committer Committer
	config    Config
	hooks     Hooks
	metrics   Metrics
	logger    *slog.Logger
}

// New validates the options and assembles the pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("analyzer cannot be nil")
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if opts.Checker == nil {
		return nil, fmt.Errorf("checker cannot be nil")
	}
	if opts.Committer == nil {
		return nil, fmt.Errorf("committer cannot be nil")
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Pipeline{
		store:     opts.Store,
		analyzer:  opts.Analyzer,
		generator: opts.Generator,
		checker:   opts.Checker,
		committer: opts.Committer,
		config:    opts.Config,
		hooks:     opts.Hooks,
		metrics:   metrics,
		logger:    slog.Default().With("component", "pipeline"),
	}, nil
}

// Process is the queue processor. One invocation owns the task end to
// end. A nil return completes the job; returned errors are retried by the
// queue, so failures that can never succeed are recorded on the task and
// swallowed here.
func (p *Pipeline) Process(ctx context.Context, job *queue.Job) error {
	task, err := p.store.GetTask(ctx, job.ID)
	if err != nil {
		var notFound *store.NotFoundError
		if errors.As(err, &notFound) {
			p.logger.WarnContext(ctx, "job references missing task", "task_id", job.ID)
			return nil
		}
		return err
	}
	return p.run(ctx, task)
}

func (p *Pipeline) run(ctx context.Context, task *store.Task) error {
	details := map[string]interface{}{}

	if err := p.mark(ctx, task.ID, progressAnalyzing, details); err != nil {
		return err
	}

	templateContent, err := p.templateContent(ctx, task)
	if err != nil {
		return err
	}

	stageStart := time.Now()
	analyzed, err := p.analyzer.Analyze(ctx, analyzer.Request{
		RequirementText:   task.RequirementText,
		Language:          task.Language,
		AdditionalContext: task.AdditionalContext,
		TemplateContent:   templateContent,
	})
	p.metrics.RecordStage(StageAnalysis, time.Since(stageStart), err != nil)
	if err != nil {
		return p.fail(ctx, task, details, StageAnalysis, err)
	}
	details["analysis"] = analyzed.Analysis
	details["analysisModel"] = analyzed.Model
	if err := p.mark(ctx, task.ID, progressAnalyzed, details); err != nil {
		return err
	}

	stageStart = time.Now()
	generated, err := p.generator.Generate(ctx, generator.Request{
		Analysis:   analyzed.Analysis,
		Language:   task.Language,
		OutputPath: task.OutputPath,
	})
	p.metrics.RecordStage(StageGeneration, time.Since(stageStart), err != nil)
	if err != nil {
		return p.fail(ctx, task, details, StageGeneration, err)
	}
	files := sortedPaths(generated.Files)
	details["generatedFiles"] = files
	if err := p.mark(ctx, task.ID, progressGenerated, details); err != nil {
		return err
	}
	if p.hooks.CodeGenerated != nil {
		p.hooks.CodeGenerated(task.ID, files)
	}

	stageStart = time.Now()
	checked, err := p.checker.Check(ctx, quality.Request{
		TaskID:   task.ID,
		Analysis: analyzed.Analysis,
		Language: task.Language,
		Files:    generated.Files,
	})
	p.metrics.RecordStage(StageQuality, time.Since(stageStart), err != nil)
	if err != nil {
		return p.fail(ctx, task, details, StageQuality, err)
	}
	details["qualityScores"] = map[string]float64{
		"codeQuality":         checked.CodeQuality,
		"requirementCoverage": checked.RequirementCoverage,
		"syntaxValidity":      checked.SyntaxValidity,
	}
	details["qualityPassed"] = checked.Passed
	if err := p.mark(ctx, task.ID, progressQualityChecked, details); err != nil {
		return err
	}

	if p.config.EnforceQualityGate && !checked.Passed {
		return p.fail(ctx, task, details, StageQuality, ErrQualityGate)
	}

	if err := p.mark(ctx, task.ID, progressCommitting, details); err != nil {
		return err
	}
	stageStart = time.Now()
	committed, err := p.committer.Commit(ctx, committer.Request{
		RepositoryURL:   task.RepositoryURL,
		Branch:          task.Branch,
		OutputPath:      generated.OutputPath,
		Files:           generated.Files,
		AnalysisTitle:   analyzed.Analysis.Title,
		RequirementText: task.RequirementText,
	})
	p.metrics.RecordStage(StageCommit, time.Since(stageStart), err != nil)
	if err != nil {
		return p.fail(ctx, task, details, StageCommit, err)
	}
	details["commitHash"] = committed.CommitHash
	details["filesChanged"] = committed.FilesChanged
	if p.hooks.CodeCommit != nil {
		p.hooks.CodeCommit(task.ID, task.Branch, committed.CommitHash)
	}

	if branches := p.commitAlternates(ctx, task, analyzed, generated); len(branches) > 0 {
		details["comparisonBranches"] = branches
	}

	if err := p.store.UpdateStatus(ctx, task.ID, store.StatusCompleted, progressCompleted, details); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	p.metrics.RecordTask(string(store.StatusCompleted), time.Since(task.CreatedAt))

	p.logger.InfoContext(ctx, "task completed",
		"task_id", task.ID,
		"commit", committed.CommitHash,
		"files", len(committed.FilesChanged),
		"quality_passed", checked.Passed,
	)
	return nil
}

// templateContent resolves the task's template. A missing template is
// logged and skipped so a template deleted after task creation does not
// strand the task; storage failures propagate for retry.
func (p *Pipeline) templateContent(ctx context.Context, task *store.Task) (string, error) {
	if task.TemplateID == "" {
		return "", nil
	}
	tpl, err := p.store.GetTemplate(ctx, task.TemplateID)
	if err != nil {
		var notFound *store.NotFoundError
		if errors.As(err, &notFound) {
			p.logger.WarnContext(ctx, "task references missing template",
				"task_id", task.ID, "template_id", task.TemplateID)
			return "", nil
		}
		return "", err
	}
	return tpl.Content, nil
}

// commitAlternates pushes the remaining multi-model artifacts to
// comparison branches named <branch>-<provider>. Failures are logged and
// skipped; a broken alternate never fails an otherwise completed task.
func (p *Pipeline) commitAlternates(ctx context.Context, task *store.Task, analyzed *analyzer.Result, generated *generator.Result) []string {
	if len(generated.Alternates) == 0 {
		return nil
	}

	branches := make([]string, 0, len(generated.Alternates))
	for _, alt := range generated.Alternates {
		branch := fmt.Sprintf("%s-%s", task.Branch, alt.Provider)
		result, err := p.committer.Commit(ctx, committer.Request{
			RepositoryURL:   task.RepositoryURL,
			Branch:          branch,
			OutputPath:      generated.OutputPath,
			Files:           alt.Files,
			AnalysisTitle:   analyzed.Analysis.Title,
			RequirementText: task.RequirementText,
		})
		if err != nil {
			p.logger.WarnContext(ctx, "comparison branch commit failed",
				"task_id", task.ID, "branch", branch, "error", err)
			continue
		}
		branches = append(branches, branch)
		if p.hooks.CodeCommit != nil {
			p.hooks.CodeCommit(task.ID, branch, result.CommitHash)
		}
	}
	return branches
}

// mark advances the task's progress, replacing stored details with the
// accumulated map. Storage failures abort the run so the queue retries.
func (p *Pipeline) mark(ctx context.Context, taskID string, progress float64, details map[string]interface{}) error {
	if err := p.store.UpdateStatus(ctx, taskID, store.StatusInProgress, progress, details); err != nil {
		return fmt.Errorf("failed to record progress %v: %w", progress, err)
	}
	return nil
}

// fail records the failure on the task row and decides retryability. For
// permanent failures the job completes so the queue does not burn
// attempts on an outcome that cannot change.
func (p *Pipeline) fail(ctx context.Context, task *store.Task, details map[string]interface{}, stage string, cause error) error {
	details["error"] = cause.Error()
	details["stage"] = stage

	if err := p.store.UpdateStatus(ctx, task.ID, store.StatusFailed, 0, details); err != nil {
		p.logger.ErrorContext(ctx, "failed to record task failure",
			"task_id", task.ID, "stage", stage, "error", err)
	}

	p.logger.WarnContext(ctx, "task failed",
		"task_id", task.ID, "stage", stage, "error", cause)

	// Only permanent failures are terminal from here; a retryable one may
	// still complete on a later attempt, so it is not counted as failed.
	if permanent(cause) {
		p.metrics.RecordTask(string(store.StatusFailed), time.Since(task.CreatedAt))
		return nil
	}
	return cause
}

// permanent reports whether retrying the task could ever change the
// outcome.
func permanent(err error) bool {
	var invalid *committer.ValidationError
	if errors.As(err, &invalid) {
		return true
	}
	return !providers.IsRetryable(err)
}

func sortedPaths(files map[string]string) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
