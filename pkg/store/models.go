package store

import "time"

// Priority controls how soon a task is dequeued relative to others.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// QueueValue maps the priority to its queue ordering value. Lower values
// are dequeued sooner; critical tasks come first.
func (p Priority) QueueValue() int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 4
	default:
		return 3
	}
}

// Language identifies the implementation language requested for a task.
type Language string

const (
	LanguageTypeScript Language = "typescript"
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
	LanguageJava       Language = "java"
	LanguageCSharp     Language = "csharp"
	LanguageGo         Language = "go"
	LanguageRuby       Language = "ruby"
	LanguagePHP        Language = "php"
)

// Valid reports whether l is a supported target language.
func (l Language) Valid() bool {
	switch l {
	case LanguageTypeScript, LanguageJavaScript, LanguagePython, LanguageJava,
		LanguageCSharp, LanguageGo, LanguageRuby, LanguagePHP:
		return true
	}
	return false
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a task may move from s to next. Any state
// may fail. Terminal tasks re-enter in_progress only through a re-queued
// job; the store cannot tell a retry from a misbehaving caller, so it
// accepts the transition and leaves that guarantee to the queue.
func (s Status) CanTransition(next Status) bool {
	if next == StatusFailed {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusInProgress || next == StatusCompleted
	case StatusCompleted, StatusFailed:
		return next == StatusInProgress
	}
	return false
}

// Task is a single natural-language requirement moving through the
// pipeline. Details accumulates structured per-stage diagnostics (analysis
// summary, generated file list, quality verdict, commit hash) and is
// replaced wholesale on every status update.
type Task struct {
	ID                string                 `json:"id"`
	ProjectID         string                 `json:"project_id"`
	RepositoryURL     string                 `json:"repository_url"`
	Branch            string                 `json:"branch"`
	RequirementText   string                 `json:"requirement_text"`
	Priority          Priority               `json:"priority"`
	AdditionalContext string                 `json:"additional_context,omitempty"`
	Language          Language               `json:"language"`
	OutputPath        string                 `json:"output_path,omitempty"`
	TemplateID        string                 `json:"template_id,omitempty"`
	Status            Status                 `json:"status"`
	Progress          float64                `json:"progress"`
	Details           map[string]interface{} `json:"details,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// QualityMetric records the scored outcome of one quality-check attempt.
// A task keeps at most one row; re-checks overwrite the scores, the static
// analysis payload and the feedback while the original created_at stands.
type QualityMetric struct {
	ID                  string                 `json:"id"`
	TaskID              string                 `json:"task_id"`
	CodeQuality         float64                `json:"code_quality_score"`
	RequirementCoverage float64                `json:"requirement_coverage_score"`
	SyntaxValidity      float64                `json:"syntax_validity_score"`
	StaticAnalysis      map[string]interface{} `json:"static_analysis,omitempty"`
	Feedback            string                 `json:"feedback,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
}

// Aggregate derives the overall quality score. It is never stored; the
// weights favour code quality over coverage over syntax.
func (m *QualityMetric) Aggregate() float64 {
	return 0.5*m.CodeQuality + 0.3*m.RequirementCoverage + 0.2*m.SyntaxValidity
}

// Template is a reusable code template appended to analysis prompts when a
// task references it. Templates are upserted by name so the directory
// watcher can re-save on file change without duplicating rows.
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Language    Language  `json:"language"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
