package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// prepareTask fills generated fields and validates the model before insert.
// Empty priority and language fall back to the service defaults.
func prepareTask(task *Task) error {
	if task.ProjectID == "" {
		return &ValidationError{Field: "project_id", Message: "is required"}
	}
	if task.RepositoryURL == "" {
		return &ValidationError{Field: "repository_url", Message: "is required"}
	}
	if task.Branch == "" {
		return &ValidationError{Field: "branch", Message: "is required"}
	}
	if task.RequirementText == "" {
		return &ValidationError{Field: "requirement_text", Message: "is required"}
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}
	if !task.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", task.Priority)}
	}
	if task.Language == "" {
		task.Language = LanguageTypeScript
	}
	if !task.Language.Valid() {
		return &ValidationError{Field: "language", Message: fmt.Sprintf("unsupported language %q", task.Language)}
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	task.Status = StatusPending
	task.Progress = 0
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

// prepareMetric fills generated fields and validates the metric.
func prepareMetric(metric *QualityMetric) error {
	if metric.TaskID == "" {
		return &ValidationError{Field: "task_id", Message: "is required"}
	}
	for _, score := range []struct {
		field string
		value float64
	}{
		{"code_quality_score", metric.CodeQuality},
		{"requirement_coverage_score", metric.RequirementCoverage},
		{"syntax_validity_score", metric.SyntaxValidity},
	} {
		if score.value < 0 || score.value > 100 {
			return &ValidationError{Field: score.field, Message: fmt.Sprintf("%.2f is outside [0,100]", score.value)}
		}
	}
	if metric.ID == "" {
		metric.ID = uuid.NewString()
	}
	if metric.CreatedAt.IsZero() {
		metric.CreatedAt = time.Now().UTC()
	}
	return nil
}

// prepareTemplate fills generated fields and validates the template.
func prepareTemplate(tpl *Template) error {
	if tpl.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if tpl.Content == "" {
		return &ValidationError{Field: "content", Message: "is required"}
	}
	if !tpl.Language.Valid() {
		return &ValidationError{Field: "language", Message: fmt.Sprintf("unsupported language %q", tpl.Language)}
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
	return nil
}

// marshalJSONColumn renders m as a JSON column value, NULL when empty.
func marshalJSONColumn(m map[string]interface{}) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// nullableString converts empty strings to NULL for optional columns.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func scanTask(row rowScanner) (*Task, error) {
	var task Task
	var additionalContext, outputPath, templateID, details sql.NullString

	err := row.Scan(
		&task.ID, &task.ProjectID, &task.RepositoryURL, &task.Branch,
		&task.RequirementText, &task.Priority, &additionalContext,
		&task.Language, &outputPath, &templateID, &task.Status, &task.Progress,
		&details, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.AdditionalContext = additionalContext.String
	task.OutputPath = outputPath.String
	task.TemplateID = templateID.String
	if details.Valid && details.String != "" {
		json.Unmarshal([]byte(details.String), &task.Details)
	}

	return &task, nil
}

func scanMetric(row rowScanner) (*QualityMetric, error) {
	var metric QualityMetric
	var staticAnalysis, feedback sql.NullString

	err := row.Scan(
		&metric.ID, &metric.TaskID,
		&metric.CodeQuality, &metric.RequirementCoverage, &metric.SyntaxValidity,
		&staticAnalysis, &feedback, &metric.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	metric.Feedback = feedback.String
	if staticAnalysis.Valid && staticAnalysis.String != "" {
		json.Unmarshal([]byte(staticAnalysis.String), &metric.StaticAnalysis)
	}

	return &metric, nil
}

func scanTemplate(row rowScanner) (*Template, error) {
	var tpl Template
	var description sql.NullString

	err := row.Scan(
		&tpl.ID, &tpl.Name, &tpl.Language, &description, &tpl.Content,
		&tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tpl.Description = description.String
	return &tpl, nil
}
