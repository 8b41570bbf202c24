package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresConfig contains configuration for the PostgreSQL store backend.
type PostgresConfig struct {
	// DSN is the connection string, either a postgres:// URL or key=value
	// form.
	DSN string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int
}

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore connects to PostgreSQL and bootstraps the schema.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil || config.DSN == "" {
		return nil, NewStorageError("postgres", "open", errors.New("dsn is required"))
	}

	logger := slog.Default().With("component", "store.postgres")

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, NewStorageError("postgres", "open", err)
	}

	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := config.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)

	s := &PostgresStore{
		db:     db,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("task store initialized",
		"backend", "postgres",
		"max_open_conns", maxOpen,
	)

	return s, nil
}

// initialize creates the schema and verifies the schema version.
func (s *PostgresStore) initialize() error {
	if _, err := s.db.Exec(PostgresSchema); err != nil {
		return NewStorageError("postgres", "create_schema", err)
	}

	if _, err := s.db.Exec(insertSchemaVersionPostgres, SchemaVersion); err != nil {
		return NewStorageError("postgres", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(getSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return NewStorageError("postgres", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStorageError("postgres", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// CreateTask inserts the task row and schedules its queue job. The row is
// durable before enqueue runs; on enqueue failure the row is deleted again
// so no task exists without a job.
func (s *PostgresStore) CreateTask(ctx context.Context, task *Task, enqueue EnqueueFunc) error {
	if err := prepareTask(task); err != nil {
		return err
	}

	details, err := marshalJSONColumn(task.Details)
	if err != nil {
		return NewStorageError("postgres", "create_task", err)
	}

	query := `
		INSERT INTO requirement_tasks (
			id, project_id, repository_url, branch, requirement_text,
			priority, additional_context, language, output_path, template_id,
			status, progress, details, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = s.db.ExecContext(ctx, query,
		task.ID, task.ProjectID, task.RepositoryURL, task.Branch, task.RequirementText,
		string(task.Priority), nullableString(task.AdditionalContext), string(task.Language), nullableString(task.OutputPath),
		nullableString(task.TemplateID), string(task.Status), task.Progress, details, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return NewStorageError("postgres", "create_task", err)
	}

	if enqueue != nil {
		if err := enqueue(ctx); err != nil {
			if _, delErr := s.db.ExecContext(ctx, `DELETE FROM requirement_tasks WHERE id = $1`, task.ID); delErr != nil {
				s.logger.Error("failed to remove task after enqueue failure",
					"task_id", task.ID, "error", delErr)
			}
			return err
		}
	}

	return nil
}

// UpdateStatus moves a task through its lifecycle. Progress and details
// replace the stored values; updated_at is refreshed.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status, progress float64, details map[string]interface{}) error {
	if !status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	if progress < 0 || progress > 1 {
		return &ValidationError{Field: "progress", Message: fmt.Sprintf("%.2f is outside [0,1]", progress)}
	}

	detailsVal, err := marshalJSONColumn(details)
	if err != nil {
		return NewStorageError("postgres", "update_status", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStorageError("postgres", "update_status", err)
	}
	defer tx.Rollback()

	var current Status
	err = tx.QueryRowContext(ctx, `SELECT status FROM requirement_tasks WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return NewNotFoundError("task", id)
	}
	if err != nil {
		return NewStorageError("postgres", "update_status", err)
	}

	if !current.CanTransition(status) {
		return &ConflictError{TaskID: id, From: current, To: status}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE requirement_tasks SET status = $1, progress = $2, details = $3, updated_at = $4 WHERE id = $5`,
		string(status), progress, detailsVal, time.Now().UTC(), id,
	)
	if err != nil {
		return NewStorageError("postgres", "update_status", err)
	}

	if err := tx.Commit(); err != nil {
		return NewStorageError("postgres", "update_status", err)
	}

	return nil
}

// GetTask returns the task by id.
func (s *PostgresStore) GetTask(ctx context.Context, id string) (*Task, error) {
	query := `
		SELECT id, project_id, repository_url, branch, requirement_text,
		       priority, additional_context, language, output_path, template_id,
		       status, progress, details, created_at, updated_at
		FROM requirement_tasks
		WHERE id = $1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("task", id)
	}
	if err != nil {
		return nil, NewStorageError("postgres", "get_task", err)
	}

	return task, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *PostgresStore) ListTasks(ctx context.Context, filter Filter) ([]*Task, error) {
	query := `
		SELECT id, project_id, repository_url, branch, requirement_text,
		       priority, additional_context, language, output_path, template_id,
		       status, progress, details, created_at, updated_at
		FROM requirement_tasks
	`

	var conditions []string
	var args []interface{}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewStorageError("postgres", "list_tasks", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, NewStorageError("postgres", "scan", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("postgres", "list_tasks", err)
	}

	return tasks, nil
}

// UpsertMetrics inserts the metric row for its task, or overwrites the
// scores, static analysis payload and feedback when one already exists.
// The original created_at stands on overwrite.
func (s *PostgresStore) UpsertMetrics(ctx context.Context, metric *QualityMetric) error {
	if err := prepareMetric(metric); err != nil {
		return err
	}

	payload, err := marshalJSONColumn(metric.StaticAnalysis)
	if err != nil {
		return NewStorageError("postgres", "upsert_metrics", err)
	}

	query := `
		INSERT INTO quality_metrics (
			id, task_id, code_quality_score, requirement_coverage_score,
			syntax_validity_score, static_analysis, feedback, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (task_id) DO UPDATE SET
			code_quality_score = EXCLUDED.code_quality_score,
			requirement_coverage_score = EXCLUDED.requirement_coverage_score,
			syntax_validity_score = EXCLUDED.syntax_validity_score,
			static_analysis = EXCLUDED.static_analysis,
			feedback = EXCLUDED.feedback
	`

	_, err = s.db.ExecContext(ctx, query,
		metric.ID, metric.TaskID,
		metric.CodeQuality, metric.RequirementCoverage, metric.SyntaxValidity,
		payload, nullableString(metric.Feedback), metric.CreatedAt,
	)
	if err != nil {
		return NewStorageError("postgres", "upsert_metrics", err)
	}

	return nil
}

// GetMetricsByTask returns the metric rows for a task, newest first.
func (s *PostgresStore) GetMetricsByTask(ctx context.Context, taskID string) ([]*QualityMetric, error) {
	query := `
		SELECT id, task_id, code_quality_score, requirement_coverage_score,
		       syntax_validity_score, static_analysis, feedback, created_at
		FROM quality_metrics
		WHERE task_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, NewStorageError("postgres", "get_metrics", err)
	}
	defer rows.Close()

	metrics := []*QualityMetric{}
	for rows.Next() {
		metric, err := scanMetric(rows)
		if err != nil {
			return nil, NewStorageError("postgres", "scan", err)
		}
		metrics = append(metrics, metric)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("postgres", "get_metrics", err)
	}

	return metrics, nil
}

// SaveTemplate inserts the template or overwrites the row holding its name.
func (s *PostgresStore) SaveTemplate(ctx context.Context, tpl *Template) error {
	if err := prepareTemplate(tpl); err != nil {
		return err
	}

	query := `
		INSERT INTO code_templates (
			id, name, language, description, content, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			language = EXCLUDED.language,
			description = EXCLUDED.description,
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		tpl.ID, tpl.Name, string(tpl.Language), nullableString(tpl.Description),
		tpl.Content, tpl.CreatedAt, tpl.UpdatedAt,
	)
	if err != nil {
		return NewStorageError("postgres", "save_template", err)
	}

	return nil
}

// GetTemplate returns the template by id.
func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (*Template, error) {
	query := `
		SELECT id, name, language, description, content, created_at, updated_at
		FROM code_templates
		WHERE id = $1
	`

	tpl, err := scanTemplate(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("template", id)
	}
	if err != nil {
		return nil, NewStorageError("postgres", "get_template", err)
	}

	return tpl, nil
}

// GetTemplateByName returns the template by its unique name.
func (s *PostgresStore) GetTemplateByName(ctx context.Context, name string) (*Template, error) {
	query := `
		SELECT id, name, language, description, content, created_at, updated_at
		FROM code_templates
		WHERE name = $1
	`

	tpl, err := scanTemplate(s.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("template", name)
	}
	if err != nil {
		return nil, NewStorageError("postgres", "get_template", err)
	}

	return tpl, nil
}

// ListTemplates returns all templates ordered by name.
func (s *PostgresStore) ListTemplates(ctx context.Context) ([]*Template, error) {
	query := `
		SELECT id, name, language, description, content, created_at, updated_at
		FROM code_templates
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, NewStorageError("postgres", "list_templates", err)
	}
	defer rows.Close()

	templates := []*Template{}
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, NewStorageError("postgres", "scan", err)
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("postgres", "list_templates", err)
	}

	return templates, nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStorageError("postgres", "ping", err)
	}
	return nil
}

// Close releases the database handles.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		return NewStorageError("postgres", "close", err)
	}
	s.logger.Info("task store closed")
	return nil
}
