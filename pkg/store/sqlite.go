package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig contains configuration for the SQLite store backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/loom.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// dsn builds the driver connection string. Journal mode and busy timeout
// ride on the DSN so every pooled connection picks them up.
func (c *SQLiteConfig) dsn() string {
	params := url.Values{}
	if c.WALMode {
		params.Set("_journal_mode", "WAL")
	}
	if c.BusyTimeout > 0 {
		params.Set("_busy_timeout", fmt.Sprintf("%d", c.BusyTimeout.Milliseconds()))
	}
	if len(params) == 0 {
		return c.Path
	}
	return fmt.Sprintf("file:%s?%s", c.Path, params.Encode())
}

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens, and creates if necessary, the SQLite task database.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "store.sqlite")

	if dir := filepath.Dir(config.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, NewStorageError("sqlite", "mkdir", err)
		}
	}

	db, err := sql.Open("sqlite3", config.dsn())
	if err != nil {
		return nil, NewStorageError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("task store initialized",
		"backend", "sqlite",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize creates the schema and verifies the schema version.
func (s *SQLiteStore) initialize() error {
	if _, err := s.db.Exec(SQLiteSchema); err != nil {
		return NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(insertSchemaVersionSQLite, SchemaVersion); err != nil {
		return NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(getSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// CreateTask inserts the task row and schedules its queue job. The row is
// durable before enqueue runs; on enqueue failure the row is deleted again
// so no task exists without a job.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *Task, enqueue EnqueueFunc) error {
	if err := prepareTask(task); err != nil {
		return err
	}

	details, err := marshalJSONColumn(task.Details)
	if err != nil {
		return NewStorageError("sqlite", "create_task", err)
	}

	query := `
		INSERT INTO requirement_tasks (
			id, project_id, repository_url, branch, requirement_text,
			priority, additional_context, language, output_path, template_id,
			status, progress, details, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		task.ID, task.ProjectID, task.RepositoryURL, task.Branch, task.RequirementText,
		string(task.Priority), nullableString(task.AdditionalContext), string(task.Language), nullableString(task.OutputPath),
		nullableString(task.TemplateID), string(task.Status), task.Progress, details, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return NewStorageError("sqlite", "create_task", err)
	}

	if enqueue != nil {
		if err := enqueue(ctx); err != nil {
			if _, delErr := s.db.ExecContext(ctx, `DELETE FROM requirement_tasks WHERE id = ?`, task.ID); delErr != nil {
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
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status Status, progress float64, details map[string]interface{}) error {
	if !status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	if progress < 0 || progress > 1 {
		return &ValidationError{Field: "progress", Message: fmt.Sprintf("%.2f is outside [0,1]", progress)}
	}

	detailsVal, err := marshalJSONColumn(details)
	if err != nil {
		return NewStorageError("sqlite", "update_status", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStorageError("sqlite", "update_status", err)
	}
	defer tx.Rollback()

	var current Status
	err = tx.QueryRowContext(ctx, `SELECT status FROM requirement_tasks WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return NewNotFoundError("task", id)
	}
	if err != nil {
		return NewStorageError("sqlite", "update_status", err)
	}

	if !current.CanTransition(status) {
		return &ConflictError{TaskID: id, From: current, To: status}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE requirement_tasks SET status = ?, progress = ?, details = ?, updated_at = ? WHERE id = ?`,
		string(status), progress, detailsVal, time.Now().UTC(), id,
	)
	if err != nil {
		return NewStorageError("sqlite", "update_status", err)
	}

	if err := tx.Commit(); err != nil {
		return NewStorageError("sqlite", "update_status", err)
	}

	return nil
}

// GetTask returns the task by id.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	query := `
		SELECT id, project_id, repository_url, branch, requirement_text,
		       priority, additional_context, language, output_path, template_id,
		       status, progress, details, created_at, updated_at
		FROM requirement_tasks
		WHERE id = ?
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("task", id)
	}
	if err != nil {
		return nil, NewStorageError("sqlite", "get_task", err)
	}

	return task, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, filter Filter) ([]*Task, error) {
	query := `
		SELECT id, project_id, repository_url, branch, requirement_text,
		       priority, additional_context, language, output_path, template_id,
		       status, progress, details, created_at, updated_at
		FROM requirement_tasks
	`

	var conditions []string
	var args []interface{}
	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewStorageError("sqlite", "list_tasks", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, NewStorageError("sqlite", "scan", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "list_tasks", err)
	}

	return tasks, nil
}

// UpsertMetrics inserts the metric row for its task, or overwrites the
// scores, static analysis payload and feedback when one already exists.
// The original created_at stands on overwrite.
func (s *SQLiteStore) UpsertMetrics(ctx context.Context, metric *QualityMetric) error {
	if err := prepareMetric(metric); err != nil {
		return err
	}

	payload, err := marshalJSONColumn(metric.StaticAnalysis)
	if err != nil {
		return NewStorageError("sqlite", "upsert_metrics", err)
	}

	query := `
		INSERT INTO quality_metrics (
			id, task_id, code_quality_score, requirement_coverage_score,
			syntax_validity_score, static_analysis, feedback, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			code_quality_score = excluded.code_quality_score,
			requirement_coverage_score = excluded.requirement_coverage_score,
			syntax_validity_score = excluded.syntax_validity_score,
			static_analysis = excluded.static_analysis,
			feedback = excluded.feedback
	`

	_, err = s.db.ExecContext(ctx, query,
		metric.ID, metric.TaskID,
		metric.CodeQuality, metric.RequirementCoverage, metric.SyntaxValidity,
		payload, nullableString(metric.Feedback), metric.CreatedAt,
	)
	if err != nil {
		return NewStorageError("sqlite", "upsert_metrics", err)
	}

	return nil
}

// GetMetricsByTask returns the metric rows for a task, newest first.
func (s *SQLiteStore) GetMetricsByTask(ctx context.Context, taskID string) ([]*QualityMetric, error) {
	query := `
		SELECT id, task_id, code_quality_score, requirement_coverage_score,
		       syntax_validity_score, static_analysis, feedback, created_at
		FROM quality_metrics
		WHERE task_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, NewStorageError("sqlite", "get_metrics", err)
	}
	defer rows.Close()

	metrics := []*QualityMetric{}
	for rows.Next() {
		metric, err := scanMetric(rows)
		if err != nil {
			return nil, NewStorageError("sqlite", "scan", err)
		}
		metrics = append(metrics, metric)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "get_metrics", err)
	}

	return metrics, nil
}

// SaveTemplate inserts the template or overwrites the row holding its name.
func (s *SQLiteStore) SaveTemplate(ctx context.Context, tpl *Template) error {
	if err := prepareTemplate(tpl); err != nil {
		return err
	}

	query := `
		INSERT INTO code_templates (
			id, name, language, description, content, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			language = excluded.language,
			description = excluded.description,
			content = excluded.content,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		tpl.ID, tpl.Name, string(tpl.Language), nullableString(tpl.Description),
		tpl.Content, tpl.CreatedAt, tpl.UpdatedAt,
	)
	if err != nil {
		return NewStorageError("sqlite", "save_template", err)
	}

	return nil
}

// GetTemplate returns the template by id.
func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*Template, error) {
	query := `
		SELECT id, name, language, description, content, created_at, updated_at
		FROM code_templates
		WHERE id = ?
	`

	tpl, err := scanTemplate(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("template", id)
	}
	if err != nil {
		return nil, NewStorageError("sqlite", "get_template", err)
	}

	return tpl, nil
}

// GetTemplateByName returns the template by its unique name.
func (s *SQLiteStore) GetTemplateByName(ctx context.Context, name string) (*Template, error) {
	query := `
		SELECT id, name, language, description, content, created_at, updated_at
		FROM code_templates
		WHERE name = ?
	`

	tpl, err := scanTemplate(s.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("template", name)
	}
	if err != nil {
		return nil, NewStorageError("sqlite", "get_template", err)
	}

	return tpl, nil
}

// ListTemplates returns all templates ordered by name.
func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]*Template, error) {
	query := `
		SELECT id, name, language, description, content, created_at, updated_at
		FROM code_templates
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, NewStorageError("sqlite", "list_templates", err)
	}
	defer rows.Close()

	templates := []*Template{}
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, NewStorageError("sqlite", "scan", err)
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "list_templates", err)
	}

	return templates, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close releases the database handles.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("task store closed")
	return nil
}
