package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Filter narrows ListTasks results. Zero values match everything.
type Filter struct {
	ProjectID string
	Status    Status
}

// EnqueueFunc schedules the queue job for a freshly inserted task.
// CreateTask invokes it once the task row is durable and removes the row
// again if it fails, so a task never outlives a failed enqueue.
type EnqueueFunc func(ctx context.Context) error

// Store persists tasks, quality metrics and code templates.
// Implementations are safe for concurrent use.
type Store interface {
	// CreateTask validates and inserts the task, then runs enqueue. A nil
	// enqueue skips scheduling. If enqueue fails the inserted row is
	// deleted and the enqueue error returned.
	CreateTask(ctx context.Context, task *Task, enqueue EnqueueFunc) error

	// UpdateStatus moves a task to status, replacing progress and details
	// and refreshing updated_at. Transitions outside the lifecycle return
	// a ConflictError; unknown ids a NotFoundError.
	UpdateStatus(ctx context.Context, id string, status Status, progress float64, details map[string]interface{}) error

	// GetTask returns the task or a NotFoundError.
	GetTask(ctx context.Context, id string) (*Task, error)

	// ListTasks returns tasks matching the filter, newest first.
	ListTasks(ctx context.Context, filter Filter) ([]*Task, error)

	// UpsertMetrics inserts the metric row for its task, or overwrites the
	// scores, static analysis payload and feedback when one already exists.
	UpsertMetrics(ctx context.Context, metric *QualityMetric) error

	// GetMetricsByTask returns the metric rows for a task, newest first.
	// An unknown task yields an empty slice, not an error.
	GetMetricsByTask(ctx context.Context, taskID string) ([]*QualityMetric, error)

	// SaveTemplate inserts the template or, when the name is taken,
	// overwrites that row's language, description and content.
	SaveTemplate(ctx context.Context, tpl *Template) error

	// GetTemplate returns the template by id or a NotFoundError.
	GetTemplate(ctx context.Context, id string) (*Template, error)

	// GetTemplateByName returns the template by name or a NotFoundError.
	GetTemplateByName(ctx context.Context, name string) (*Template, error)

	// ListTemplates returns all templates ordered by name.
	ListTemplates(ctx context.Context) ([]*Template, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying database handles.
	Close() error
}

// Config selects and tunes the storage backend.
type Config struct {
	// Backend is "sqlite" or "postgres". Default: "sqlite".
	Backend string

	// SQLite configures the SQLite backend. Nil means defaults.
	SQLite *SQLiteConfig

	// Postgres configures the PostgreSQL backend. Required when Backend
	// is "postgres".
	Postgres *PostgresConfig
}

// Open creates the store selected by cfg.Backend.
func Open(cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	switch cfg.Backend {
	case BackendSQLite, "":
		return NewSQLiteStore(cfg.SQLite)
	case BackendPostgres:
		return NewPostgresStore(cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported store backend: %q", cfg.Backend)
	}
}
