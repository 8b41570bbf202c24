package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteConfig contains configuration for the SQLite queue backend.
type SQLiteConfig struct {
	// Path is the queue database file path. The queue keeps its own file
	// so job churn never contends with the task store.
	// Default: "data/loom-queue.db"
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite queue configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:        "data/loom-queue.db",
		BusyTimeout: 5 * time.Second,
	}
}

// SQLiteBackend implements Backend on a SQLite file using a single
// writer connection, which serializes claims without row locks.
type SQLiteBackend struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteBackend opens, and creates if necessary, the queue database.
func NewSQLiteBackend(config *SQLiteConfig) (*SQLiteBackend, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		config.Path = DefaultSQLiteConfig().Path
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "queue.sqlite")

	if dir := filepath.Dir(config.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, NewStorageError("sqlite", "mkdir", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		config.Path, int(config.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, NewStorageError("sqlite", "open", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	b := &SQLiteBackend{db: db, logger: logger}
	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, NewStorageError("sqlite", "create_schema", err)
	}

	logger.Info("queue backend initialized", "backend", "sqlite", "path", config.Path)
	return b, nil
}

// initSchema creates the jobs table if it does not exist. Timestamps are
// stored as unix milliseconds so both SQL drivers scan them identically.
func (b *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS queue_jobs (
		id TEXT PRIMARY KEY,
		queue TEXT NOT NULL,
		priority INTEGER NOT NULL,
		state TEXT NOT NULL DEFAULT 'waiting',
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		run_at INTEGER NOT NULL,
		locked_by TEXT NOT NULL DEFAULT '',
		locked_until INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_queue_jobs_claim ON queue_jobs(queue, state, priority, run_at);
	CREATE INDEX IF NOT EXISTS idx_queue_jobs_locked_until ON queue_jobs(locked_until);
	`

	_, err := b.db.Exec(schema)
	return err
}

const jobColumns = `id, queue, priority, state, attempts, max_attempts, last_error,
	run_at, locked_by, locked_until, created_at, updated_at`

// Enqueue inserts the job, leaving an existing non-terminal row as-is and
// resetting an existing terminal row to waiting.
func (b *SQLiteBackend) Enqueue(ctx context.Context, job *Job) error {
	res, err := b.db.ExecContext(ctx, `
		INSERT INTO queue_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, 0, ?, '', ?, '', 0, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		job.ID, job.Queue, job.Priority, string(StateWaiting), job.MaxAttempts,
		timeToMillis(job.RunAt), timeToMillis(job.CreatedAt), timeToMillis(job.UpdatedAt),
	)
	if err != nil {
		return NewStorageError("sqlite", "enqueue", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return NewStorageError("sqlite", "enqueue", err)
	}
	if inserted > 0 {
		return nil
	}

	// Same id already queued; only a finished job may run again.
	_, err = b.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET priority = ?, state = ?, attempts = 0, last_error = '',
		    run_at = ?, locked_by = '', locked_until = 0, updated_at = ?
		WHERE id = ? AND state IN (?, ?)`,
		job.Priority, string(StateWaiting),
		timeToMillis(job.RunAt), timeToMillis(job.UpdatedAt),
		job.ID, string(StateCompleted), string(StateFailed),
	)
	if err != nil {
		return NewStorageError("sqlite", "enqueue", err)
	}
	return nil
}

// Claim leases the most urgent due job inside a transaction. The single
// writer connection keeps the select and update atomic across pools.
func (b *SQLiteBackend) Claim(ctx context.Context, queue, workerID string, lockDuration time.Duration) (*Job, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, NewStorageError("sqlite", "claim", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	row := tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM queue_jobs
		WHERE queue = ? AND state = ? AND run_at <= ?
		ORDER BY priority ASC, created_at ASC, id ASC
		LIMIT 1`,
		queue, string(StateWaiting), now.UnixMilli(),
	)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, NewStorageError("sqlite", "claim", err)
	}

	lockedUntil := now.Add(lockDuration)
	res, err := tx.ExecContext(ctx, `
		UPDATE queue_jobs
		SET state = ?, attempts = attempts + 1, locked_by = ?, locked_until = ?, updated_at = ?
		WHERE id = ? AND state = ?`,
		string(StateActive), workerID, lockedUntil.UnixMilli(), now.UnixMilli(),
		job.ID, string(StateWaiting),
	)
	if err != nil {
		return nil, NewStorageError("sqlite", "claim", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, NewStorageError("sqlite", "claim", err)
	}
	if affected == 0 {
		// Lost to a concurrent claim; the next poll retries.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, NewStorageError("sqlite", "claim", err)
	}

	job.State = StateActive
	job.Attempts++
	job.LockedBy = workerID
	job.LockedUntil = lockedUntil
	job.UpdatedAt = now
	return job, nil
}

// Heartbeat extends the lease on every active job held by workerID.
func (b *SQLiteBackend) Heartbeat(ctx context.Context, workerID string, lockDuration time.Duration) error {
	now := time.Now().UTC()
	_, err := b.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET locked_until = ?, updated_at = ?
		WHERE locked_by = ? AND state = ?`,
		now.Add(lockDuration).UnixMilli(), now.UnixMilli(), workerID, string(StateActive),
	)
	if err != nil {
		return NewStorageError("sqlite", "heartbeat", err)
	}
	return nil
}

// Complete marks an active job completed.
func (b *SQLiteBackend) Complete(ctx context.Context, id string) error {
	return b.finish(ctx, id, `
		UPDATE queue_jobs
		SET state = ?, locked_by = '', locked_until = 0, updated_at = ?
		WHERE id = ? AND state = ?`,
		string(StateCompleted), time.Now().UTC().UnixMilli(), id, string(StateActive))
}

// Retry returns an active job to waiting with its error and next due time.
func (b *SQLiteBackend) Retry(ctx context.Context, id string, lastError string, runAt time.Time) error {
	return b.finish(ctx, id, `
		UPDATE queue_jobs
		SET state = ?, last_error = ?, run_at = ?, locked_by = '', locked_until = 0, updated_at = ?
		WHERE id = ? AND state = ?`,
		string(StateWaiting), lastError, runAt.UnixMilli(), time.Now().UTC().UnixMilli(),
		id, string(StateActive))
}

// Fail marks an active job failed with its error.
func (b *SQLiteBackend) Fail(ctx context.Context, id string, lastError string) error {
	return b.finish(ctx, id, `
		UPDATE queue_jobs
		SET state = ?, last_error = ?, locked_by = '', locked_until = 0, updated_at = ?
		WHERE id = ? AND state = ?`,
		string(StateFailed), lastError, time.Now().UTC().UnixMilli(), id, string(StateActive))
}

// Release returns an active job to waiting and refunds the attempt the
// claim charged, so an interrupted run does not count against the job.
func (b *SQLiteBackend) Release(ctx context.Context, id string) error {
	return b.finish(ctx, id, `
		UPDATE queue_jobs
		SET state = ?, attempts = MAX(attempts - 1, 0), locked_by = '', locked_until = 0,
		    run_at = ?, updated_at = ?
		WHERE id = ? AND state = ?`,
		string(StateWaiting), time.Now().UTC().UnixMilli(), time.Now().UTC().UnixMilli(),
		id, string(StateActive))
}

// finish runs a transition out of the active state. Zero matched rows
// means the lease was lost, reported as a NotFoundError.
func (b *SQLiteBackend) finish(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return NewStorageError("sqlite", "finish", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return NewStorageError("sqlite", "finish", err)
	}
	if affected == 0 {
		return NewNotFoundError(id)
	}
	return nil
}

// ReleaseStalled requeues active jobs with expired leases, failing the
// ones that have no attempts left.
func (b *SQLiteBackend) ReleaseStalled(ctx context.Context, queue string) ([]*Job, []*Job, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, NewStorageError("sqlite", "release_stalled", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	rows, err := tx.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM queue_jobs
		WHERE queue = ? AND state = ? AND locked_until > 0 AND locked_until < ?`,
		queue, string(StateActive), now.UnixMilli(),
	)
	if err != nil {
		return nil, nil, NewStorageError("sqlite", "release_stalled", err)
	}

	var expired []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, nil, NewStorageError("sqlite", "scan", err)
		}
		expired = append(expired, job)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, NewStorageError("sqlite", "release_stalled", err)
	}
	rows.Close()

	var stalled, failed []*Job
	for _, job := range expired {
		if job.Attempts >= job.MaxAttempts {
			_, err = tx.ExecContext(ctx, `
				UPDATE queue_jobs
				SET state = ?, last_error = ?, locked_by = '', locked_until = 0, updated_at = ?
				WHERE id = ?`,
				string(StateFailed), stalledError, now.UnixMilli(), job.ID,
			)
			job.State = StateFailed
			job.LastError = stalledError
			failed = append(failed, job)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE queue_jobs
				SET state = ?, last_error = ?, run_at = ?, locked_by = '', locked_until = 0, updated_at = ?
				WHERE id = ?`,
				string(StateWaiting), stalledError, now.UnixMilli(), now.UnixMilli(), job.ID,
			)
			job.State = StateWaiting
			job.LastError = stalledError
			job.RunAt = now
			stalled = append(stalled, job)
		}
		if err != nil {
			return nil, nil, NewStorageError("sqlite", "release_stalled", err)
		}
		job.LockedBy = ""
		job.LockedUntil = time.Time{}
		job.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, NewStorageError("sqlite", "release_stalled", err)
	}
	return stalled, failed, nil
}

// Job returns the job by id.
func (b *SQLiteBackend) Job(ctx context.Context, id string) (*Job, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM queue_jobs
		WHERE id = ?`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError(id)
	}
	if err != nil {
		return nil, NewStorageError("sqlite", "get_job", err)
	}
	return job, nil
}

// Stats counts the queue's jobs per reporting state.
func (b *SQLiteBackend) Stats(ctx context.Context, queue string) (*Stats, error) {
	now := time.Now().UTC()
	stats := &Stats{Timestamp: now}

	err := b.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN state = 'waiting' AND run_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'waiting' AND run_at > ? THEN 1 ELSE 0 END), 0),
			COUNT(*)
		FROM queue_jobs
		WHERE queue = ?`,
		now.UnixMilli(), now.UnixMilli(), queue,
	).Scan(&stats.Waiting, &stats.Active, &stats.Completed, &stats.Failed, &stats.Delayed, &stats.Total)
	if err != nil {
		return nil, NewStorageError("sqlite", "stats", err)
	}
	return stats, nil
}

// Clean deletes the queue's terminal jobs whose last update is older than
// grace.
func (b *SQLiteBackend) Clean(ctx context.Context, queue string, grace time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-grace)
	res, err := b.db.ExecContext(ctx, `
		DELETE FROM queue_jobs
		WHERE queue = ? AND state IN (?, ?) AND updated_at < ?`,
		queue, string(StateCompleted), string(StateFailed), cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, NewStorageError("sqlite", "clean", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, NewStorageError("sqlite", "clean", err)
	}
	return removed, nil
}

// Ping verifies database connectivity.
func (b *SQLiteBackend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close checkpoints the WAL and releases the database handle.
func (b *SQLiteBackend) Close() error {
	_, _ = b.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err := b.db.Close(); err != nil {
		return NewStorageError("sqlite", "close", err)
	}
	b.logger.Info("queue backend closed")
	return nil
}
