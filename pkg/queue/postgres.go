package queue

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// PostgresConfig contains configuration for the PostgreSQL queue backend.
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

// PostgresBackend implements Backend using PostgreSQL. Claims rely on
// SELECT ... FOR UPDATE SKIP LOCKED, so several service instances can
// share one queue without handing a job to two workers.
type PostgresBackend struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresBackend connects to PostgreSQL and bootstraps the schema.
func NewPostgresBackend(config *PostgresConfig) (*PostgresBackend, error) {
	if config == nil || config.DSN == "" {
		return nil, NewStorageError("postgres", "open", errors.New("dsn is required"))
	}

	logger := slog.Default().With("component", "queue.postgres")

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

	b := &PostgresBackend{db: db, logger: logger}
	if err := b.initSchema(); err != nil {
		db.Close()
		return nil, NewStorageError("postgres", "create_schema", err)
	}

	logger.Info("queue backend initialized", "backend", "postgres", "max_open_conns", maxOpen)
	return b, nil
}

// initSchema creates the jobs table if it does not exist. The column
// layout matches the SQLite backend, millisecond timestamps included.
func (b *PostgresBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS queue_jobs (
		id TEXT PRIMARY KEY,
		queue TEXT NOT NULL,
		priority INTEGER NOT NULL,
		state TEXT NOT NULL DEFAULT 'waiting',
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		run_at BIGINT NOT NULL,
		locked_by TEXT NOT NULL DEFAULT '',
		locked_until BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_queue_jobs_claim ON queue_jobs(queue, state, priority, run_at);
	CREATE INDEX IF NOT EXISTS idx_queue_jobs_locked_until ON queue_jobs(locked_until);
	`

	_, err := b.db.Exec(schema)
	return err
}

// Enqueue inserts the job, leaving an existing non-terminal row as-is and
// resetting an existing terminal row to waiting.
func (b *PostgresBackend) Enqueue(ctx context.Context, job *Job) error {
	res, err := b.db.ExecContext(ctx, `
		INSERT INTO queue_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, 0, $5, '', $6, '', 0, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		job.ID, job.Queue, job.Priority, string(StateWaiting), job.MaxAttempts,
		timeToMillis(job.RunAt), timeToMillis(job.CreatedAt), timeToMillis(job.UpdatedAt),
	)
	if err != nil {
		return NewStorageError("postgres", "enqueue", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return NewStorageError("postgres", "enqueue", err)
	}
	if inserted > 0 {
		return nil
	}

	_, err = b.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET priority = $1, state = $2, attempts = 0, last_error = '',
		    run_at = $3, locked_by = '', locked_until = 0, updated_at = $4
		WHERE id = $5 AND state IN ($6, $7)`,
		job.Priority, string(StateWaiting),
		timeToMillis(job.RunAt), timeToMillis(job.UpdatedAt),
		job.ID, string(StateCompleted), string(StateFailed),
	)
	if err != nil {
		return NewStorageError("postgres", "enqueue", err)
	}
	return nil
}

// Claim leases the most urgent due job. SKIP LOCKED lets concurrent
// claimers pass over rows another transaction is already taking.
func (b *PostgresBackend) Claim(ctx context.Context, queue, workerID string, lockDuration time.Duration) (*Job, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, NewStorageError("postgres", "claim", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	row := tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM queue_jobs
		WHERE queue = $1 AND state = $2 AND run_at <= $3
		ORDER BY priority ASC, created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		queue, string(StateWaiting), now.UnixMilli(),
	)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, NewStorageError("postgres", "claim", err)
	}

	lockedUntil := now.Add(lockDuration)
	_, err = tx.ExecContext(ctx, `
		UPDATE queue_jobs
		SET state = $1, attempts = attempts + 1, locked_by = $2, locked_until = $3, updated_at = $4
		WHERE id = $5`,
		string(StateActive), workerID, lockedUntil.UnixMilli(), now.UnixMilli(), job.ID,
	)
	if err != nil {
		return nil, NewStorageError("postgres", "claim", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, NewStorageError("postgres", "claim", err)
	}

	job.State = StateActive
	job.Attempts++
	job.LockedBy = workerID
	job.LockedUntil = lockedUntil
	job.UpdatedAt = now
	return job, nil
}

// Heartbeat extends the lease on every active job held by workerID.
func (b *PostgresBackend) Heartbeat(ctx context.Context, workerID string, lockDuration time.Duration) error {
	now := time.Now().UTC()
	_, err := b.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET locked_until = $1, updated_at = $2
		WHERE locked_by = $3 AND state = $4`,
		now.Add(lockDuration).UnixMilli(), now.UnixMilli(), workerID, string(StateActive),
	)
	if err != nil {
		return NewStorageError("postgres", "heartbeat", err)
	}
	return nil
}

// Complete marks an active job completed.
func (b *PostgresBackend) Complete(ctx context.Context, id string) error {
	return b.finish(ctx, id, `
		UPDATE queue_jobs
		SET state = $1, locked_by = '', locked_until = 0, updated_at = $2
		WHERE id = $3 AND state = $4`,
		string(StateCompleted), time.Now().UTC().UnixMilli(), id, string(StateActive))
}

// Retry returns an active job to waiting with its error and next due time.
func (b *PostgresBackend) Retry(ctx context.Context, id string, lastError string, runAt time.Time) error {
	return b.finish(ctx, id, `
		UPDATE queue_jobs
		SET state = $1, last_error = $2, run_at = $3, locked_by = '', locked_until = 0, updated_at = $4
		WHERE id = $5 AND state = $6`,
		string(StateWaiting), lastError, runAt.UnixMilli(), time.Now().UTC().UnixMilli(),
		id, string(StateActive))
}

// Fail marks an active job failed with its error.
func (b *PostgresBackend) Fail(ctx context.Context, id string, lastError string) error {
	return b.finish(ctx, id, `
		UPDATE queue_jobs
		SET state = $1, last_error = $2, locked_by = '', locked_until = 0, updated_at = $3
		WHERE id = $4 AND state = $5`,
		string(StateFailed), lastError, time.Now().UTC().UnixMilli(), id, string(StateActive))
}

// Release returns an active job to waiting and refunds the attempt the
// claim charged.
func (b *PostgresBackend) Release(ctx context.Context, id string) error {
	now := time.Now().UTC().UnixMilli()
	return b.finish(ctx, id, `
		UPDATE queue_jobs
		SET state = $1, attempts = GREATEST(attempts - 1, 0), locked_by = '', locked_until = 0,
		    run_at = $2, updated_at = $3
		WHERE id = $4 AND state = $5`,
		string(StateWaiting), now, now, id, string(StateActive))
}

// finish runs a transition out of the active state. Zero matched rows
// means the lease was lost, reported as a NotFoundError.
func (b *PostgresBackend) finish(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return NewStorageError("postgres", "finish", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return NewStorageError("postgres", "finish", err)
	}
	if affected == 0 {
		return NewNotFoundError(id)
	}
	return nil
}

// ReleaseStalled requeues active jobs with expired leases, failing the
// ones that have no attempts left.
func (b *PostgresBackend) ReleaseStalled(ctx context.Context, queue string) ([]*Job, []*Job, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, NewStorageError("postgres", "release_stalled", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	rows, err := tx.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM queue_jobs
		WHERE queue = $1 AND state = $2 AND locked_until > 0 AND locked_until < $3
		FOR UPDATE SKIP LOCKED`,
		queue, string(StateActive), now.UnixMilli(),
	)
	if err != nil {
		return nil, nil, NewStorageError("postgres", "release_stalled", err)
	}

	var expired []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, nil, NewStorageError("postgres", "scan", err)
		}
		expired = append(expired, job)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, NewStorageError("postgres", "release_stalled", err)
	}
	rows.Close()

	var stalled, failed []*Job
	for _, job := range expired {
		if job.Attempts >= job.MaxAttempts {
			_, err = tx.ExecContext(ctx, `
				UPDATE queue_jobs
				SET state = $1, last_error = $2, locked_by = '', locked_until = 0, updated_at = $3
				WHERE id = $4`,
				string(StateFailed), stalledError, now.UnixMilli(), job.ID,
			)
			job.State = StateFailed
			job.LastError = stalledError
			failed = append(failed, job)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE queue_jobs
				SET state = $1, last_error = $2, run_at = $3, locked_by = '', locked_until = 0, updated_at = $4
				WHERE id = $5`,
				string(StateWaiting), stalledError, now.UnixMilli(), now.UnixMilli(), job.ID,
			)
			job.State = StateWaiting
			job.LastError = stalledError
			job.RunAt = now
			stalled = append(stalled, job)
		}
		if err != nil {
			return nil, nil, NewStorageError("postgres", "release_stalled", err)
		}
		job.LockedBy = ""
		job.LockedUntil = time.Time{}
		job.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, NewStorageError("postgres", "release_stalled", err)
	}
	return stalled, failed, nil
}

// Job returns the job by id.
func (b *PostgresBackend) Job(ctx context.Context, id string) (*Job, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM queue_jobs
		WHERE id = $1`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError(id)
	}
	if err != nil {
		return nil, NewStorageError("postgres", "get_job", err)
	}
	return job, nil
}

// Stats counts the queue's jobs per reporting state.
func (b *PostgresBackend) Stats(ctx context.Context, queue string) (*Stats, error) {
	now := time.Now().UTC()
	stats := &Stats{Timestamp: now}

	err := b.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN state = 'waiting' AND run_at <= $1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'waiting' AND run_at > $1 THEN 1 ELSE 0 END), 0),
			COUNT(*)
		FROM queue_jobs
		WHERE queue = $2`,
		now.UnixMilli(), queue,
	).Scan(&stats.Waiting, &stats.Active, &stats.Completed, &stats.Failed, &stats.Delayed, &stats.Total)
	if err != nil {
		return nil, NewStorageError("postgres", "stats", err)
	}
	return stats, nil
}

// Clean deletes the queue's terminal jobs whose last update is older than
// grace.
func (b *PostgresBackend) Clean(ctx context.Context, queue string, grace time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-grace)
	res, err := b.db.ExecContext(ctx, `
		DELETE FROM queue_jobs
		WHERE queue = $1 AND state IN ($2, $3) AND updated_at < $4`,
		queue, string(StateCompleted), string(StateFailed), cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, NewStorageError("postgres", "clean", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, NewStorageError("postgres", "clean", err)
	}
	return removed, nil
}

// Ping verifies database connectivity.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return NewStorageError("postgres", "ping", err)
	}
	return nil
}

// Close releases the database handles.
func (b *PostgresBackend) Close() error {
	if err := b.db.Close(); err != nil {
		return NewStorageError("postgres", "close", err)
	}
	b.logger.Info("queue backend closed")
	return nil
}
