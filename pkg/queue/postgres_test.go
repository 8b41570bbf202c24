package queue

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// newMockBackend creates a PostgresBackend wired to a sqlmock connection.
func newMockBackend(t *testing.T) (*PostgresBackend, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	b := &PostgresBackend{
		db:     db,
		logger: slog.Default().With("component", "queue.postgres"),
	}
	return b, mock
}

// mockJobRow builds a row in jobColumns order.
func mockJobRow(id string, state State, attempts int) *sqlmock.Rows {
	now := time.Now().UTC().UnixMilli()
	return sqlmock.NewRows([]string{
		"id", "queue", "priority", "state", "attempts", "max_attempts",
		"last_error", "run_at", "locked_by", "locked_until", "created_at", "updated_at",
	}).AddRow(id, DefaultQueueName, 2, string(state), attempts, 3, "", now, "", int64(0), now, now)
}

func TestPostgresBackend_Enqueue(t *testing.T) {
	b, mock := newMockBackend(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO queue_jobs").
		WithArgs("task-1", DefaultQueueName, 2, "waiting", 3,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now().UTC()
	job := &Job{
		ID: "task-1", Queue: DefaultQueueName, Priority: 2, State: StateWaiting,
		MaxAttempts: 3, RunAt: now, CreatedAt: now, UpdatedAt: now,
	}
	if err := b.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresBackend_EnqueueConflictResetsTerminal(t *testing.T) {
	b, mock := newMockBackend(t)
	ctx := context.Background()

	// The insert hits the existing row; the follow-up update only touches
	// completed or failed rows.
	mock.ExpectExec("INSERT INTO queue_jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE queue_jobs").
		WithArgs(2, "waiting", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"task-1", "completed", "failed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now().UTC()
	job := &Job{
		ID: "task-1", Queue: DefaultQueueName, Priority: 2, State: StateWaiting,
		MaxAttempts: 3, RunAt: now, CreatedAt: now, UpdatedAt: now,
	}
	if err := b.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresBackend_Claim(t *testing.T) {
	b, mock := newMockBackend(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM queue_jobs").
		WithArgs(DefaultQueueName, "waiting", sqlmock.AnyArg()).
		WillReturnRows(mockJobRow("task-1", StateWaiting, 0))
	mock.ExpectExec("UPDATE queue_jobs").
		WithArgs("active", "worker-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, err := b.Claim(ctx, DefaultQueueName, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("Claim() failed: %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimed job")
	}
	if job.State != StateActive {
		t.Errorf("expected state %q, got %q", StateActive, job.State)
	}
	if job.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", job.Attempts)
	}
	if job.LockedBy != "worker-1" {
		t.Errorf("expected lock held by worker-1, got %q", job.LockedBy)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresBackend_ClaimEmptyQueue(t *testing.T) {
	b, mock := newMockBackend(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM queue_jobs").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	job, err := b.Claim(ctx, DefaultQueueName, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("Claim() failed: %v", err)
	}
	if job != nil {
		t.Errorf("expected no job, got %q", job.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresBackend_Stats(t *testing.T) {
	b, mock := newMockBackend(t)
	ctx := context.Background()

	mock.ExpectQuery("FROM queue_jobs").
		WithArgs(sqlmock.AnyArg(), DefaultQueueName).
		WillReturnRows(sqlmock.NewRows([]string{
			"waiting", "active", "completed", "failed", "delayed", "total",
		}).AddRow(int64(2), int64(1), int64(4), int64(1), int64(1), int64(9)))

	stats, err := b.Stats(ctx, DefaultQueueName)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if stats.Waiting != 2 || stats.Active != 1 || stats.Completed != 4 ||
		stats.Failed != 1 || stats.Delayed != 1 || stats.Total != 9 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresBackend_Clean(t *testing.T) {
	b, mock := newMockBackend(t)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM queue_jobs").
		WithArgs(DefaultQueueName, "completed", "failed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := b.Clean(ctx, DefaultQueueName, 24*time.Hour)
	if err != nil {
		t.Fatalf("Clean() failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
