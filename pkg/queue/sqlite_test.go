package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// newTestBackend creates a SQLite queue backend in a temporary database.
func newTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()

	b, err := NewSQLiteBackend(&SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "queue.db"),
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSQLiteBackend() failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	return b
}

// enqueueJob inserts a waiting job with sensible defaults.
func enqueueJob(t *testing.T, b *SQLiteBackend, id string, priority int) *Job {
	t.Helper()

	now := time.Now().UTC()
	job := &Job{
		ID:          id,
		Queue:       DefaultQueueName,
		Priority:    priority,
		State:       StateWaiting,
		MaxAttempts: 3,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := b.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueue(%s) failed: %v", id, err)
	}
	return job
}

func TestSQLiteBackend_EnqueueAndJob(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	enqueueJob(t, b, "task-1", 2)

	got, err := b.Job(ctx, "task-1")
	if err != nil {
		t.Fatalf("Job() failed: %v", err)
	}
	if got.Queue != DefaultQueueName {
		t.Errorf("expected queue %q, got %q", DefaultQueueName, got.Queue)
	}
	if got.Priority != 2 {
		t.Errorf("expected priority 2, got %d", got.Priority)
	}
	if got.State != StateWaiting {
		t.Errorf("expected state %q, got %q", StateWaiting, got.State)
	}
	if got.Attempts != 0 {
		t.Errorf("expected 0 attempts, got %d", got.Attempts)
	}
	if got.MaxAttempts != 3 {
		t.Errorf("expected max attempts 3, got %d", got.MaxAttempts)
	}
	if got.RunAt.IsZero() || got.CreatedAt.IsZero() {
		t.Error("expected run_at and created_at to be set")
	}
}

func TestSQLiteBackend_JobNotFound(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.Job(context.Background(), "missing")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.ID != "missing" {
		t.Errorf("expected id 'missing', got %q", notFound.ID)
	}
}

func TestSQLiteBackend_EnqueueIdempotentWhileQueued(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	enqueueJob(t, b, "task-1", 3)

	// A second enqueue of a waiting job changes nothing, priority included.
	dup := &Job{
		ID: "task-1", Queue: DefaultQueueName, Priority: 1, State: StateWaiting,
		MaxAttempts: 3, RunAt: time.Now().UTC(),
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := b.Enqueue(ctx, dup); err != nil {
		t.Fatalf("duplicate Enqueue() failed: %v", err)
	}

	got, err := b.Job(ctx, "task-1")
	if err != nil {
		t.Fatalf("Job() failed: %v", err)
	}
	if got.Priority != 3 {
		t.Errorf("expected original priority 3, got %d", got.Priority)
	}
	if got.State != StateWaiting {
		t.Errorf("expected state %q, got %q", StateWaiting, got.State)
	}
}

func TestSQLiteBackend_EnqueueResetsTerminalJob(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	enqueueJob(t, b, "task-1", 3)

	claimed, err := b.Claim(ctx, DefaultQueueName, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("Claim() failed: %v", err)
	}
	if err := b.Complete(ctx, claimed.ID); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}

	// Re-enqueueing a finished job schedules a fresh run.
	enqueueJob(t, b, "task-1", 1)

	got, err := b.Job(ctx, "task-1")
	if err != nil {
		t.Fatalf("Job() failed: %v", err)
	}
	if got.State != StateWaiting {
		t.Errorf("expected state %q, got %q", StateWaiting, got.State)
	}
	if got.Attempts != 0 {
		t.Errorf("expected attempts reset to 0, got %d", got.Attempts)
	}
	if got.Priority != 1 {
		t.Errorf("expected new priority 1, got %d", got.Priority)
	}
}

func TestSQLiteBackend_ClaimOrder(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	jobs := []struct {
		id       string
		priority int
		created  time.Time
	}{
		{"low", 4, base},
		{"critical-old", 1, base.Add(1 * time.Second)},
		{"critical-new", 1, base.Add(2 * time.Second)},
		{"high", 2, base.Add(3 * time.Second)},
	}
	for _, j := range jobs {
		job := &Job{
			ID: j.id, Queue: DefaultQueueName, Priority: j.priority, State: StateWaiting,
			MaxAttempts: 3, RunAt: j.created, CreatedAt: j.created, UpdatedAt: j.created,
		}
		if err := b.Enqueue(ctx, job); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", j.id, err)
		}
	}

	want := []string{"critical-old", "critical-new", "high", "low"}
	for i, expected := range want {
		claimed, err := b.Claim(ctx, DefaultQueueName, "worker-1", time.Minute)
		if err != nil {
			t.Fatalf("Claim() #%d failed: %v", i, err)
		}
		if claimed == nil {
			t.Fatalf("Claim() #%d returned nil, expected %q", i, expected)
		}
		if claimed.ID != expected {
			t.Errorf("claim #%d: expected %q, got %q", i, expected, claimed.ID)
		}
		if claimed.State != StateActive {
			t.Errorf("claim #%d: expected state %q, got %q", i, StateActive, claimed.State)
		}
		if claimed.Attempts != 1 {
			t.Errorf("claim #%d: expected 1 attempt, got %d", i, claimed.Attempts)
		}
	}

	claimed, err := b.Claim(ctx, DefaultQueueName, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("final Claim() failed: %v", err)
	}
	if claimed != nil {
		t.Errorf("expected empty queue, claimed %q", claimed.ID)
	}
}

func TestSQLiteBackend_ClaimSkipsFutureRunAt(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	now := time.Now().UTC()
	job := &Job{
		ID: "deferred", Queue: DefaultQueueName, Priority: 1, State: StateWaiting,
		MaxAttempts: 3, RunAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
	}
	if err := b.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	claimed, err := b.Claim(ctx, DefaultQueueName, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("Claim() failed: %v", err)
	}
	if claimed != nil {
		t.Errorf("expected no due job, claimed %q", claimed.ID)
	}

	got, err := b.Job(ctx, "deferred")
	if err != nil {
		t.Fatalf("Job() failed: %v", err)
	}
	if got.Status() != StateDelayed {
		t.Errorf("expected reported state %q, got %q", StateDelayed, got.Status())
	}
}

func TestSQLiteBackend_RetryDefersJob(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	enqueueJob(t, b, "task-1", 3)
	claimed, err := b.Claim(ctx, DefaultQueueName, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("Claim() failed: %v", err)
	}

	runAt := time.Now().UTC().Add(time.Hour)
	if err := b.Retry(ctx, claimed.ID, "analysis timed out", runAt); err != nil {
		t.Fatalf("Retry() failed: %v", err)
	}

	got, err := b.Job(ctx, "task-1")
	if err != nil {
		t.Fatalf("Job() failed: %v", err)
	}
	if got.State != StateWaiting {
		t.Errorf("expected state %q, got %q", StateWaiting, got.State)
	}
	if got.Status() != StateDelayed {
		t.Errorf("expected reported state %q, got %q", StateDelayed, got.Status())
	}
	if got.LastError != "analysis timed out" {
		t.Errorf("expected last error recorded, got %q", got.LastError)
	}
	if got.Attempts != 1 {
		t.Errorf("expected attempts to stay at 1, got %d", got.Attempts)
	}
	if got.LockedBy != "" {
		t.Errorf("expected cleared lock, got locked_by %q", got.LockedBy)
	}
}

func TestSQLiteBackend_FailRecordsError(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	enqueueJob(t, b, "task-1", 3)
	claimed, err := b.Claim(ctx, DefaultQueueName, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("Claim() failed: %v", err)
	}

	if err := b.Fail(ctx, claimed.ID, "all providers unavailable"); err != nil {
		t.Fatalf("Fail() failed: %v", err)
	}

	got, err := b.Job(ctx, "task-1")
	if err != nil {
		t.Fatalf("Job() failed: %v", err)
	}
	if got.State != StateFailed {
		t.Errorf("expected state %q, got %q", StateFailed, got.State)
	}
	if got.LastError != "all providers unavailable" {
		t.Errorf("expected last error recorded, got %q", got.LastError)
	}
}

func TestSQLiteBackend_FinishRequiresActiveJob(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	enqueueJob(t, b, "task-1", 3)

	// The job is waiting, not active, so settlement reports a lost lease.
	err := b.Complete(ctx, "task-1")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestSQLiteBackend_ReleaseRefundsAttempt(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	enqueueJob(t, b, "task-1", 3)
	claimed, err := b.Claim(ctx, DefaultQueueName, "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("Claim() failed: %v", err)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("expected 1 attempt after claim, got %d", claimed.Attempts)
	}

	if err := b.Release(ctx, claimed.ID); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	got, err := b.Job(ctx, "task-1")
	if err != nil {
		t.Fatalf("Job() failed: %v", err)
	}
	if got.State != StateWaiting {
		t.Errorf("expected state %q, got %q", StateWaiting, got.State)
	}
	if got.Attempts != 0 {
		t.Errorf("expected attempt refunded to 0, got %d", got.Attempts)
	}
}

func TestSQLiteBackend_ReleaseStalled(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	enqueueJob(t, b, "fresh", 3)
	enqueueJob(t, b, "exhausted", 3)

	// Claim both with leases that are already expired, as if the owning
	// pool died. The second job has burned all of its attempts.
	for i := 0; i < 2; i++ {
		if _, err := b.Claim(ctx, DefaultQueueName, "dead-pool", -time.Second); err != nil {
			t.Fatalf("Claim() failed: %v", err)
		}
	}
	if _, err := b.db.ExecContext(ctx,
		`UPDATE queue_jobs SET attempts = max_attempts WHERE id = 'exhausted'`); err != nil {
		t.Fatalf("failed to exhaust attempts: %v", err)
	}

	stalled, failed, err := b.ReleaseStalled(ctx, DefaultQueueName)
	if err != nil {
		t.Fatalf("ReleaseStalled() failed: %v", err)
	}

	if len(stalled) != 1 || stalled[0].ID != "fresh" {
		t.Fatalf("expected 'fresh' stalled, got %v", jobIDs(stalled))
	}
	if len(failed) != 1 || failed[0].ID != "exhausted" {
		t.Fatalf("expected 'exhausted' failed, got %v", jobIDs(failed))
	}

	gotFresh, err := b.Job(ctx, "fresh")
	if err != nil {
		t.Fatalf("Job(fresh) failed: %v", err)
	}
	if gotFresh.State != StateWaiting {
		t.Errorf("expected fresh job waiting, got %q", gotFresh.State)
	}
	if gotFresh.LockedBy != "" {
		t.Errorf("expected cleared lock, got locked_by %q", gotFresh.LockedBy)
	}

	gotExhausted, err := b.Job(ctx, "exhausted")
	if err != nil {
		t.Fatalf("Job(exhausted) failed: %v", err)
	}
	if gotExhausted.State != StateFailed {
		t.Errorf("expected exhausted job failed, got %q", gotExhausted.State)
	}

	// A second sweep finds nothing.
	stalled, failed, err = b.ReleaseStalled(ctx, DefaultQueueName)
	if err != nil {
		t.Fatalf("second ReleaseStalled() failed: %v", err)
	}
	if len(stalled) != 0 || len(failed) != 0 {
		t.Errorf("expected empty sweep, got stalled=%v failed=%v", jobIDs(stalled), jobIDs(failed))
	}
}

func TestSQLiteBackend_HeartbeatExtendsLease(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	enqueueJob(t, b, "task-1", 3)
	claimed, err := b.Claim(ctx, DefaultQueueName, "worker-1", time.Second)
	if err != nil {
		t.Fatalf("Claim() failed: %v", err)
	}

	if err := b.Heartbeat(ctx, "worker-1", time.Hour); err != nil {
		t.Fatalf("Heartbeat() failed: %v", err)
	}

	got, err := b.Job(ctx, "task-1")
	if err != nil {
		t.Fatalf("Job() failed: %v", err)
	}
	if !got.LockedUntil.After(claimed.LockedUntil) {
		t.Errorf("expected lease extended past %v, got %v", claimed.LockedUntil, got.LockedUntil)
	}

	// Another pool's heartbeat does not touch the lease.
	if err := b.Heartbeat(ctx, "worker-2", 10*time.Hour); err != nil {
		t.Fatalf("Heartbeat() for other worker failed: %v", err)
	}
	after, err := b.Job(ctx, "task-1")
	if err != nil {
		t.Fatalf("Job() failed: %v", err)
	}
	if !after.LockedUntil.Equal(got.LockedUntil) {
		t.Errorf("expected lease unchanged at %v, got %v", got.LockedUntil, after.LockedUntil)
	}
}

func TestSQLiteBackend_Stats(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	enqueueJob(t, b, "waiting-1", 3)
	enqueueJob(t, b, "waiting-2", 3)
	enqueueJob(t, b, "active-1", 1)
	enqueueJob(t, b, "completed-1", 1)
	enqueueJob(t, b, "failed-1", 1)

	for _, id := range []string{"active-1", "completed-1", "failed-1"} {
		claimed, err := b.Claim(ctx, DefaultQueueName, "worker-1", time.Minute)
		if err != nil || claimed == nil {
			t.Fatalf("Claim() for %s failed: %v", id, err)
		}
	}
	if err := b.Complete(ctx, "completed-1"); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	if err := b.Fail(ctx, "failed-1", "boom"); err != nil {
		t.Fatalf("Fail() failed: %v", err)
	}
	// Send one job back with a future run_at so it counts as delayed.
	if err := b.Retry(ctx, "active-1", "retry later", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("Retry() failed: %v", err)
	}

	// Re-claim one job so the active count is non-zero.
	claimed, err := b.Claim(ctx, DefaultQueueName, "worker-1", time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("re-Claim() failed: %v", err)
	}

	stats, err := b.Stats(ctx, DefaultQueueName)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}

	if stats.Waiting != 1 {
		t.Errorf("expected 1 waiting, got %d", stats.Waiting)
	}
	if stats.Active != 1 {
		t.Errorf("expected 1 active, got %d", stats.Active)
	}
	if stats.Completed != 1 {
		t.Errorf("expected 1 completed, got %d", stats.Completed)
	}
	if stats.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", stats.Failed)
	}
	if stats.Delayed != 1 {
		t.Errorf("expected 1 delayed, got %d", stats.Delayed)
	}
	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}
	if stats.Timestamp.IsZero() {
		t.Error("expected stats timestamp to be set")
	}
	if loc := stats.Timestamp.Location(); loc != time.UTC {
		t.Errorf("expected UTC timestamp, got %v", loc)
	}
}

func TestSQLiteBackend_Clean(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	enqueueJob(t, b, "done", 3)
	enqueueJob(t, b, "pending", 3)

	claimed, err := b.Claim(ctx, DefaultQueueName, "worker-1", time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("Claim() failed: %v", err)
	}
	if err := b.Complete(ctx, claimed.ID); err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}

	// A generous grace keeps the fresh terminal row.
	removed, err := b.Clean(ctx, DefaultQueueName, time.Hour)
	if err != nil {
		t.Fatalf("Clean() failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected nothing removed inside grace, got %d", removed)
	}

	time.Sleep(10 * time.Millisecond)

	removed, err = b.Clean(ctx, DefaultQueueName, 0)
	if err != nil {
		t.Fatalf("Clean() failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	// The waiting job survives; the terminal row is gone.
	if _, err := b.Job(ctx, "pending"); err != nil {
		t.Errorf("expected waiting job kept: %v", err)
	}
	_, err = b.Job(ctx, "done")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected cleaned job gone, got %v", err)
	}

	// Clean is idempotent.
	removed, err = b.Clean(ctx, DefaultQueueName, 0)
	if err != nil {
		t.Fatalf("repeat Clean() failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected repeat clean to remove 0, got %d", removed)
	}
}

func jobIDs(jobs []*Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}
