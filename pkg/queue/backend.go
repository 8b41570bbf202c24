package queue

import (
	"context"
	"time"
)

// Backend is the durable side of the queue. Implementations persist job
// rows and arbitrate claims so that exactly one worker pool holds a job
// at a time. All methods are safe for concurrent use.
type Backend interface {
	// Enqueue inserts the job. When a row with the same id exists the
	// call leaves non-terminal rows untouched and resets terminal rows
	// to waiting with the new priority and zero attempts.
	Enqueue(ctx context.Context, job *Job) error

	// Claim leases the single most urgent due waiting job on the queue:
	// lowest priority value first, oldest first, run_at not in the
	// future. The claimed job becomes active, its attempts increment,
	// and the lease is held by workerID until now+lockDuration. A nil
	// job means nothing is due.
	Claim(ctx context.Context, queue, workerID string, lockDuration time.Duration) (*Job, error)

	// Heartbeat extends the lease on every active job held by workerID.
	Heartbeat(ctx context.Context, workerID string, lockDuration time.Duration) error

	// Complete marks an active job completed.
	Complete(ctx context.Context, id string) error

	// Retry returns an active job to waiting, recording the error and
	// deferring the next claim until runAt.
	Retry(ctx context.Context, id string, lastError string, runAt time.Time) error

	// Fail marks an active job failed, recording the error.
	Fail(ctx context.Context, id string, lastError string) error

	// Release returns an active job to waiting and refunds its attempt,
	// used when a shutdown interrupts processing mid-flight.
	Release(ctx context.Context, id string) error

	// ReleaseStalled returns every active job on the queue whose lease
	// has expired back to waiting, due immediately, and reports the jobs
	// it moved. Jobs already out of attempts are failed instead.
	ReleaseStalled(ctx context.Context, queue string) (stalled []*Job, failed []*Job, err error)

	// Job returns the job by id or a NotFoundError.
	Job(ctx context.Context, id string) (*Job, error)

	// Stats counts the queue's jobs per reporting state.
	Stats(ctx context.Context, queue string) (*Stats, error)

	// Clean deletes the queue's terminal jobs whose last update is older
	// than grace.
	Clean(ctx context.Context, queue string, grace time.Duration) (int64, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying database handles.
	Close() error
}
