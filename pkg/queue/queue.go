package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// DefaultQueueName is the queue requirement tasks are scheduled on.
const DefaultQueueName = "requirement-processing"

// State describes where a job is in its lifecycle. Waiting, active,
// completed and failed are stored; delayed and not-found are derived
// when a job is reported.
type State string

const (
	// StateWaiting means the job is eligible for a worker claim.
	StateWaiting State = "waiting"

	// StateActive means a worker holds the job under a lease.
	StateActive State = "active"

	// StateDelayed is a reporting view of a waiting job whose run_at is
	// still in the future, typically because of retry backoff.
	StateDelayed State = "delayed"

	// StateCompleted means the processor returned without error.
	StateCompleted State = "completed"

	// StateFailed means the job exhausted its attempts.
	StateFailed State = "failed"

	// StateNotFound is reported for job ids the queue has never seen or
	// has already cleaned.
	StateNotFound State = "not-found"
)

// Terminal reports whether the state is an end state. Terminal jobs stay
// in the table until Clean removes them.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is one durable queue entry. The job id equals the task id it
// processes, which makes Enqueue idempotent per task.
type Job struct {
	// ID is the job identifier, equal to the task id.
	ID string

	// Queue is the queue name the job belongs to.
	Queue string

	// Priority orders claims; lower values are claimed first
	// (critical=1, high=2, medium=3, low=4).
	Priority int

	// State is the stored lifecycle state.
	State State

	// Attempts counts claims so far; the running attempt is included.
	Attempts int

	// MaxAttempts bounds Attempts before the job fails permanently.
	MaxAttempts int

	// LastError holds the most recent processor error message.
	LastError string

	// RunAt is the earliest time the job may be claimed.
	RunAt time.Time

	// LockedBy names the worker pool holding the job, when active.
	LockedBy string

	// LockedUntil is the lease deadline; an active job past it is stalled.
	LockedUntil time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status derives the reporting state: a waiting job whose run_at lies in
// the future shows as delayed.
func (j *Job) Status() State {
	if j.State == StateWaiting && j.RunAt.After(time.Now()) {
		return StateDelayed
	}
	return j.State
}

// Stats is a point-in-time census of the queue. Waiting excludes delayed
// jobs, so the five counters sum to Total.
type Stats struct {
	Waiting   int64     `json:"waiting"`
	Active    int64     `json:"active"`
	Completed int64     `json:"completed"`
	Failed    int64     `json:"failed"`
	Delayed   int64     `json:"delayed"`
	Total     int64     `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// Processor executes one claimed job. A nil return completes the job; an
// error schedules a retry with backoff until attempts are exhausted, then
// fails the job. The context carries the pool lifetime.
type Processor func(ctx context.Context, job *Job) error

// Events receives job lifecycle notifications from the worker pool. Nil
// callbacks are skipped. Callbacks run on worker goroutines and must
// return quickly.
type Events struct {
	// Active fires when a worker claims the job.
	Active func(job *Job)

	// Completed fires when the processor returns nil.
	Completed func(job *Job)

	// Failed fires on every failed attempt; final is true when the job
	// has exhausted its attempts and will not run again.
	Failed func(job *Job, err error, final bool)

	// Stalled fires when the sweep returns an expired active job to
	// waiting, usually after a crash or lost worker.
	Stalled func(job *Job)
}

// Config tunes the queue and its worker pool.
type Config struct {
	// Name is the queue name. Default: "requirement-processing".
	Name string

	// Backend is "sqlite" or "postgres". Default: "sqlite".
	Backend string

	// SQLite configures the SQLite backend. Nil means defaults.
	SQLite *SQLiteConfig

	// Postgres configures the PostgreSQL backend. Required when Backend
	// is "postgres".
	Postgres *PostgresConfig

	// WorkerID identifies this pool instance in job leases.
	// Default: a random UUID.
	WorkerID string

	// Concurrency is the maximum number of jobs processed at once.
	// Default: 5
	Concurrency int

	// MaxAttempts is the total number of attempts a job gets, the first
	// run included. Default: 3
	MaxAttempts int

	// RetryBackoff is the base delay before a retry; attempt n waits
	// RetryBackoff * 2^(n-1). Default: 5 seconds
	RetryBackoff time.Duration

	// PollInterval is how often idle workers look for due jobs.
	// Default: 1 second
	PollInterval time.Duration

	// LockDuration is the job lease length. It must exceed the heartbeat
	// interval, which is derived from it. Default: 60 seconds
	LockDuration time.Duration

	// StallSweepInterval is how often expired leases are reclaimed.
	// Default: 30 seconds
	StallSweepInterval time.Duration

	// Logger for queue events. Default: slog.Default with the queue
	// component attached.
	Logger *slog.Logger
}

// applyDefaults fills zero values in place.
func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultQueueName
	}
	if c.WorkerID == "" {
		c.WorkerID = uuid.NewString()
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 1 * time.Second
	}
	if c.LockDuration <= 0 {
		c.LockDuration = 60 * time.Second
	}
	if c.StallSweepInterval <= 0 {
		c.StallSweepInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default().With("component", "queue")
	}
}

// Queue is a durable priority job queue with a bounded worker pool.
// Jobs are claimed lowest priority value first, oldest first, under a
// lease that a heartbeat keeps alive; leases that expire are swept back
// to waiting. All methods are safe for concurrent use.
type Queue struct {
	backend Backend
	config  *Config
	logger  *slog.Logger

	mu        sync.RWMutex
	processor Processor
	events    Events
	running   bool

	sem    chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Open creates the queue on the backend selected by cfg.Backend. The
// worker pool stays idle until Start.
func Open(cfg *Config) (*Queue, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.applyDefaults()

	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case BackendSQLite, "":
		backend, err = NewSQLiteBackend(cfg.SQLite)
	case BackendPostgres:
		backend, err = NewPostgresBackend(cfg.Postgres)
	default:
		err = fmt.Errorf("unsupported queue backend: %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return &Queue{
		backend: backend,
		config:  cfg,
		logger:  cfg.Logger,
		sem:     make(chan struct{}, cfg.Concurrency),
	}, nil
}

// Enqueue schedules a job for the task, due immediately. While a job with
// the same id is still waiting, delayed or active the call is a no-op and
// returns the existing id, so double submissions cannot fork a task. A
// terminal job is reset and runs again from attempt one.
func (q *Queue) Enqueue(ctx context.Context, taskID string, priority int) (string, error) {
	if taskID == "" {
		return "", &ValidationError{Field: "taskID", Message: "cannot be empty"}
	}
	if priority < 1 {
		return "", &ValidationError{Field: "priority", Message: fmt.Sprintf("%d is below 1", priority)}
	}

	now := time.Now().UTC()
	job := &Job{
		ID:          taskID,
		Queue:       q.config.Name,
		Priority:    priority,
		State:       StateWaiting,
		MaxAttempts: q.config.MaxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := q.backend.Enqueue(ctx, job); err != nil {
		return "", err
	}

	q.logger.Debug("job enqueued", "job_id", taskID, "priority", priority)
	return taskID, nil
}

// RegisterProcessor sets the function the worker pool runs per job. It
// must be called before Start.
func (q *Queue) RegisterProcessor(fn Processor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processor = fn
}

// Subscribe sets the lifecycle callbacks. It must be called before Start.
func (q *Queue) Subscribe(ev Events) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = ev
}

// Job returns the job by id, or a NotFoundError for ids the queue does
// not hold.
func (q *Queue) Job(ctx context.Context, id string) (*Job, error) {
	return q.backend.Job(ctx, id)
}

// Stats returns the current queue census.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	return q.backend.Stats(ctx, q.config.Name)
}

// Clean deletes completed and failed jobs whose last update is older than
// grace. It returns the number of rows removed and is safe to repeat.
func (q *Queue) Clean(ctx context.Context, grace time.Duration) (int64, error) {
	removed, err := q.backend.Clean(ctx, q.config.Name, grace)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		q.logger.Info("cleaned terminal jobs", "removed", removed, "grace", grace)
	}
	return removed, nil
}

// Ping verifies backend connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.backend.Ping(ctx)
}

// Close releases the backend. The worker pool must be stopped first.
func (q *Queue) Close() error {
	return q.backend.Close()
}
