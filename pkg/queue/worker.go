package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Start launches the worker pool: a poll loop that claims due jobs up to
// the concurrency bound, a heartbeat loop that keeps leases alive, and a
// sweep loop that reclaims jobs whose lease expired. A processor must be
// registered first. Start returns once the loops are running.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.processor == nil {
		q.mu.Unlock()
		return fmt.Errorf("queue %q: no processor registered", q.config.Name)
	}
	if q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = true
	q.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	q.logger.Info("starting worker pool",
		"queue", q.config.Name,
		"worker_id", q.config.WorkerID,
		"concurrency", q.config.Concurrency,
		"poll_interval", q.config.PollInterval,
		"lock_duration", q.config.LockDuration,
	)

	q.wg.Add(1)
	go q.pollLoop(ctx)

	q.wg.Add(1)
	go q.heartbeatLoop(ctx)

	q.wg.Add(1)
	go q.stallLoop(ctx)

	return nil
}

// Stop shuts the pool down. In-flight jobs are interrupted through their
// context and released back to waiting with their attempt refunded. Stop
// waits for the loops and workers to exit, bounded by ctx.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.mu.Unlock()

	q.logger.Info("stopping worker pool", "queue", q.config.Name)

	if q.cancel != nil {
		q.cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("worker pool stopped", "queue", q.config.Name)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pollLoop claims due jobs on every tick until the pool is full or the
// queue is drained.
func (q *Queue) pollLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	// Claim immediately on start
	q.fillWorkers(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.fillWorkers(ctx)
		}
	}
}

// fillWorkers moves jobs from the backend onto free worker slots.
func (q *Queue) fillWorkers(ctx context.Context) {
	for {
		select {
		case q.sem <- struct{}{}:
			// Acquired a slot
		default:
			// At max concurrency, wait for the next tick
			return
		}

		job, err := q.backend.Claim(ctx, q.config.Name, q.config.WorkerID, q.config.LockDuration)
		if err != nil {
			<-q.sem
			if ctx.Err() == nil {
				q.logger.Error("failed to claim job", "error", err)
			}
			return
		}
		if job == nil {
			<-q.sem // nothing due
			return
		}

		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			defer func() { <-q.sem }()
			q.runJob(ctx, job)
		}()
	}
}

// runJob executes one claimed job and settles its outcome.
func (q *Queue) runJob(ctx context.Context, job *Job) {
	q.logger.Info("job active",
		"job_id", job.ID,
		"priority", job.Priority,
		"attempt", job.Attempts,
		"max_attempts", job.MaxAttempts,
	)
	q.emitActive(job)

	q.mu.RLock()
	processor := q.processor
	q.mu.RUnlock()

	err := processor(ctx, job)

	// Settlement must land even when the pool context was just canceled,
	// or a finished job would be swept as stalled and run again.
	settleCtx := context.Background()

	if err == nil {
		if err := q.backend.Complete(settleCtx, job.ID); err != nil {
			q.logger.Error("failed to complete job", "job_id", job.ID, "error", err)
			return
		}
		job.State = StateCompleted
		q.logger.Info("job completed", "job_id", job.ID, "attempt", job.Attempts)
		q.emitCompleted(job)
		return
	}

	// A shutdown mid-run is not the job's fault: hand it back untouched.
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		if relErr := q.backend.Release(settleCtx, job.ID); relErr != nil {
			q.logger.Error("failed to release interrupted job", "job_id", job.ID, "error", relErr)
			return
		}
		q.logger.Warn("job interrupted by shutdown, released", "job_id", job.ID)
		return
	}

	final := job.Attempts >= job.MaxAttempts
	if final {
		if failErr := q.backend.Fail(settleCtx, job.ID, err.Error()); failErr != nil {
			q.logger.Error("failed to fail job", "job_id", job.ID, "error", failErr)
			return
		}
		job.State = StateFailed
		job.LastError = err.Error()
		q.logger.Error("job failed permanently",
			"job_id", job.ID,
			"attempts", job.Attempts,
			"error", err,
		)
		q.emitFailed(job, err, true)
		return
	}

	delay := q.retryDelay(job.Attempts)
	runAt := time.Now().UTC().Add(delay)
	if retryErr := q.backend.Retry(settleCtx, job.ID, err.Error(), runAt); retryErr != nil {
		q.logger.Error("failed to schedule retry", "job_id", job.ID, "error", retryErr)
		return
	}
	job.State = StateWaiting
	job.LastError = err.Error()
	job.RunAt = runAt
	q.logger.Warn("job attempt failed, retry scheduled",
		"job_id", job.ID,
		"attempt", job.Attempts,
		"delay", delay,
		"error", err,
	)
	q.emitFailed(job, err, false)
}

// retryDelay doubles per attempt: backoff, 2x backoff, 4x backoff, ...
func (q *Queue) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return q.config.RetryBackoff << (attempt - 1)
}

// heartbeatLoop extends the lease on held jobs at a third of its length,
// so one missed beat never loses a healthy job to the sweep.
func (q *Queue) heartbeatLoop(ctx context.Context) {
	defer q.wg.Done()

	interval := q.config.LockDuration / 3
	if interval <= 0 {
		interval = q.config.LockDuration
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.backend.Heartbeat(ctx, q.config.WorkerID, q.config.LockDuration); err != nil {
				if ctx.Err() == nil {
					q.logger.Error("heartbeat failed", "error", err)
				}
			}
		}
	}
}

// stallLoop reclaims jobs whose lease expired, typically after a crash.
func (q *Queue) stallLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.StallSweepInterval)
	defer ticker.Stop()

	// Sweep immediately so jobs orphaned by a previous run recover fast
	q.sweepStalled(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweepStalled(ctx)
		}
	}
}

// sweepStalled performs one sweep pass and emits the resulting events.
func (q *Queue) sweepStalled(ctx context.Context) {
	stalled, failed, err := q.backend.ReleaseStalled(ctx, q.config.Name)
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Error("stall sweep failed", "error", err)
		}
		return
	}

	for _, job := range stalled {
		q.logger.Warn("stalled job returned to waiting",
			"job_id", job.ID,
			"attempts", job.Attempts,
		)
		q.emitStalled(job)
	}
	for _, job := range failed {
		q.logger.Error("stalled job out of attempts, failed",
			"job_id", job.ID,
			"attempts", job.Attempts,
		)
		q.emitFailed(job, errors.New(stalledError), true)
	}
}

func (q *Queue) emitActive(job *Job) {
	q.mu.RLock()
	fn := q.events.Active
	q.mu.RUnlock()
	if fn != nil {
		fn(job)
	}
}

func (q *Queue) emitCompleted(job *Job) {
	q.mu.RLock()
	fn := q.events.Completed
	q.mu.RUnlock()
	if fn != nil {
		fn(job)
	}
}

func (q *Queue) emitFailed(job *Job, err error, final bool) {
	q.mu.RLock()
	fn := q.events.Failed
	q.mu.RUnlock()
	if fn != nil {
		fn(job, err, final)
	}
}

func (q *Queue) emitStalled(job *Job) {
	q.mu.RLock()
	fn := q.events.Stalled
	q.mu.RUnlock()
	if fn != nil {
		fn(job)
	}
}
