package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor runs Clean on a cron schedule so terminal jobs do not pile up.
type Janitor struct {
	queue    *Queue
	schedule string
	grace    time.Duration
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewJanitor creates a janitor that deletes the queue's terminal jobs
// older than grace on the given cron schedule (standard five-field
// syntax or a descriptor such as "@hourly").
func NewJanitor(queue *Queue, schedule string, grace time.Duration) *Janitor {
	return &Janitor{
		queue:    queue,
		schedule: schedule,
		grace:    grace,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "queue.janitor"),
	}
}

// Start begins the scheduled cleaning. An empty schedule disables the
// janitor.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.schedule == "" {
		j.logger.Info("clean schedule not configured, skipping janitor")
		return nil
	}

	// Validate cron expression
	if _, err := cron.ParseStandard(j.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", j.schedule, err)
	}

	_, err := j.cron.AddFunc(j.schedule, func() {
		j.runClean(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule queue cleaning: %w", err)
	}

	j.cron.Start()
	j.running = true

	j.logger.Info("queue janitor started",
		"schedule", j.schedule,
		"grace", j.grace,
	)

	// Stop with the surrounding lifecycle
	go func() {
		<-ctx.Done()
		j.Stop()
	}()

	return nil
}

// runClean executes one cleaning cycle.
func (j *Janitor) runClean(ctx context.Context) {
	removed, err := j.queue.Clean(ctx, j.grace)
	if err != nil {
		j.logger.Error("scheduled queue cleaning failed", "error", err)
		return
	}

	if removed > 0 {
		j.logger.Info("scheduled queue cleaning completed", "removed", removed)
	} else {
		j.logger.Debug("scheduled queue cleaning completed, nothing to remove")
	}
}

// Stop stops the janitor and waits for a running clean to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron != nil && j.running {
		ctx := j.cron.Stop()
		<-ctx.Done() // Wait for a running clean to finish
		j.running = false
		j.logger.Info("queue janitor stopped")
	}
}

// IsRunning returns true if the janitor is running.
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}
