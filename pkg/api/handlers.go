package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"forgehq/loom/pkg/api/types"
	"forgehq/loom/pkg/queue"
	"forgehq/loom/pkg/store"
)

// TaskStore is the slice of the store the API uses.
type TaskStore interface {
	CreateTask(ctx context.Context, task *store.Task, enqueue store.EnqueueFunc) error
	GetTask(ctx context.Context, id string) (*store.Task, error)
	ListTasks(ctx context.Context, filter store.Filter) ([]*store.Task, error)
	GetMetricsByTask(ctx context.Context, taskID string) ([]*store.QualityMetric, error)
}

// TaskQueue is the slice of the queue the API uses.
type TaskQueue interface {
	Enqueue(ctx context.Context, taskID string, priority int) (string, error)
	Job(ctx context.Context, id string) (*queue.Job, error)
	Stats(ctx context.Context) (*queue.Stats, error)
	Clean(ctx context.Context, grace time.Duration) (int64, error)
}

// Handler serves the requirement-task endpoints. Construct it with
// NewHandler and mount it with Routes.
type Handler struct {
	store  TaskStore
	queue  TaskQueue
	logger *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(st TaskStore, q TaskQueue) *Handler {
	return &Handler{
		store:  st,
		queue:  q,
		logger: slog.Default().With("component", "api"),
	}
}

// CreateTask accepts a requirement, persists it and schedules its
// pipeline job. The response returns immediately with the id to poll;
// processing happens asynchronously. If scheduling fails the task row
// is rolled back, so a 500 here never leaves an orphaned task behind.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req types.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewValidationError("malformed JSON body"))
		return
	}

	task := req.ToTask()
	err := h.store.CreateTask(r.Context(), task, func(ctx context.Context) error {
		_, err := h.queue.Enqueue(ctx, task.ID, task.Priority.QueueValue())
		return err
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "task created",
		"task_id", task.ID,
		"project_id", task.ProjectID,
		"priority", task.Priority,
		"language", task.Language,
	)

	writeJSON(w, http.StatusCreated, &types.CreateTaskResponse{
		TaskID:  task.ID,
		Status:  string(task.Status),
		Message: "Requirement task created successfully",
	})
}

// GetTask returns the polling view of one task.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.store.GetTask(r.Context(), r.PathValue("taskId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.taskResponse(r.Context(), task))
}

// ListTasks returns the polling views of all tasks matching the
// projectId and status query parameters. Absent parameters match
// everything.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{ProjectID: r.URL.Query().Get("projectId")}

	if s := r.URL.Query().Get("status"); s != "" {
		status := store.Status(s)
		if !status.Valid() {
			writeError(w, types.NewValidationError(fmt.Sprintf("unknown status %q", s)))
			return
		}
		filter.Status = status
	}

	tasks, err := h.store.ListTasks(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	responses := make([]*types.TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, h.taskResponse(r.Context(), task))
	}

	writeJSON(w, http.StatusOK, responses)
}

// QueueStats returns the current queue census.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// CleanQueue removes terminal jobs older than the requested grace
// period. An empty body means a zero grace period: remove every
// completed and failed job now.
func (h *Handler) CleanQueue(w http.ResponseWriter, r *http.Request) {
	var req types.CleanQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, types.NewValidationError("malformed JSON body"))
		return
	}
	if req.GracePeriod < 0 {
		writeError(w, types.NewValidationError("gracePeriod must not be negative"))
		return
	}

	removed, err := h.queue.Clean(r.Context(), time.Duration(req.GracePeriod)*time.Second)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "queue cleaned",
		"removed", removed,
		"grace_period_s", req.GracePeriod,
	)

	writeJSON(w, http.StatusOK, &types.CleanQueueResponse{
		Success: true,
		Message: fmt.Sprintf("Removed %d completed and failed jobs", removed),
	})
}

// taskResponse joins the durable row with the live queue state and the
// recorded quality metrics. The row is authoritative: queue or metric
// lookups failing degrade the view instead of failing the request.
func (h *Handler) taskResponse(ctx context.Context, task *store.Task) *types.TaskResponse {
	resp := &types.TaskResponse{
		TaskID:         task.ID,
		Status:         string(task.Status),
		Progress:       task.Progress,
		Details:        task.Details,
		CreatedAt:      task.CreatedAt,
		UpdatedAt:      task.UpdatedAt,
		QualityMetrics: []types.QualityMetricResponse{},
	}

	var jobNotFound *queue.NotFoundError
	job, err := h.queue.Job(ctx, task.ID)
	switch {
	case err == nil:
		info := &types.QueueInfo{State: string(job.Status())}
		if job.State == queue.StateActive {
			progress := task.Progress
			info.Progress = &progress
		}
		resp.QueueInfo = info
	case errors.As(err, &jobNotFound):
		resp.QueueInfo = &types.QueueInfo{State: string(queue.StateNotFound)}
	default:
		h.logger.WarnContext(ctx, "failed to read queue job",
			"task_id", task.ID,
			"error", err,
		)
	}

	metrics, err := h.store.GetMetricsByTask(ctx, task.ID)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read quality metrics",
			"task_id", task.ID,
			"error", err,
		)
	}
	for _, m := range metrics {
		resp.QualityMetrics = append(resp.QualityMetrics, types.NewQualityMetricResponse(m))
	}

	return resp
}
