package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for HTTP request IDs.
	RequestIDKey contextKey = "request_id"

	// TaskIDKey is the context key for pipeline task IDs.
	TaskIDKey contextKey = "task_id"

	// JobAttemptKey is the context key for the queue attempt counter.
	JobAttemptKey contextKey = "attempt"

	// ProviderKey is the context key for LLM provider names.
	ProviderKey contextKey = "provider"

	// StageKey is the context key for the pipeline stage name.
	StageKey contextKey = "stage"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithTaskID adds a task ID to the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// GetTaskID retrieves the task ID from the context.
func GetTaskID(ctx context.Context) string {
	if taskID, ok := ctx.Value(TaskIDKey).(string); ok {
		return taskID
	}
	return ""
}

// WithJobAttempt adds the queue attempt counter to the context.
func WithJobAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, JobAttemptKey, attempt)
}

// GetJobAttempt retrieves the queue attempt counter from the context.
// Returns 0 when unset.
func GetJobAttempt(ctx context.Context) int {
	if attempt, ok := ctx.Value(JobAttemptKey).(int); ok {
		return attempt
	}
	return 0
}

// WithProvider adds a provider name to the context.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ProviderKey, provider)
}

// GetProvider retrieves the provider name from the context.
func GetProvider(ctx context.Context) string {
	if provider, ok := ctx.Value(ProviderKey).(string); ok {
		return provider
	}
	return ""
}

// WithStage adds a pipeline stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, StageKey, stage)
}

// GetStage retrieves the pipeline stage name from the context.
func GetStage(ctx context.Context) string {
	if stage, ok := ctx.Value(StageKey).(string); ok {
		return stage
	}
	return ""
}

// ContextAttrs extracts the known context fields as alternating key/value
// pairs suitable for slog calls.
func ContextAttrs(ctx context.Context) []any {
	var fields []any

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if taskID := GetTaskID(ctx); taskID != "" {
		fields = append(fields, "task_id", taskID)
	}
	if attempt := GetJobAttempt(ctx); attempt > 0 {
		fields = append(fields, "attempt", attempt)
	}
	if provider := GetProvider(ctx); provider != "" {
		fields = append(fields, "provider", provider)
	}
	if stage := GetStage(ctx); stage != "" {
		fields = append(fields, "stage", stage)
	}

	return fields
}
