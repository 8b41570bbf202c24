package store

import "fmt"

// NotFoundError indicates the requested row does not exist.
type NotFoundError struct {
	Kind string // "task", "template"
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError indicates a status update that violates the task lifecycle.
type ConflictError struct {
	TaskID string
	From   Status
	To     Status
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("illegal status transition for task %s: %s -> %s", e.TaskID, e.From, e.To)
}

// ValidationError indicates a model that fails its field constraints.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // "sqlite" or "postgres"
	Operation string // Operation that failed ("create_task", "update_status", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("store error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}
