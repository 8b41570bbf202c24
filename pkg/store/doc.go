// Package store persists requirement tasks, their quality metrics and code
// templates in a relational database.
//
// Two backends are provided: SQLite (the default, suitable for single-node
// deployments) and PostgreSQL. Both bootstrap their schema on open and are
// selected through Open based on the configured backend name.
//
// The store owns the task lifecycle: UpdateStatus rejects transitions
// outside pending → in_progress → {completed, failed} (any state may fail,
// and terminal tasks re-enter in_progress when the queue retries them).
// CreateTask couples the task insert with the caller-supplied enqueue step
// so that a task row never exists without its queue job.
package store
