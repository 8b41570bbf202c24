package queue

import "time"

// stalledError is recorded on jobs whose lease expired mid-run.
const stalledError = "stalled: lock expired"

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanJob reads one job row in jobColumns order.
func scanJob(row rowScanner) (*Job, error) {
	var (
		job         Job
		state       string
		runAt       int64
		lockedUntil int64
		createdAt   int64
		updatedAt   int64
	)

	err := row.Scan(
		&job.ID, &job.Queue, &job.Priority, &state, &job.Attempts, &job.MaxAttempts,
		&job.LastError, &runAt, &job.LockedBy, &lockedUntil, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.State = State(state)
	job.RunAt = millisToTime(runAt)
	job.LockedUntil = millisToTime(lockedUntil)
	job.CreatedAt = millisToTime(createdAt)
	job.UpdatedAt = millisToTime(updatedAt)
	return &job, nil
}

// timeToMillis converts a time to the stored unix millisecond form; the
// zero time maps to zero.
func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// millisToTime is the inverse of timeToMillis.
func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
