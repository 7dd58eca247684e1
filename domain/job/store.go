package job

import "context"

// Store persists jobs. The (type, scope) pair is unique: enqueueing an
// already-queued job silently collapses into the existing row.
type Store interface {
	// Enqueue inserts a job, or returns the existing one when a job with
	// the same type and scope is already queued. The boolean reports
	// whether a new row was created.
	Enqueue(ctx context.Context, j Job) (Job, bool, error)
	// Claim returns the oldest job of the given type under a row lock
	// suitable for a worker tick, or false when none is queued.
	Claim(ctx context.Context, jobType Type) (Job, bool, error)
	// UpdateData persists a job's cursor after a tick.
	UpdateData(ctx context.Context, id int64, data Data) error
	// Delete removes a drained job.
	Delete(ctx context.Context, id int64) error
	// Count returns the number of queued jobs.
	Count(ctx context.Context) (int, error)
}
