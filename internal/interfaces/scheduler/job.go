package scheduler

import "context"

// Job is a unit of work executed by the worker pool.
type Job interface {
	// Execute runs the job. Implementations must respect ctx cancellation.
	Execute(ctx context.Context) error

	// HouseholdID identifies whose data the job touches, for logs and spans.
	HouseholdID() string

	Description() string
}
