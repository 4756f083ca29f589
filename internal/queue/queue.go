package queue

import (
	"context"
	"errors"
	"time"

	"github.com/slok/aihq/internal/model"
)

// DefaultMaxAttempts is the number of deliveries a job has before being dead-lettered.
const DefaultMaxAttempts = 3

// Queue is a durable at-least-once job queue of task executions.
type Queue interface {
	// Enqueue adds a new job for the task and returns its ID.
	Enqueue(ctx context.Context, taskID string) (jobID string, err error)
	// Dequeue blocks until a job is ready to run or the context ends. The
	// returned job attempt has already been incremented for this delivery.
	Dequeue(ctx context.Context) (*model.Job, error)
	// Complete acknowledges a successfully processed job.
	Complete(ctx context.Context, job model.Job) error
	// Retry schedules a new delivery of the job after the delay.
	Retry(ctx context.Context, job model.Job, delay time.Duration, cause error) error
	// DeadLetter moves the job to the failed jobs, it will not be delivered again.
	DeadLetter(ctx context.Context, job model.Job, cause error) error
	// Stats returns the number of jobs by state.
	Stats(ctx context.Context) (model.QueueStats, error)
}

// Retention is the retention policy of finished jobs.
type Retention struct {
	CompletedMaxAge   time.Duration
	CompletedMaxCount int
	FailedMaxAge      time.Duration
}

// DefaultRetention keeps completed jobs for 1h (last 100 at most) and failed jobs for 24h.
var DefaultRetention = Retention{
	CompletedMaxAge:   time.Hour,
	CompletedMaxCount: 100,
	FailedMaxAge:      24 * time.Hour,
}

// Pruner is implemented by the queues that need to remove finished jobs by themselves.
type Pruner interface {
	Prune(ctx context.Context, r Retention) (removed int, err error)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as not retryable, a job handler returning it will
// be dead-lettered without any other delivery.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent returns true if the error (or any error in its chain) was marked as permanent.
func IsPermanent(err error) bool {
	var perr *permanentError
	return errors.As(err, &perr)
}
