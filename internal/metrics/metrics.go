package metrics

import (
	"context"
	"time"

	"github.com/slok/aihq/internal/model"
)

// JobOutcome is the result of processing a single job delivery.
type JobOutcome string

const (
	JobOutcomeCompleted    JobOutcome = "completed"
	JobOutcomeRetried      JobOutcome = "retried"
	JobOutcomeDeadLettered JobOutcome = "dead_lettered"
)

// Recorder knows how to record the app metrics.
type Recorder interface {
	ObserveJobProcessed(ctx context.Context, outcome JobOutcome, attempt int, duration time.Duration)
	ObserveTaskExecution(ctx context.Context, status model.TaskStatus, duration time.Duration)
	SetQueueStats(ctx context.Context, stats model.QueueStats)
}

// Noop is a Recorder that doesn't record anything.
const Noop = noop(0)

type noop int

func (noop) ObserveJobProcessed(context.Context, JobOutcome, int, time.Duration) {}
func (noop) ObserveTaskExecution(context.Context, model.TaskStatus, time.Duration) {}
func (noop) SetQueueStats(context.Context, model.QueueStats) {}

var _ Recorder = Noop
