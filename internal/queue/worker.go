package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/metrics"
	"github.com/slok/aihq/internal/model"
)

// Handler processes a job delivery.
type Handler func(ctx context.Context, job model.Job) error

// ExhaustedHook is called after a job used all its attempts and has been dead-lettered.
type ExhaustedHook func(ctx context.Context, job model.Job, cause error) error

// WorkerConfig is the configuration of the queue worker.
type WorkerConfig struct {
	Queue       Queue
	Handler     Handler
	OnExhausted ExhaustedHook
	// InitialBackoff is the retry delay after the first failed attempt, every
	// next attempt multiplies it by BackoffMultiplier.
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	// ErrorBackoff is the wait after the queue itself fails to deliver.
	ErrorBackoff time.Duration
	// MaintenanceInterval is the interval of the retention and queue stats loop.
	MaintenanceInterval time.Duration
	Retention           Retention
	MetricsRecorder     metrics.Recorder
	Logger              log.Logger
}

func (c *WorkerConfig) defaults() error {
	if c.Queue == nil {
		return fmt.Errorf("queue is required")
	}

	if c.Handler == nil {
		return fmt.Errorf("handler is required")
	}

	if c.OnExhausted == nil {
		c.OnExhausted = func(context.Context, model.Job, error) error { return nil }
	}

	if c.InitialBackoff == 0 {
		c.InitialBackoff = 2 * time.Second
	}

	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2
	}

	if c.MaxBackoff == 0 {
		c.MaxBackoff = 10 * time.Minute
	}

	if c.ErrorBackoff == 0 {
		c.ErrorBackoff = time.Second
	}

	if c.MaintenanceInterval == 0 {
		c.MaintenanceInterval = time.Minute
	}

	if c.Retention == (Retention{}) {
		c.Retention = DefaultRetention
	}

	if c.MetricsRecorder == nil {
		c.MetricsRecorder = metrics.Noop
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "queue.Worker"})

	return nil
}

// Worker drains a queue running a single job at a time.
type Worker struct {
	queue               Queue
	handler             Handler
	onExhausted         ExhaustedHook
	initialBackoff      time.Duration
	backoffMultiplier   float64
	maxBackoff          time.Duration
	errorBackoff        time.Duration
	maintenanceInterval time.Duration
	retention           Retention
	metricsRec          metrics.Recorder
	logger              log.Logger
}

// NewWorker returns a new queue worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		queue:               cfg.Queue,
		handler:             cfg.Handler,
		onExhausted:         cfg.OnExhausted,
		initialBackoff:      cfg.InitialBackoff,
		backoffMultiplier:   cfg.BackoffMultiplier,
		maxBackoff:          cfg.MaxBackoff,
		errorBackoff:        cfg.ErrorBackoff,
		maintenanceInterval: cfg.MaintenanceInterval,
		retention:           cfg.Retention,
		metricsRec:          cfg.MetricsRecorder,
		logger:              cfg.Logger,
	}, nil
}

// Run processes jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Infof("Queue worker started")

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.maintenance(ctx)
	}()

	for {
		err := w.ProcessNext(ctx)
		if ctx.Err() != nil {
			<-done
			w.logger.Infof("Queue worker stopped")
			return nil
		}

		if err != nil {
			w.logger.Errorf("Could not process next job: %s", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.errorBackoff):
			}
		}
	}
}

// ProcessNext waits for the next job and processes it.
//
// Job outcomes are acknowledged with a non cancellable context so a shutdown
// in the middle of a job still records its result.
func (w *Worker) ProcessNext(ctx context.Context) error {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return fmt.Errorf("could not dequeue job: %w", err)
	}

	logger := w.logger.WithValues(log.Kv{"job-id": job.ID, "task-id": job.TaskID, "attempt": job.Attempt})
	ackCtx := context.WithoutCancel(ctx)

	// Deliveries over the limit only happen when a previous delivery never
	// reported back (e.g. the worker crashed mid job).
	if job.Attempt > job.MaxAttempts {
		cause := fmt.Errorf("job exceeded %d attempts without reporting a result", job.MaxAttempts)
		logger.Warningf("Dead-lettering job: %s", cause)
		return w.exhaust(ackCtx, logger, *job, cause, 0)
	}

	logger.Infof("Processing job")
	start := time.Now()
	herr := w.handler(ctx, *job)
	duration := time.Since(start)

	switch {
	case herr == nil:
		if err := w.queue.Complete(ackCtx, *job); err != nil {
			return fmt.Errorf("could not complete job %s: %w", job.ID, err)
		}
		w.metricsRec.ObserveJobProcessed(ctx, metrics.JobOutcomeCompleted, job.Attempt, duration)
		logger.Infof("Job completed")

	case IsPermanent(herr):
		if err := w.queue.DeadLetter(ackCtx, *job, herr); err != nil {
			return fmt.Errorf("could not dead-letter job %s: %w", job.ID, err)
		}
		w.metricsRec.ObserveJobProcessed(ctx, metrics.JobOutcomeDeadLettered, job.Attempt, duration)
		logger.Warningf("Job failed permanently: %s", herr)

	case job.Attempt < job.MaxAttempts:
		delay := w.RetryDelay(job.Attempt)
		if err := w.queue.Retry(ackCtx, *job, delay, herr); err != nil {
			return fmt.Errorf("could not retry job %s: %w", job.ID, err)
		}
		w.metricsRec.ObserveJobProcessed(ctx, metrics.JobOutcomeRetried, job.Attempt, duration)
		logger.Warningf("Job failed, retrying in %s: %s", delay, herr)

	default:
		return w.exhaust(ackCtx, logger, *job, herr, duration)
	}

	return nil
}

func (w *Worker) exhaust(ctx context.Context, logger log.Logger, job model.Job, cause error, duration time.Duration) error {
	if err := w.queue.DeadLetter(ctx, job, cause); err != nil {
		return fmt.Errorf("could not dead-letter job %s: %w", job.ID, err)
	}
	w.metricsRec.ObserveJobProcessed(ctx, metrics.JobOutcomeDeadLettered, job.Attempt, duration)
	logger.Errorf("Job attempts exhausted: %s", cause)

	if err := w.onExhausted(ctx, job, cause); err != nil {
		logger.Errorf("Exhausted job hook failed: %s", err)
	}

	return nil
}

// RetryDelay returns the delay before the next delivery of a job that failed on the attempt.
func (w *Worker) RetryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(w.initialBackoff),
		backoff.WithMultiplier(w.backoffMultiplier),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(w.maxBackoff),
		backoff.WithMaxElapsedTime(0),
	)

	delay := w.initialBackoff
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}

	return delay
}

func (w *Worker) maintenance(ctx context.Context) {
	t := time.NewTicker(w.maintenanceInterval)
	defer t.Stop()

	for {
		w.runMaintenance(ctx)

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (w *Worker) runMaintenance(ctx context.Context) {
	if p, ok := w.queue.(Pruner); ok {
		removed, err := p.Prune(ctx, w.retention)
		if err != nil {
			w.logger.Errorf("Could not prune finished jobs: %s", err)
		} else if removed > 0 {
			w.logger.Debugf("Pruned %d finished jobs", removed)
		}
	}

	stats, err := w.queue.Stats(ctx)
	if err != nil {
		w.logger.Errorf("Could not get queue stats: %s", err)
		return
	}
	w.metricsRec.SetQueueStats(ctx, stats)
}
