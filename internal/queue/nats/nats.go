package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/oklog/ulid/v2"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/queue"
)

// QueueConfig is the configuration for the NATS JetStream job queue.
type QueueConfig struct {
	JetStream     jetstream.JetStream
	StreamName    string
	Subject       string
	DLQStreamName string
	DLQSubject    string
	DLQMaxAge     time.Duration
	ConsumerName  string
	MaxAttempts   int
	// AckWait is the time a delivered job has to be acknowledged before being
	// delivered again, it must be greater than the task execution timeout.
	AckWait      time.Duration
	FetchMaxWait time.Duration
	Logger       log.Logger
}

func (c *QueueConfig) defaults() error {
	if c.JetStream == nil {
		return fmt.Errorf("jetstream is required")
	}

	if c.StreamName == "" {
		c.StreamName = "AIHQ_TASKS"
	}

	if c.Subject == "" {
		c.Subject = "aihq.tasks.execute"
	}

	if c.DLQStreamName == "" {
		c.DLQStreamName = "AIHQ_TASKS_DLQ"
	}

	if c.DLQSubject == "" {
		c.DLQSubject = "aihq.tasks.dlq"
	}

	if c.DLQMaxAge == 0 {
		c.DLQMaxAge = 24 * time.Hour
	}

	if c.ConsumerName == "" {
		c.ConsumerName = "aihq-worker"
	}

	if c.MaxAttempts == 0 {
		c.MaxAttempts = queue.DefaultMaxAttempts
	}

	if c.AckWait == 0 {
		c.AckWait = 35 * time.Minute
	}

	if c.FetchMaxWait == 0 {
		c.FetchMaxWait = 5 * time.Second
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "queue.NATS"})

	return nil
}

// Queue is a NATS JetStream implementation of queue.Queue.
//
// Jobs are messages on a work queue stream consumed by a single durable
// consumer, the delivery count of the message is the job attempt.
type Queue struct {
	js           jetstream.JetStream
	consumer     jetstream.Consumer
	dlqStream    jetstream.Stream
	subject      string
	dlqSubject   string
	maxAttempts  int
	fetchMaxWait time.Duration
	logger       log.Logger

	mu        sync.Mutex
	inflight  map[string]jetstream.Msg
	completed atomic.Int64
}

// NewQueue creates the streams and the consumer if missing and returns a new NATS job queue.
func NewQueue(ctx context.Context, cfg QueueConfig) (*Queue, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	stream, err := cfg.JetStream.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.Subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create stream %s: %w", cfg.StreamName, err)
	}

	dlqStream, err := cfg.JetStream.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.DLQStreamName,
		Subjects:  []string{cfg.DLQSubject},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    cfg.DLQMaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create stream %s: %w", cfg.DLQStreamName, err)
	}

	// The consumer allows one extra delivery so deliveries over the attempts
	// (unacknowledged jobs of a crashed worker) reach the worker and are dead-lettered.
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.ConsumerName,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxAttempts + 1,
		MaxAckPending: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create consumer %s: %w", cfg.ConsumerName, err)
	}

	cfg.Logger.Infof("NATS queue ready on stream %s", cfg.StreamName)

	return &Queue{
		js:           cfg.JetStream,
		consumer:     consumer,
		dlqStream:    dlqStream,
		subject:      cfg.Subject,
		dlqSubject:   cfg.DLQSubject,
		maxAttempts:  cfg.MaxAttempts,
		fetchMaxWait: cfg.FetchMaxWait,
		logger:       cfg.Logger,
		inflight:     map[string]jetstream.Msg{},
	}, nil
}

// jobMessage is the wire representation of a job.
type jobMessage struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	CreatedAt time.Time `json:"createdAt"`
	LastError string    `json:"lastError,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
}

func encodeJob(j jobMessage) ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("could not marshal job: %w", err)
	}
	return data, nil
}

func decodeJob(data []byte) (jobMessage, error) {
	var j jobMessage
	if err := json.Unmarshal(data, &j); err != nil {
		return jobMessage{}, fmt.Errorf("could not unmarshal job: %w", err)
	}
	if j.ID == "" || j.TaskID == "" {
		return jobMessage{}, fmt.Errorf("job id and task id are required: %w", model.ErrNotValid)
	}
	return j, nil
}

// Enqueue publishes a new job for the task.
func (q *Queue) Enqueue(ctx context.Context, taskID string) (string, error) {
	if taskID == "" {
		return "", fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}

	msg := jobMessage{
		ID:        ulid.Make().String(),
		TaskID:    taskID,
		CreatedAt: time.Now().UTC(),
	}
	data, err := encodeJob(msg)
	if err != nil {
		return "", err
	}

	if _, err := q.js.Publish(ctx, q.subject, data, jetstream.WithMsgID(msg.ID)); err != nil {
		return "", fmt.Errorf("could not publish job: %w", err)
	}

	q.logger.Debugf("Enqueued job %s for task %s", msg.ID, taskID)
	return msg.ID, nil
}

// Dequeue fetches the next job from the consumer.
func (q *Queue) Dequeue(ctx context.Context) (*model.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := q.consumer.Fetch(1, jetstream.FetchMaxWait(q.fetchMaxWait))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("could not fetch job: %w", err)
		}

		for msg := range batch.Messages() {
			job, err := q.toJob(msg)
			if err != nil {
				// Malformed jobs are never retryable.
				q.logger.Errorf("Discarding malformed job message: %s", err)
				_ = msg.Term()
				continue
			}

			q.mu.Lock()
			q.inflight[job.ID] = msg
			q.mu.Unlock()

			return job, nil
		}

		if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
			q.logger.Warningf("Job fetch error: %s", err)
		}
	}
}

func (q *Queue) toJob(msg jetstream.Msg) (*model.Job, error) {
	jm, err := decodeJob(msg.Data())
	if err != nil {
		return nil, err
	}

	meta, err := msg.Metadata()
	if err != nil {
		return nil, fmt.Errorf("could not get message metadata: %w", err)
	}

	return &model.Job{
		ID:          jm.ID,
		TaskID:      jm.TaskID,
		Attempt:     int(meta.NumDelivered),
		MaxAttempts: q.maxAttempts,
		State:       model.JobStateActive,
		RunAt:       meta.Timestamp,
		CreatedAt:   jm.CreatedAt,
	}, nil
}

func (q *Queue) takeInflight(jobID string) (jetstream.Msg, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg, ok := q.inflight[jobID]
	if !ok {
		return nil, fmt.Errorf("in flight job %s: %w", jobID, model.ErrNotFound)
	}
	delete(q.inflight, jobID)

	return msg, nil
}

// Complete acknowledges the job message.
func (q *Queue) Complete(ctx context.Context, job model.Job) error {
	msg, err := q.takeInflight(job.ID)
	if err != nil {
		return err
	}

	if err := msg.DoubleAck(ctx); err != nil {
		return fmt.Errorf("could not ack job: %w", err)
	}
	q.completed.Add(1)

	return nil
}

// Retry redelivers the job message after the delay.
func (q *Queue) Retry(ctx context.Context, job model.Job, delay time.Duration, cause error) error {
	msg, err := q.takeInflight(job.ID)
	if err != nil {
		return err
	}

	if err := msg.NakWithDelay(delay); err != nil {
		return fmt.Errorf("could not nak job: %w", err)
	}

	return nil
}

// DeadLetter publishes the job on the dead letter stream and terminates its delivery.
func (q *Queue) DeadLetter(ctx context.Context, job model.Job, cause error) error {
	msg, err := q.takeInflight(job.ID)
	if err != nil {
		return err
	}

	jm := jobMessage{
		ID:        job.ID,
		TaskID:    job.TaskID,
		CreatedAt: job.CreatedAt,
		Attempts:  job.Attempt,
	}
	if cause != nil {
		jm.LastError = cause.Error()
	}
	data, err := encodeJob(jm)
	if err != nil {
		return err
	}

	if _, err := q.js.Publish(ctx, q.dlqSubject, data); err != nil {
		return fmt.Errorf("could not publish dead letter: %w", err)
	}

	if err := msg.Term(); err != nil {
		return fmt.Errorf("could not terminate job: %w", err)
	}

	return nil
}

// Stats returns the queue job counts, completed jobs are removed from the work
// queue stream so they are counted by this process only.
func (q *Queue) Stats(ctx context.Context) (model.QueueStats, error) {
	info, err := q.consumer.Info(ctx)
	if err != nil {
		return model.QueueStats{}, fmt.Errorf("could not get consumer info: %w", err)
	}

	dlqInfo, err := q.dlqStream.Info(ctx)
	if err != nil {
		return model.QueueStats{}, fmt.Errorf("could not get dead letter stream info: %w", err)
	}

	return model.QueueStats{
		Waiting:   int(info.NumPending),
		Active:    info.NumAckPending,
		Completed: int(q.completed.Load()),
		Failed:    int(dlqInfo.State.Msgs),
	}, nil
}

var _ queue.Queue = &Queue{}
