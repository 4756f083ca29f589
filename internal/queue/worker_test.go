package queue_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/queue"
	"github.com/slok/aihq/internal/queue/queuemock"
)

func jobFixture(attempt int) *model.Job {
	return &model.Job{
		ID:          "job-1",
		TaskID:      "task-1",
		Attempt:     attempt,
		MaxAttempts: 3,
		State:       model.JobStateActive,
	}
}

func TestNewWorker(t *testing.T) {
	handler := func(context.Context, model.Job) error { return nil }

	tests := map[string]struct {
		cfg    queue.WorkerConfig
		expErr bool
	}{
		"Valid configuration should create the worker.": {
			cfg: queue.WorkerConfig{
				Queue:   &queuemock.MockQueue{},
				Handler: handler,
			},
		},

		"Missing queue should fail.": {
			cfg: queue.WorkerConfig{
				Handler: handler,
			},
			expErr: true,
		},

		"Missing handler should fail.": {
			cfg: queue.WorkerConfig{
				Queue: &queuemock.MockQueue{},
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := queue.NewWorker(test.cfg)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWorkerProcessNext(t *testing.T) {
	errTransient := errors.New("transient")

	tests := map[string]struct {
		job          *model.Job
		handlerErr   error
		mock         func(m *queuemock.MockQueue)
		expHandled   bool
		expExhausted bool
		expErr       bool
	}{
		"A successful job should be completed.": {
			job:        jobFixture(1),
			handlerErr: nil,
			mock: func(m *queuemock.MockQueue) {
				m.On("Complete", mock.Anything, *jobFixture(1)).Once().Return(nil)
			},
			expHandled: true,
		},

		"A permanent error should dead-letter the job without retries.": {
			job:        jobFixture(1),
			handlerErr: queue.Permanent(model.ErrTaskNotPending),
			mock: func(m *queuemock.MockQueue) {
				m.On("DeadLetter", mock.Anything, *jobFixture(1), mock.MatchedBy(func(err error) bool {
					return errors.Is(err, model.ErrTaskNotPending)
				})).Once().Return(nil)
			},
			expHandled: true,
		},

		"A transient error on the first attempt should be retried after 2s.": {
			job:        jobFixture(1),
			handlerErr: errTransient,
			mock: func(m *queuemock.MockQueue) {
				m.On("Retry", mock.Anything, *jobFixture(1), 2*time.Second, errTransient).Once().Return(nil)
			},
			expHandled: true,
		},

		"A transient error on the second attempt should be retried after 4s.": {
			job:        jobFixture(2),
			handlerErr: errTransient,
			mock: func(m *queuemock.MockQueue) {
				m.On("Retry", mock.Anything, *jobFixture(2), 4*time.Second, errTransient).Once().Return(nil)
			},
			expHandled: true,
		},

		"A transient error on the last attempt should dead-letter the job and call the exhausted hook.": {
			job:        jobFixture(3),
			handlerErr: errTransient,
			mock: func(m *queuemock.MockQueue) {
				m.On("DeadLetter", mock.Anything, *jobFixture(3), errTransient).Once().Return(nil)
			},
			expHandled:   true,
			expExhausted: true,
		},

		"A job delivered over its attempts should be dead-lettered without running it.": {
			job: jobFixture(4),
			mock: func(m *queuemock.MockQueue) {
				m.On("DeadLetter", mock.Anything, *jobFixture(4), mock.Anything).Once().Return(nil)
			},
			expHandled:   false,
			expExhausted: true,
		},

		"Failing to acknowledge the job should fail.": {
			job:        jobFixture(1),
			handlerErr: nil,
			mock: func(m *queuemock.MockQueue) {
				m.On("Complete", mock.Anything, mock.Anything).Once().Return(fmt.Errorf("something"))
			},
			expHandled: true,
			expErr:     true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			mq := queuemock.NewMockQueue(t)
			mq.On("Dequeue", mock.Anything).Once().Return(test.job, nil)
			test.mock(mq)

			handled := false
			exhausted := false
			w, err := queue.NewWorker(queue.WorkerConfig{
				Queue: mq,
				Handler: func(_ context.Context, job model.Job) error {
					handled = true
					assert.Equal(*test.job, job)
					return test.handlerErr
				},
				OnExhausted: func(_ context.Context, job model.Job, cause error) error {
					exhausted = true
					assert.Error(cause)
					return nil
				},
				Logger: log.Noop,
			})
			require.NoError(err)

			err = w.ProcessNext(context.Background())
			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
			}
			assert.Equal(test.expHandled, handled)
			assert.Equal(test.expExhausted, exhausted)
		})
	}
}

func TestWorkerProcessNextDequeueError(t *testing.T) {
	mq := queuemock.NewMockQueue(t)
	mq.On("Dequeue", mock.Anything).Once().Return(nil, fmt.Errorf("something"))

	w, err := queue.NewWorker(queue.WorkerConfig{
		Queue:   mq,
		Handler: func(context.Context, model.Job) error { return nil },
	})
	require.NoError(t, err)

	assert.Error(t, w.ProcessNext(context.Background()))
}

func TestWorkerRetryDelay(t *testing.T) {
	w, err := queue.NewWorker(queue.WorkerConfig{
		Queue:   &queuemock.MockQueue{},
		Handler: func(context.Context, model.Job) error { return nil },
	})
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, w.RetryDelay(1))
	assert.Equal(t, 4*time.Second, w.RetryDelay(2))
	assert.Equal(t, 8*time.Second, w.RetryDelay(3))
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	mq := &queuemock.MockQueue{}
	mq.On("Stats", mock.Anything).Return(model.QueueStats{}, nil)
	mq.On("Dequeue", mock.Anything).Return(func(ctx context.Context) (*model.Job, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	w, err := queue.NewWorker(queue.WorkerConfig{
		Queue:   mq,
		Handler: func(context.Context, model.Job) error { return nil },
	})
	require.NoError(t, err)

	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker didn't stop")
	}
}

func TestPermanent(t *testing.T) {
	err := queue.Permanent(model.ErrNotFound)
	assert.True(t, queue.IsPermanent(err))
	assert.True(t, queue.IsPermanent(fmt.Errorf("wrapped: %w", err)))
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, model.ErrNotFound.Error(), err.Error())

	assert.False(t, queue.IsPermanent(model.ErrNotFound))
	assert.Nil(t, queue.Permanent(nil))
}
