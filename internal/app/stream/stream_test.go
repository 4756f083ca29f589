package stream_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/aihq/internal/app/stream"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/storage"
	"github.com/slok/aihq/internal/storage/memory"
	"github.com/slok/aihq/internal/storage/storagemock"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func taskLog(seq int64, kind model.LogKind, msg string) model.TaskLog {
	return model.TaskLog{Sequence: seq, TaskID: "t1", Message: msg, Kind: kind, Timestamp: t0.Add(time.Duration(seq) * time.Second)}
}

func frameLog(seq int64, kind model.LogKind, msg string) stream.Log {
	return stream.Log{Sequence: seq, Message: msg, Kind: kind, Timestamp: t0.Add(time.Duration(seq) * time.Second)}
}

func TestServiceStream(t *testing.T) {
	tests := map[string]struct {
		mock      func(m *storagemock.MockRepository)
		expFrames []stream.Frame
		expErr    bool
	}{
		"A terminal task should send a single update and complete.": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetTask", mock.Anything, "t1").Once().Return(&model.Task{ID: "t1", Status: model.TaskStatusCompleted, Result: &model.TaskResult{Summary: "s", Actions: 1}}, nil)
				m.On("ListLogs", mock.Anything, "t1", int64(0)).Once().Return([]model.TaskLog{
					taskLog(1, model.LogKindInfo, "Starting execution: p"),
					taskLog(2, model.LogKindSuccess, "Task completed successfully!"),
				}, nil)
			},
			expFrames: []stream.Frame{
				{Type: stream.FrameTypeConnected, TaskID: "t1"},
				{
					Type:   stream.FrameTypeUpdate,
					Status: model.TaskStatusCompleted,
					Result: &model.TaskResult{Summary: "s", Actions: 1},
					Logs: []stream.Log{
						frameLog(1, model.LogKindInfo, "Starting execution: p"),
						frameLog(2, model.LogKindSuccess, "Task completed successfully!"),
					},
				},
				{Type: stream.FrameTypeComplete},
			},
		},

		"Changes should be sent as deltas and unchanged ticks should be skipped.": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetTask", mock.Anything, "t1").Once().Return(&model.Task{ID: "t1", Status: model.TaskStatusPending}, nil)
				m.On("ListLogs", mock.Anything, "t1", int64(0)).Once().Return(nil, nil)

				m.On("GetTask", mock.Anything, "t1").Once().Return(&model.Task{ID: "t1", Status: model.TaskStatusInProgress}, nil)
				m.On("ListLogs", mock.Anything, "t1", int64(0)).Once().Return([]model.TaskLog{taskLog(3, model.LogKindInfo, "Starting execution: p")}, nil)

				m.On("GetTask", mock.Anything, "t1").Once().Return(&model.Task{ID: "t1", Status: model.TaskStatusInProgress}, nil)
				m.On("ListLogs", mock.Anything, "t1", int64(3)).Once().Return(nil, nil)

				m.On("GetTask", mock.Anything, "t1").Once().Return(&model.Task{ID: "t1", Status: model.TaskStatusFailed, Error: "boom"}, nil)
				m.On("ListLogs", mock.Anything, "t1", int64(3)).Once().Return([]model.TaskLog{taskLog(4, model.LogKindError, "Task failed: boom")}, nil)
			},
			expFrames: []stream.Frame{
				{Type: stream.FrameTypeConnected, TaskID: "t1"},
				{Type: stream.FrameTypeUpdate, Status: model.TaskStatusPending, Logs: []stream.Log{}},
				{Type: stream.FrameTypeUpdate, Status: model.TaskStatusInProgress, Logs: []stream.Log{frameLog(3, model.LogKindInfo, "Starting execution: p")}},
				{Type: stream.FrameTypeUpdate, Status: model.TaskStatusFailed, Error: "boom", Logs: []stream.Log{frameLog(4, model.LogKindError, "Task failed: boom")}},
				{Type: stream.FrameTypeComplete},
			},
		},

		"Store errors should send an error frame and keep polling.": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetTask", mock.Anything, "t1").Once().Return(nil, errors.New("database is locked"))
				m.On("GetTask", mock.Anything, "t1").Once().Return(&model.Task{ID: "t1", Status: model.TaskStatusInProgress}, nil)
				m.On("ListLogs", mock.Anything, "t1", int64(0)).Once().Return(nil, errors.New("database is locked"))
				m.On("GetTask", mock.Anything, "t1").Once().Return(&model.Task{ID: "t1", Status: model.TaskStatusCompleted}, nil)
				m.On("ListLogs", mock.Anything, "t1", int64(0)).Once().Return(nil, nil)
			},
			expFrames: []stream.Frame{
				{Type: stream.FrameTypeConnected, TaskID: "t1"},
				{Type: stream.FrameTypeError, Message: "Failed to fetch status"},
				{Type: stream.FrameTypeError, Message: "Failed to fetch status"},
				{Type: stream.FrameTypeUpdate, Status: model.TaskStatusCompleted, Logs: []stream.Log{}},
				{Type: stream.FrameTypeComplete},
			},
		},

		"A missing task should end the stream with an error.": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetTask", mock.Anything, "t1").Once().Return(nil, fmt.Errorf("task: %w", model.ErrNotFound))
			},
			expFrames: []stream.Frame{
				{Type: stream.FrameTypeConnected, TaskID: "t1"},
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			mr := &storagemock.MockRepository{}
			test.mock(mr)

			svc, err := stream.NewService(stream.ServiceConfig{Repository: mr, PollInterval: time.Millisecond})
			require.NoError(err)

			var gotFrames []stream.Frame
			err = svc.Stream(context.Background(), "t1", func(f stream.Frame) error {
				gotFrames = append(gotFrames, f)
				return nil
			})

			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
			}
			assert.Equal(test.expFrames, gotFrames)
			mr.AssertExpectations(t)
		})
	}
}

func TestServiceStreamClientDisconnect(t *testing.T) {
	require := require.New(t)

	mr := &storagemock.MockRepository{}
	mr.On("GetTask", mock.Anything, "t1").Return(&model.Task{ID: "t1", Status: model.TaskStatusInProgress}, nil)
	mr.On("ListLogs", mock.Anything, "t1", mock.Anything).Return(nil, nil)

	svc, err := stream.NewService(stream.ServiceConfig{Repository: mr, PollInterval: time.Millisecond})
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gotTypes []stream.FrameType
	done := make(chan error, 1)
	go func() {
		done <- svc.Stream(ctx, "t1", func(f stream.Frame) error {
			gotTypes = append(gotTypes, f.Type)
			if f.Type == stream.FrameTypeUpdate {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after the client disconnected")
	}

	assert.Equal(t, []stream.FrameType{stream.FrameTypeConnected, stream.FrameTypeUpdate}, gotTypes)
}

func TestServiceStreamSendError(t *testing.T) {
	mr := &storagemock.MockRepository{}
	svc, err := stream.NewService(stream.ServiceConfig{Repository: mr})
	require.NoError(t, err)

	err = svc.Stream(context.Background(), "t1", func(stream.Frame) error { return errors.New("broken pipe") })
	assert.Error(t, err)
}

func TestServiceStreamWithExecutingTask(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)
	require.NoError(repo.CreateProject(ctx, model.Project{ID: "p1", Name: "web", GitHubRepo: "acme/web"}))
	require.NoError(repo.CreateTask(ctx, model.Task{ID: "t1", ProjectID: "p1", Prompt: "p", Status: model.TaskStatusPending, CreatedAt: t0}))

	svc, err := stream.NewService(stream.ServiceConfig{Repository: repo, PollInterval: time.Millisecond})
	require.NoError(err)

	// Progress the task on each update received.
	steps := []func() error{
		func() error {
			return repo.UpdateTaskStatus(ctx, "t1", storage.TaskStatusUpdate{
				From: []model.TaskStatus{model.TaskStatusPending},
				To:   model.TaskStatusInProgress,
				Log:  &storage.LogEntry{Message: "Starting execution: p", Kind: model.LogKindInfo},
			})
		},
		func() error {
			return repo.AppendLog(ctx, "t1", storage.LogEntry{Message: "Repository cloned successfully", Kind: model.LogKindSuccess})
		},
		func() error {
			return repo.UpdateTaskStatus(ctx, "t1", storage.TaskStatusUpdate{
				From:   []model.TaskStatus{model.TaskStatusInProgress},
				To:     model.TaskStatusCompleted,
				Result: &model.TaskResult{Summary: "s", Actions: 1},
				Log:    &storage.LogEntry{Message: "Task completed successfully!", Kind: model.LogKindSuccess},
			})
		},
	}

	var messages []string
	var statuses []model.TaskStatus
	var last stream.Frame
	err = svc.Stream(ctx, "t1", func(f stream.Frame) error {
		last = f
		if f.Type != stream.FrameTypeUpdate {
			return nil
		}
		statuses = append(statuses, f.Status)
		for _, l := range f.Logs {
			messages = append(messages, l.Message)
		}
		if len(steps) > 0 {
			step := steps[0]
			steps = steps[1:]
			return step()
		}
		return nil
	})
	require.NoError(err)

	assert.Equal(stream.FrameTypeComplete, last.Type)
	assert.Equal([]model.TaskStatus{model.TaskStatusPending, model.TaskStatusInProgress, model.TaskStatusInProgress, model.TaskStatusCompleted}, statuses)
	assert.Equal([]string{"Starting execution: p", "Repository cloned successfully", "Task completed successfully!"}, messages)
}
