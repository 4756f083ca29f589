package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/storage"
)

// DefaultPollInterval is the interval used to check the task state.
const DefaultPollInterval = 2 * time.Second

// FrameType is the kind of a stream frame.
type FrameType string

const (
	FrameTypeConnected FrameType = "connected"
	FrameTypeUpdate    FrameType = "update"
	FrameTypeComplete  FrameType = "complete"
	FrameTypeError     FrameType = "error"
)

// Frame is a single message of the task status stream.
type Frame struct {
	Type    FrameType         `json:"type"`
	TaskID  string            `json:"taskId,omitempty"`
	Status  model.TaskStatus  `json:"status,omitempty"`
	Logs    []Log             `json:"logs,omitempty"`
	Result  *model.TaskResult `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message,omitempty"`
}

// Log is a task log sent on update frames.
type Log struct {
	Sequence  int64         `json:"sequence"`
	Message   string        `json:"message"`
	Kind      model.LogKind `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
}

// SendFunc sends a frame to the client.
type SendFunc func(Frame) error

// ServiceConfig is the configuration of the status stream service.
type ServiceConfig struct {
	Repository   storage.TaskRepository
	PollInterval time.Duration
	Logger       log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "stream.Service"})

	return nil
}

// Service streams task status changes by polling the task store.
type Service struct {
	repo     storage.TaskRepository
	interval time.Duration
	logger   log.Logger
}

// NewService returns a new status stream service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:     cfg.Repository,
		interval: cfg.PollInterval,
		logger:   cfg.Logger,
	}, nil
}

// Stream sends the task status frames until the task reaches a terminal
// status or the context is cancelled. Cancelling the context doesn't affect
// the task execution.
func (s *Service) Stream(ctx context.Context, taskID string, send SendFunc) error {
	logger := s.logger.WithValues(log.Kv{"task-id": taskID})

	if err := send(Frame{Type: FrameTypeConnected, TaskID: taskID}); err != nil {
		return fmt.Errorf("could not send frame: %w", err)
	}

	st := &state{}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		done, err := s.poll(ctx, taskID, st, send)
		if err != nil {
			return err
		}
		if done {
			logger.Debugf("Task reached terminal status, stream closed")
			return nil
		}

		select {
		case <-ctx.Done():
			logger.Debugf("Stream client disconnected")
			return nil
		case <-ticker.C:
		}
	}
}

// state is what has already been sent to the client.
type state struct {
	sent    bool
	status  model.TaskStatus
	result  *model.TaskResult
	errMsg  string
	lastSeq int64
}

func (s *Service) poll(ctx context.Context, taskID string, st *state, send SendFunc) (done bool, err error) {
	task, logs, err := s.read(ctx, taskID, st.lastSeq)
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		if errors.Is(err, model.ErrNotFound) {
			return true, err
		}

		s.logger.Errorf("Error polling task %s status: %s", taskID, err)
		if err := send(Frame{Type: FrameTypeError, Message: "Failed to fetch status"}); err != nil {
			return true, fmt.Errorf("could not send frame: %w", err)
		}
		return false, nil
	}

	if st.changed(task, logs) {
		f := Frame{
			Type:   FrameTypeUpdate,
			Status: task.Status,
			Logs:   make([]Log, 0, len(logs)),
			Result: task.Result,
			Error:  task.Error,
		}
		for _, l := range logs {
			f.Logs = append(f.Logs, Log{Sequence: l.Sequence, Message: l.Message, Kind: l.Kind, Timestamp: l.Timestamp})
		}
		if err := send(f); err != nil {
			return true, fmt.Errorf("could not send frame: %w", err)
		}

		st.sent = true
		st.status = task.Status
		st.result = task.Result
		st.errMsg = task.Error
		if len(logs) > 0 {
			st.lastSeq = logs[len(logs)-1].Sequence
		}
	}

	if !task.Status.Terminal() {
		return false, nil
	}

	if err := send(Frame{Type: FrameTypeComplete}); err != nil {
		return true, fmt.Errorf("could not send frame: %w", err)
	}

	return true, nil
}

func (s *Service) read(ctx context.Context, taskID string, afterSeq int64) (*model.Task, []model.TaskLog, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("could not get task: %w", err)
	}

	logs, err := s.repo.ListLogs(ctx, taskID, afterSeq)
	if err != nil {
		return nil, nil, fmt.Errorf("could not list task logs: %w", err)
	}

	return task, logs, nil
}

func (st *state) changed(task *model.Task, logs []model.TaskLog) bool {
	switch {
	case !st.sent, len(logs) > 0:
		return true
	case st.status != task.Status, st.errMsg != task.Error:
		return true
	case (st.result == nil) != (task.Result == nil):
		return true
	case st.result != nil && *st.result != *task.Result:
		return true
	}
	return false
}
