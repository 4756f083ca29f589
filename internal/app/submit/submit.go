package submit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/queue"
	"github.com/slok/aihq/internal/storage"
)

// ServiceConfig is the configuration for the task submission service.
type ServiceConfig struct {
	Repository storage.Repository
	Queue      queue.Queue
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Queue == nil {
		return fmt.Errorf("queue is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "submit.Service"})

	return nil
}

// Service creates tasks and enqueues their execution.
type Service struct {
	repo   storage.Repository
	queue  queue.Queue
	logger log.Logger
}

// NewService creates a new task submission service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		queue:  cfg.Queue,
		logger: cfg.Logger,
	}, nil
}

// CreateRequest represents the task creation parameters.
type CreateRequest struct {
	ProjectID string
	Prompt    string
}

// Create creates a PENDING task for a project.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Task, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("prompt is required: %w", model.ErrNotValid)
	}
	if req.ProjectID == "" {
		return nil, fmt.Errorf("project id is required: %w", model.ErrNotValid)
	}

	if _, err := s.repo.GetProject(ctx, req.ProjectID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("project not found: %s: %w", req.ProjectID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get project: %w", err)
	}

	task := model.Task{
		ID:        ulid.Make().String(),
		ProjectID: req.ProjectID,
		Prompt:    prompt,
		Status:    model.TaskStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("could not create task: %w", err)
	}

	s.logger.Infof("Task %s created for project %s", task.ID, task.ProjectID)

	return &task, nil
}

// Execute enqueues the execution of a PENDING task and returns the job ID.
func (s *Service) Execute(ctx context.Context, taskID string) (string, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", fmt.Errorf("task not found: %s: %w", taskID, model.ErrNotFound)
		}
		return "", fmt.Errorf("could not get task: %w", err)
	}

	if task.Status != model.TaskStatusPending {
		return "", fmt.Errorf("task %s is %s: %w", taskID, task.Status, model.ErrTaskNotPending)
	}

	jobID, err := s.queue.Enqueue(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("could not enqueue task: %w", err)
	}

	s.logger.Infof("Task %s added to queue as job %s", taskID, jobID)

	return jobID, nil
}
