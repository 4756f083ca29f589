package apply

import (
	"context"
	"fmt"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/storage"
)

// FileStore reads and writes workspace files.
type FileStore interface {
	ReadFile(path, rel string) (string, error)
	WriteFile(path, rel, content string) error
}

// ServiceConfig is the configuration for the apply service.
type ServiceConfig struct {
	Files      FileStore
	Repository storage.TaskRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Files == nil {
		return fmt.Errorf("file store is required")
	}

	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "apply.Service"})

	return nil
}

// Service applies plan actions to a workspace logging the progress on the task.
type Service struct {
	files  FileStore
	repo   storage.TaskRepository
	logger log.Logger
}

// NewService creates a new apply service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		files:  cfg.Files,
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Apply applies a single action. Action failures are returned as *model.ActionError,
// task log store failures are returned as they are.
//
// Modify actions require the file to exist and overwrite it with the action content.
func (s *Service) Apply(ctx context.Context, action model.Action, workspacePath, taskID string) error {
	err := s.log(ctx, taskID, model.LogKindInfo, fmt.Sprintf("%s: %s - %s", action.Type, action.File, action.Description))
	if err != nil {
		return err
	}

	if err := action.Validate(); err != nil {
		return &model.ActionError{Action: action, Err: err}
	}

	switch action.Type {
	case model.ActionTypeRead:
		if _, err := s.files.ReadFile(workspacePath, action.File); err != nil {
			return &model.ActionError{Action: action, Err: err}
		}
		return nil

	case model.ActionTypeWrite, model.ActionTypeCreate:
		if err := s.files.WriteFile(workspacePath, action.File, action.Content); err != nil {
			return &model.ActionError{Action: action, Err: err}
		}
		return s.log(ctx, taskID, model.LogKindSuccess, fmt.Sprintf("Created/updated: %s", action.File))

	case model.ActionTypeModify:
		if _, err := s.files.ReadFile(workspacePath, action.File); err != nil {
			return &model.ActionError{Action: action, Err: err}
		}
		if err := s.files.WriteFile(workspacePath, action.File, action.Content); err != nil {
			return &model.ActionError{Action: action, Err: err}
		}
		return s.log(ctx, taskID, model.LogKindSuccess, fmt.Sprintf("Modified: %s", action.File))
	}

	return &model.ActionError{Action: action, Err: fmt.Errorf("unknown action type: %w", model.ErrNotValid)}
}

func (s *Service) log(ctx context.Context, taskID string, kind model.LogKind, msg string) error {
	err := s.repo.AppendLog(ctx, taskID, storage.LogEntry{Message: msg, Kind: kind})
	if err != nil {
		return fmt.Errorf("could not append task log: %w", err)
	}
	return nil
}
