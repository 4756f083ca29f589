package storage

import (
	"context"

	"github.com/slok/aihq/internal/model"
)

// ProjectRepository is the interface for project persistence.
type ProjectRepository interface {
	CreateProject(ctx context.Context, p model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	GetProjectByName(ctx context.Context, name string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
}

// LogEntry is a task log entry to be appended.
type LogEntry struct {
	Message string
	Kind    model.LogKind
}

// TaskStatusUpdate describes a task status transition.
type TaskStatusUpdate struct {
	// From are the statuses the task must be in for the transition to happen.
	From []model.TaskStatus
	To   model.TaskStatus
	// Result and Error are stored with the transition when set.
	Result *model.TaskResult
	Error  string
	// Log is appended in the same transaction as the status change when set.
	Log *LogEntry
}

// TaskRepository is the interface for task and task log persistence.
//
// Status transitions are compare-and-set: if the task is not in one of the
// allowed `From` statuses the update returns model.ErrInvalidTransition and
// nothing is changed.
type TaskRepository interface {
	CreateTask(ctx context.Context, t model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, u TaskStatusUpdate) error

	// AppendLog appends a log to the task, logs are never modified after insertion.
	AppendLog(ctx context.Context, taskID string, e LogEntry) error
	// ListLogs returns the task logs with a sequence greater than afterSequence,
	// in ascending order.
	ListLogs(ctx context.Context, taskID string, afterSequence int64) ([]model.TaskLog, error)
}

// Repository is the full task store.
type Repository interface {
	ProjectRepository
	TaskRepository
}
