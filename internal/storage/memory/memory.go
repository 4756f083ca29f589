package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	projects map[string]model.Project
	tasks    map[string]model.Task
	logs     map[string][]model.TaskLog
	logSeq   int64
	mu       sync.RWMutex
	logger   log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		projects: make(map[string]model.Project),
		tasks:    make(map[string]model.Task),
		logs:     make(map[string][]model.TaskLog),
		logger:   cfg.Logger,
	}, nil
}

// CreateProject creates a new project in the repository.
func (r *Repository) CreateProject(ctx context.Context, p model.Project) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[p.ID]; ok {
		return fmt.Errorf("project with id %s: %w", p.ID, model.ErrAlreadyExists)
	}
	for _, existing := range r.projects {
		if existing.Name == p.Name {
			return fmt.Errorf("project with name %s: %w", p.Name, model.ErrAlreadyExists)
		}
	}

	p.Branch = p.RepoBranch()
	r.projects[p.ID] = p
	r.logger.Debugf("Created project in repository: %s", p.ID)

	return nil
}

// GetProject retrieves a project by ID.
func (r *Repository) GetProject(ctx context.Context, id string) (*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}

	return &p, nil
}

// GetProjectByName retrieves a project by name.
func (r *Repository) GetProjectByName(ctx context.Context, name string) (*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.projects {
		if p.Name == name {
			return &p, nil
		}
	}

	return nil, fmt.Errorf("project with name %s: %w", name, model.ErrNotFound)
}

// ListProjects returns all projects sorted by name.
func (r *Repository) ListProjects(ctx context.Context) ([]model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	projects := make([]model.Project, 0, len(r.projects))
	for _, p := range r.projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })

	return projects, nil
}

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	if t.ID == "" || t.ProjectID == "" {
		return fmt.Errorf("task id and project id are required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[t.ProjectID]; !ok {
		return fmt.Errorf("project %s: %w", t.ProjectID, model.ErrNotFound)
	}
	if _, ok := r.tasks[t.ID]; ok {
		return fmt.Errorf("task with id %s: %w", t.ID, model.ErrAlreadyExists)
	}

	r.tasks[t.ID] = copyTask(t)
	r.logger.Debugf("Created task in repository: %s", t.ID)

	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	t = copyTask(t)
	return &t, nil
}

// ListTasks returns the tasks matching the filter, newest first.
func (r *Repository) ListTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := []model.Task{}
	for _, t := range r.tasks {
		if filter.ProjectID != "" && t.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		tasks = append(tasks, copyTask(t))
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return strings.Compare(tasks[i].ID, tasks[j].ID) > 0
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}

	return tasks, nil
}

// UpdateTaskStatus transitions a task status, optionally appending a log atomically.
func (r *Repository) UpdateTaskStatus(ctx context.Context, id string, u storage.TaskStatusUpdate) error {
	if len(u.From) == 0 {
		return fmt.Errorf("at least one source status is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	if !slices.Contains(u.From, t.Status) {
		return fmt.Errorf("task %s is %s, can't transition to %s: %w", id, t.Status, u.To, model.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	t.Status = u.To
	if u.To == model.TaskStatusInProgress {
		t.StartedAt = &now
	}
	if u.To.Terminal() {
		t.CompletedAt = &now
	}
	if u.Result != nil {
		res := *u.Result
		t.Result = &res
	}
	if u.Error != "" {
		t.Error = u.Error
	}
	r.tasks[id] = t

	if u.Log != nil {
		r.appendLog(id, *u.Log)
	}

	return nil
}

// AppendLog appends a log to a task.
func (r *Repository) AppendLog(ctx context.Context, taskID string, e storage.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[taskID]; !ok {
		return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}
	r.appendLog(taskID, e)

	return nil
}

// ListLogs returns the task logs after a sequence in insertion order.
func (r *Repository) ListLogs(ctx context.Context, taskID string, afterSequence int64) ([]model.TaskLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	logs := []model.TaskLog{}
	for _, l := range r.logs[taskID] {
		if l.Sequence > afterSequence {
			logs = append(logs, l)
		}
	}

	return logs, nil
}

func (r *Repository) appendLog(taskID string, e storage.LogEntry) {
	ts := time.Now().UTC()
	if logs := r.logs[taskID]; len(logs) > 0 {
		if last := logs[len(logs)-1].Timestamp; ts.Before(last) {
			ts = last
		}
	}

	r.logSeq++
	r.logs[taskID] = append(r.logs[taskID], model.TaskLog{
		Sequence:  r.logSeq,
		TaskID:    taskID,
		Message:   e.Message,
		Kind:      e.Kind,
		Timestamp: ts,
	})
}

func copyTask(t model.Task) model.Task {
	if t.Result != nil {
		res := *t.Result
		t.Result = &res
	}
	return t
}
