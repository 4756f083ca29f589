package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/slok/aihq/internal/app/stream"
	"github.com/slok/aihq/internal/app/submit"
	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20
	defaultListLimit   = 50
)

// TaskSubmitter creates tasks and enqueues their execution.
type TaskSubmitter interface {
	Create(ctx context.Context, req submit.CreateRequest) (*model.Task, error)
	Execute(ctx context.Context, taskID string) (jobID string, err error)
}

// StatusStreamer streams the status of a task.
type StatusStreamer interface {
	Stream(ctx context.Context, taskID string, send stream.SendFunc) error
}

// QueueStatsGetter returns the job queue stats.
type QueueStatsGetter interface {
	Stats(ctx context.Context) (model.QueueStats, error)
}

// HandlerConfig is the configuration of the API HTTP handler.
type HandlerConfig struct {
	Repository storage.Repository
	Submitter  TaskSubmitter
	Streamer   StatusStreamer
	Queue      QueueStatsGetter
	// MetricsHandler is served on `/metrics` when set.
	MetricsHandler http.Handler
	Logger         log.Logger
}

func (c *HandlerConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Submitter == nil {
		return fmt.Errorf("task submitter is required")
	}

	if c.Streamer == nil {
		return fmt.Errorf("status streamer is required")
	}

	if c.Queue == nil {
		return fmt.Errorf("queue is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Handler"})

	return nil
}

type handler struct {
	repo      storage.Repository
	submitter TaskSubmitter
	streamer  StatusStreamer
	queue     QueueStatsGetter
	logger    log.Logger
}

// NewHandler returns the HTTP API handler.
//
//	GET  /health
//	GET  /api/projects
//	GET  /api/projects/{id}
//	GET  /api/tasks
//	POST /api/tasks
//	GET  /api/tasks/{id}
//	POST /api/tasks/{id}/execute
//	GET  /api/tasks/{id}/status
//	GET  /api/queue
//	GET  /metrics
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := handler{
		repo:      cfg.Repository,
		submitter: cfg.Submitter,
		streamer:  cfg.Streamer,
		queue:     cfg.Queue,
		logger:    cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/projects", h.handleListProjects)
	mux.HandleFunc("GET /api/projects/{id}", h.handleGetProject)
	mux.HandleFunc("GET /api/tasks", h.handleListTasks)
	mux.HandleFunc("POST /api/tasks", h.handleCreateTask)
	mux.HandleFunc("GET /api/tasks/{id}", h.handleGetTask)
	mux.HandleFunc("POST /api/tasks/{id}/execute", h.handleExecuteTask)
	mux.HandleFunc("GET /api/tasks/{id}/status", h.handleTaskStatus)
	mux.HandleFunc("GET /api/queue", h.handleQueueStats)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	return mux, nil
}

func (h handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.repo.ListProjects(r.Context())
	if err != nil {
		h.writeError(w, "Failed to fetch projects", err)
		return
	}

	res := make([]projectJSON, 0, len(projects))
	for _, p := range projects {
		res = append(res, toProjectJSON(p))
	}
	writeJSON(w, http.StatusOK, res)
}

func (h handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "Project not found", err)
		return
	}

	writeJSON(w, http.StatusOK, toProjectJSON(*p))
}

func (h handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.TaskFilter{
		ProjectID: q.Get("projectId"),
		Limit:     defaultListLimit,
	}
	if s := q.Get("status"); s != "" {
		status, err := model.ParseTaskStatus(s)
		if err != nil {
			h.writeError(w, "Invalid input", err)
			return
		}
		filter.Status = &status
	}
	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit <= 0 {
			h.writeError(w, "Invalid input", fmt.Errorf("invalid limit %q: %w", l, model.ErrNotValid))
			return
		}
		filter.Limit = min(limit, defaultListLimit)
	}

	tasks, err := h.repo.ListTasks(r.Context(), filter)
	if err != nil {
		h.writeError(w, "Failed to fetch tasks", err)
		return
	}

	res := make([]taskJSON, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, toTaskJSON(t, nil))
	}
	writeJSON(w, http.StatusOK, res)
}

type createTaskRequest struct {
	ProjectID string `json:"projectId"`
	Prompt    string `json:"prompt"`
}

func (h handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid input", fmt.Errorf("invalid JSON body: %s: %w", err, model.ErrNotValid))
		return
	}

	task, err := h.submitter.Create(r.Context(), submit.CreateRequest{ProjectID: req.ProjectID, Prompt: req.Prompt})
	if err != nil {
		h.writeError(w, "Failed to create task", err)
		return
	}

	writeJSON(w, http.StatusCreated, toTaskJSON(*task, []model.TaskLog{}))
}

func (h handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := h.repo.GetTask(r.Context(), id)
	if err != nil {
		h.writeError(w, "Task not found", err)
		return
	}

	logs, err := h.repo.ListLogs(r.Context(), id, 0)
	if err != nil {
		h.writeError(w, "Failed to fetch task", err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskJSON(*task, logs))
}

type executeTaskResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"taskId"`
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

func (h handler) handleExecuteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	jobID, err := h.submitter.Execute(r.Context(), id)
	if err != nil {
		h.writeError(w, "Failed to execute task", err)
		return
	}

	writeJSON(w, http.StatusOK, executeTaskResponse{
		Success: true,
		TaskID:  id,
		JobID:   jobID,
		Message: "Task added to queue",
	})
}

func (h handler) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.repo.GetTask(r.Context(), id); err != nil {
		h.writeError(w, "Task not found", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	err := h.streamer.Stream(r.Context(), id, func(f stream.Frame) error {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("could not marshal frame: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		h.logger.Warningf("Task %s status stream ended: %s", id, err)
	}
}

type queueStatsResponse struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func (h handler) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.writeError(w, "Failed to fetch queue stats", err)
		return
	}

	writeJSON(w, http.StatusOK, queueStatsResponse{
		Waiting:   stats.Waiting,
		Active:    stats.Active,
		Completed: stats.Completed,
		Failed:    stats.Failed,
	})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (h handler) writeError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotValid):
		status = http.StatusBadRequest
		msg = "Invalid input"
	case errors.Is(err, model.ErrTaskNotPending):
		status = http.StatusBadRequest
		msg = "Task is not in PENDING status"
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyExists):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Errorf("%s: %s", msg, err)
	}

	writeJSON(w, status, errorResponse{Error: msg, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type projectJSON struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	GitHubRepo      string    `json:"githubRepo"`
	Branch          string    `json:"branch"`
	VercelProjectID string    `json:"vercelProjectId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toProjectJSON(p model.Project) projectJSON {
	return projectJSON{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		GitHubRepo:      p.GitHubRepo,
		Branch:          p.RepoBranch(),
		VercelProjectID: p.VercelProjectID,
		CreatedAt:       p.CreatedAt,
	}
}

type taskJSON struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"projectId"`
	Prompt      string            `json:"prompt"`
	Status      model.TaskStatus  `json:"status"`
	Result      *model.TaskResult `json:"result"`
	Error       *string           `json:"error"`
	CreatedAt   time.Time         `json:"createdAt"`
	StartedAt   *time.Time        `json:"startedAt"`
	CompletedAt *time.Time        `json:"completedAt"`
	Logs        []taskLogJSON     `json:"logs,omitempty"`
}

type taskLogJSON struct {
	Sequence  int64         `json:"sequence"`
	Message   string        `json:"message"`
	Kind      model.LogKind `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
}

func toTaskJSON(t model.Task, logs []model.TaskLog) taskJSON {
	res := taskJSON{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Prompt:      t.Prompt,
		Status:      t.Status,
		Result:      t.Result,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
	if t.Error != "" {
		res.Error = &t.Error
	}

	for _, l := range logs {
		res.Logs = append(res.Logs, taskLogJSON{Sequence: l.Sequence, Message: l.Message, Kind: l.Kind, Timestamp: l.Timestamp})
	}

	return res
}
