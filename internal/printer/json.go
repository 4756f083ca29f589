package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/aihq/internal/model"
)

// JSONPrinter prints the app information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// taskListItem represents a task in the list output (subset of fields).
type taskListItem struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Status    string    `json:"status"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// taskOutput represents the full task output.
type taskOutput struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id"`
	Status      string            `json:"status"`
	Prompt      string            `json:"prompt"`
	Result      *model.TaskResult `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at"`
	Logs        []logOutput       `json:"logs"`
}

type logOutput struct {
	Sequence  int64     `json:"sequence"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type projectOutput struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	GitHubRepo      string    `json:"github_repo"`
	Branch          string    `json:"branch"`
	VercelProjectID string    `json:"vercel_project_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type queueStatsOutput struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintTaskList prints tasks in JSON format with a subset of fields.
func (j *JSONPrinter) PrintTaskList(tasks []model.Task) error {
	items := make([]taskListItem, len(tasks))
	for i, t := range tasks {
		items[i] = taskListItem{
			ID:        t.ID,
			ProjectID: t.ProjectID,
			Status:    string(t.Status),
			Prompt:    t.Prompt,
			CreatedAt: t.CreatedAt.UTC(),
		}
	}

	return j.encode(items)
}

// PrintTask prints the task with its logs in JSON format.
func (j *JSONPrinter) PrintTask(task model.Task, logs []model.TaskLog) error {
	output := taskOutput{
		ID:          task.ID,
		ProjectID:   task.ProjectID,
		Status:      string(task.Status),
		Prompt:      task.Prompt,
		Result:      task.Result,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt.UTC(),
		StartedAt:   utcPtr(task.StartedAt),
		CompletedAt: utcPtr(task.CompletedAt),
		Logs:        toLogOutputs(logs),
	}

	return j.encode(output)
}

// PrintTaskLogs prints task logs in JSON format, one object per line.
func (j *JSONPrinter) PrintTaskLogs(logs []model.TaskLog) error {
	enc := json.NewEncoder(j.writer)
	for _, l := range toLogOutputs(logs) {
		if err := enc.Encode(l); err != nil {
			return err
		}
	}
	return nil
}

// PrintProjectList prints projects in JSON format.
func (j *JSONPrinter) PrintProjectList(projects []model.Project) error {
	items := make([]projectOutput, len(projects))
	for i, p := range projects {
		items[i] = projectOutput{
			ID:              p.ID,
			Name:            p.Name,
			Description:     p.Description,
			GitHubRepo:      p.GitHubRepo,
			Branch:          p.RepoBranch(),
			VercelProjectID: p.VercelProjectID,
			CreatedAt:       p.CreatedAt.UTC(),
		}
	}

	return j.encode(items)
}

// PrintQueueStats prints the queue job counts in JSON format.
func (j *JSONPrinter) PrintQueueStats(stats model.QueueStats) error {
	return j.encode(queueStatsOutput{
		Waiting:   stats.Waiting,
		Active:    stats.Active,
		Completed: stats.Completed,
		Failed:    stats.Failed,
	})
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func toLogOutputs(logs []model.TaskLog) []logOutput {
	res := make([]logOutput, 0, len(logs))
	for _, l := range logs {
		res = append(res, logOutput{
			Sequence:  l.Sequence,
			Kind:      string(l.Kind),
			Message:   l.Message,
			Timestamp: l.Timestamp.UTC(),
		})
	}
	return res
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
