package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// Terminal returns true if the status doesn't allow any further transition.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// ParseTaskStatus parses a task status, case insensitive.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return status, nil
	}

	return "", fmt.Errorf("unknown task status %q: %w", s, ErrNotValid)
}

// Task is a prompt submitted against a project to be executed by the agent.
type Task struct {
	ID          string
	ProjectID   string
	Prompt      string
	Status      TaskStatus
	Result      *TaskResult
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// TaskResult is the summary stored when a task completes.
type TaskResult struct {
	Summary string `json:"summary"`
	Actions int    `json:"actions"`
}

// Marshal serializes the result to the persisted representation.
func (r TaskResult) Marshal() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("could not marshal task result: %w", err)
	}
	return string(data), nil
}

// UnmarshalTaskResult deserializes a persisted task result, empty data means no result.
func UnmarshalTaskResult(data string) (*TaskResult, error) {
	if data == "" {
		return nil, nil
	}

	var r TaskResult
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("could not unmarshal task result: %w", err)
	}
	return &r, nil
}

// LogKind is the severity/category of a task log entry.
type LogKind string

const (
	LogKindInfo    LogKind = "INFO"
	LogKindSuccess LogKind = "SUCCESS"
	LogKindWarning LogKind = "WARNING"
	LogKindError   LogKind = "ERROR"
)

// TaskLog is a single append-only progress entry of a task.
type TaskLog struct {
	// Sequence is monotonic across all logs, used to order and page.
	Sequence  int64
	TaskID    string
	Message   string
	Kind      LogKind
	Timestamp time.Time
}

// TaskFilter filters task listings.
type TaskFilter struct {
	ProjectID string
	Status    *TaskStatus
	Limit     int
}
