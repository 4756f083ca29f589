package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/storage"
)

const taskColumns = `id, project_id, prompt, status, result, error, created_at, started_at, completed_at`

// CreateTask creates a new task.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	if t.ID == "" || t.ProjectID == "" {
		return fmt.Errorf("task id and project id are required: %w", model.ErrNotValid)
	}

	result := ""
	if t.Result != nil {
		var err error
		result, err = t.Result.Marshal()
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.ProjectID,
		t.Prompt,
		t.Status,
		result,
		t.Error,
		toUnix(t.CreatedAt),
		nullUnix(t.StartedAt),
		nullUnix(t.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: tasks.") {
			return fmt.Errorf("task already exists: %w", model.ErrAlreadyExists)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("project %s: %w", t.ProjectID, model.ErrNotFound)
		}
		return fmt.Errorf("could not insert task: %w", err)
	}

	r.logger.Debugf("Created task in repository: %s", t.ID)
	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	t, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query task: %w", err)
	}

	return &t, nil
}

// ListTasks returns the tasks matching the filter, newest first.
func (r *Repository) ListTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	var (
		where []string
		args  []any
	)
	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tasks, nil
}

// UpdateTaskStatus transitions a task status, optionally appending a log in the same transaction.
func (r *Repository) UpdateTaskStatus(ctx context.Context, id string, u storage.TaskStatusUpdate) error {
	if len(u.From) == 0 {
		return fmt.Errorf("at least one source status is required: %w", model.ErrNotValid)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current model.TaskStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return fmt.Errorf("could not query task status: %w", err)
	}

	if !slices.Contains(u.From, current) {
		return fmt.Errorf("task %s is %s, can't transition to %s: %w", id, current, u.To, model.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	sets := []string{"status = ?"}
	args := []any{u.To}
	if u.To == model.TaskStatusInProgress {
		sets = append(sets, "started_at = ?")
		args = append(args, toUnix(now))
	}
	if u.To.Terminal() {
		sets = append(sets, "completed_at = ?")
		args = append(args, toUnix(now))
	}
	if u.Result != nil {
		result, err := u.Result.Marshal()
		if err != nil {
			return err
		}
		sets = append(sets, "result = ?")
		args = append(args, result)
	}
	if u.Error != "" {
		sets = append(sets, "error = ?")
		args = append(args, u.Error)
	}
	args = append(args, id, current)

	// The status condition keeps the update a compare-and-set.
	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s changed concurrently: %w", id, model.ErrInvalidTransition)
	}

	if u.Log != nil {
		if err := appendLog(ctx, tx, id, *u.Log); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Task %s transitioned %s -> %s", id, current, u.To)
	return nil
}

// AppendLog appends a log entry to a task.
func (r *Repository) AppendLog(ctx context.Context, taskID string, e storage.LogEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := appendLog(ctx, tx, taskID, e); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// ListLogs returns the logs of a task after a sequence, in insertion order.
func (r *Repository) ListLogs(ctx context.Context, taskID string, afterSequence int64) ([]model.TaskLog, error) {
	query := `
		SELECT sequence, task_id, message, kind, timestamp
		FROM task_logs
		WHERE task_id = ? AND sequence > ?
		ORDER BY sequence ASC
	`
	rows, err := r.db.QueryContext(ctx, query, taskID, afterSequence)
	if err != nil {
		return nil, fmt.Errorf("could not query task logs: %w", err)
	}
	defer rows.Close()

	var logs []model.TaskLog
	for rows.Next() {
		var l model.TaskLog
		var ts int64
		if err := rows.Scan(&l.Sequence, &l.TaskID, &l.Message, &l.Kind, &ts); err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		l.Timestamp = timeFromUnix(ts)
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return logs, nil
}

// appendLog inserts a log never going back in time from the last task log, this way the
// insertion order and the timestamp order are always the same.
func appendLog(ctx context.Context, tx *sql.Tx, taskID string, e storage.LogEntry) error {
	var last int64
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(timestamp), 0) FROM task_logs WHERE task_id = ?`, taskID).Scan(&last)
	if err != nil {
		return fmt.Errorf("could not get last log timestamp: %w", err)
	}

	ts := max(toUnix(time.Now().UTC()), last)
	query := `INSERT INTO task_logs (task_id, message, kind, timestamp) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, taskID, e.Message, e.Kind, ts); err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
		}
		return fmt.Errorf("could not insert task log: %w", err)
	}

	return nil
}

func scanTask(s scanner) (model.Task, error) {
	var t model.Task
	var result string
	var createdAt int64
	var startedAt, completedAt sql.NullInt64
	err := s.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Prompt,
		&t.Status,
		&result,
		&t.Error,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return model.Task{}, err
	}

	t.Result, err = model.UnmarshalTaskResult(result)
	if err != nil {
		return model.Task{}, err
	}
	t.CreatedAt = timeFromUnix(createdAt)
	t.StartedAt = nullTimeFromUnix(startedAt)
	t.CompletedAt = nullTimeFromUnix(completedAt)

	return t, nil
}

func nullUnix(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := toUnix(*t)
	return &u
}
