package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/queue"
)

// QueueConfig is the configuration for the SQLite job queue.
type QueueConfig struct {
	// DB is the task store database, the jobs table is created by its migrations.
	DB          *sql.DB
	MaxAttempts int
	// LeaseDuration is how long a delivered job is owned by a worker, after that
	// it's delivered again.
	LeaseDuration time.Duration
	PollInterval  time.Duration
	Logger        log.Logger
}

func (c *QueueConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}

	if c.MaxAttempts == 0 {
		c.MaxAttempts = queue.DefaultMaxAttempts
	}

	if c.LeaseDuration == 0 {
		c.LeaseDuration = 10 * time.Minute
	}

	if c.PollInterval == 0 {
		c.PollInterval = 500 * time.Millisecond
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "queue.SQLite"})

	return nil
}

// Queue is a SQLite implementation of queue.Queue.
type Queue struct {
	db            *sql.DB
	maxAttempts   int
	leaseDuration time.Duration
	pollInterval  time.Duration
	logger        log.Logger
}

// NewQueue creates a new SQLite job queue.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Queue{
		db:            cfg.DB,
		maxAttempts:   cfg.MaxAttempts,
		leaseDuration: cfg.LeaseDuration,
		pollInterval:  cfg.PollInterval,
		logger:        cfg.Logger,
	}, nil
}

const jobColumns = `id, task_id, state, attempts, max_attempts, run_at, last_error, created_at, finished_at`

// Enqueue adds a new job for the task.
func (q *Queue) Enqueue(ctx context.Context, taskID string) (string, error) {
	if taskID == "" {
		return "", fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}

	id := ulid.Make().String()
	now := toUnix(time.Now().UTC())
	query := `
		INSERT INTO jobs (id, task_id, state, attempts, max_attempts, run_at, created_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)
	`
	if _, err := q.db.ExecContext(ctx, query, id, taskID, model.JobStateWaiting, q.maxAttempts, now, now); err != nil {
		return "", fmt.Errorf("could not insert job: %w", err)
	}

	q.logger.Debugf("Enqueued job %s for task %s", id, taskID)
	return id, nil
}

// Dequeue blocks until a job is ready, polling the jobs table.
func (q *Queue) Dequeue(ctx context.Context) (*model.Job, error) {
	for {
		job, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// claim leases the next ready job: a waiting job whose run time arrived, or an
// active job whose lease expired.
func (q *Queue) claim(ctx context.Context) (*model.Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	query := `
		SELECT id FROM jobs
		WHERE (state = ? AND run_at <= ?) OR (state = ? AND locked_until <= ?)
		ORDER BY run_at ASC, created_at ASC
		LIMIT 1
	`
	var id string
	err = tx.QueryRowContext(ctx, query, model.JobStateWaiting, toUnix(now), model.JobStateActive, toUnix(now)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not query next job: %w", err)
	}

	update := `UPDATE jobs SET state = ?, attempts = attempts + 1, locked_until = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, update, model.JobStateActive, toUnix(now.Add(q.leaseDuration)), id); err != nil {
		return nil, fmt.Errorf("could not lease job: %w", err)
	}

	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("could not query job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("could not commit transaction: %w", err)
	}

	q.logger.Debugf("Delivered job %s (attempt %d/%d)", job.ID, job.Attempt, job.MaxAttempts)
	return &job, nil
}

// Complete marks the job as completed.
func (q *Queue) Complete(ctx context.Context, job model.Job) error {
	query := `UPDATE jobs SET state = ?, locked_until = NULL, finished_at = ? WHERE id = ?`
	return q.update(ctx, job.ID, query, model.JobStateCompleted, toUnix(time.Now().UTC()), job.ID)
}

// Retry makes the job ready again after the delay.
func (q *Queue) Retry(ctx context.Context, job model.Job, delay time.Duration, cause error) error {
	runAt := time.Now().UTC().Add(delay)
	query := `UPDATE jobs SET state = ?, locked_until = NULL, run_at = ?, last_error = ? WHERE id = ?`
	return q.update(ctx, job.ID, query, model.JobStateWaiting, toUnix(runAt), errorMessage(cause), job.ID)
}

// DeadLetter marks the job as failed.
func (q *Queue) DeadLetter(ctx context.Context, job model.Job, cause error) error {
	query := `UPDATE jobs SET state = ?, locked_until = NULL, last_error = ?, finished_at = ? WHERE id = ?`
	return q.update(ctx, job.ID, query, model.JobStateFailed, errorMessage(cause), toUnix(time.Now().UTC()), job.ID)
}

func (q *Queue) update(ctx context.Context, id string, query string, args ...any) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("could not update job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}

	return nil
}

// GetJob returns a job by ID.
func (q *Queue) GetJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := scanJob(q.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query job: %w", err)
	}

	return &job, nil
}

// Stats returns the number of jobs by state.
func (q *Queue) Stats(ctx context.Context) (model.QueueStats, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return model.QueueStats{}, fmt.Errorf("could not query job stats: %w", err)
	}
	defer rows.Close()

	var stats model.QueueStats
	for rows.Next() {
		var state model.JobState
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return model.QueueStats{}, fmt.Errorf("could not scan row: %w", err)
		}

		switch state {
		case model.JobStateWaiting:
			stats.Waiting = count
		case model.JobStateActive:
			stats.Active = count
		case model.JobStateCompleted:
			stats.Completed = count
		case model.JobStateFailed:
			stats.Failed = count
		}
	}

	if err := rows.Err(); err != nil {
		return model.QueueStats{}, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}

// Prune removes the finished jobs out of the retention policy.
func (q *Queue) Prune(ctx context.Context, r queue.Retention) (int, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	type deletion struct {
		query string
		args  []any
	}
	deletions := []deletion{
		{
			query: `DELETE FROM jobs WHERE state = ? AND finished_at < ?`,
			args:  []any{model.JobStateCompleted, toUnix(now.Add(-r.CompletedMaxAge))},
		},
		{
			query: `DELETE FROM jobs WHERE state = ? AND finished_at < ?`,
			args:  []any{model.JobStateFailed, toUnix(now.Add(-r.FailedMaxAge))},
		},
	}
	if r.CompletedMaxCount > 0 {
		deletions = append(deletions, deletion{
			query: `
				DELETE FROM jobs WHERE state = ? AND id NOT IN (
					SELECT id FROM jobs WHERE state = ? ORDER BY finished_at DESC, id DESC LIMIT ?
				)
			`,
			args: []any{model.JobStateCompleted, model.JobStateCompleted, r.CompletedMaxCount},
		})
	}

	removed := 0
	for _, d := range deletions {
		res, err := tx.ExecContext(ctx, d.query, d.args...)
		if err != nil {
			return 0, fmt.Errorf("could not delete jobs: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("could not get rows affected: %w", err)
		}
		removed += int(rows)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit transaction: %w", err)
	}

	return removed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (model.Job, error) {
	var j model.Job
	var runAt, createdAt int64
	var finishedAt sql.NullInt64
	err := s.Scan(
		&j.ID,
		&j.TaskID,
		&j.State,
		&j.Attempt,
		&j.MaxAttempts,
		&runAt,
		&j.LastError,
		&createdAt,
		&finishedAt,
	)
	if err != nil {
		return model.Job{}, err
	}

	j.RunAt = fromUnix(runAt)
	j.CreatedAt = fromUnix(createdAt)
	if finishedAt.Valid {
		t := fromUnix(finishedAt.Int64)
		j.FinishedAt = &t
	}

	return j, nil
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func toUnix(t time.Time) int64 { return t.UnixMilli() }

func fromUnix(unix int64) time.Time { return time.UnixMilli(unix).UTC() }

var (
	_ queue.Queue  = &Queue{}
	_ queue.Pruner = &Queue{}
)
