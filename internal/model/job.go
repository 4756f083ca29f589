package model

import "time"

// JobState is the queue state of a job.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Job is the queue envelope that requests the execution of a task.
type Job struct {
	ID          string
	TaskID      string
	Attempt     int // 1 based delivery number.
	MaxAttempts int
	State       JobState
	RunAt       time.Time
	LastError   string
	CreatedAt   time.Time
	FinishedAt  *time.Time
}

// QueueStats are the job counts of a queue by state.
type QueueStats struct {
	Waiting   int
	Active    int
	Completed int
	Failed    int
}
