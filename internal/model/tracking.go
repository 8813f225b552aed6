package model

import "time"

// Job statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// JobSummary is a row of the job list
type JobSummary struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Job is a stored job with its spec
type Job struct {
	JobSummary
	Spec JobSpec `json:"spec"`
}

// JobError is an error recorded for a job
type JobError struct {
	ID         int64             `json:"id"`
	JobID      string            `json:"job_id"`
	Kind       string            `json:"kind"` // config, data, internal
	Message    string            `json:"message"`
	BadColumns map[string]string `json:"bad_columns,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
