package model

import "time"

// TableResult describes one table written by a job
type TableResult struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"` // file path or sqlite table
	Header      []string `json:"header"`
	PrimaryKey  []string `json:"primary_key"`
	RowCount    int      `json:"row_count"`
	SizeBytes   int64    `json:"size_bytes,omitempty"` // csv exports only
	DownloadURL string   `json:"download_url,omitempty"`
}

// JobResult is the outcome of a finished job
type JobResult struct {
	JobID      string        `json:"job_id"`
	Status     string        `json:"status"`
	Records    int           `json:"records"`
	OutputDir  string        `json:"output_dir"`
	Tables     []TableResult `json:"tables"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Duration is how long the job ran.
func (r *JobResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// TablePreview is a table mapped in memory by POST /api/v1/map
type TablePreview struct {
	Name       string   `json:"name"`
	Header     []string `json:"header"`
	PrimaryKey []string `json:"primary_key"`
	RowCount   int      `json:"row_count"`
	CSV        string   `json:"csv"`
}
