package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-csvmap/internal/mapper"
	"go-csvmap/internal/mapping"
	"go-csvmap/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Store keeps jobs, their errors and the tables they produced.
type Store struct {
	db *sql.DB
}

// Initialize DB connection
func InitDB(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// Jobs update the store from their own goroutines.
	db.SetMaxOpenConns(1)

	// Create tables if not exists
	jobTable := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		spec TEXT,
		status TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);
	`
	errorTable := `
	CREATE TABLE IF NOT EXISTS job_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT,
		kind TEXT,
		error_message TEXT,
		bad_columns TEXT,
		created_at DATETIME
	);
	`
	tablesTable := `
	CREATE TABLE IF NOT EXISTS job_tables (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT,
		position INTEGER,
		name TEXT,
		path TEXT,
		header TEXT,
		primary_key TEXT,
		row_count INTEGER,
		size_bytes INTEGER,
		download_url TEXT
	);
	`

	for _, stmt := range []string{jobTable, errorTable, tablesTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveJob stores a new job as pending
func (s *Store) SaveJob(jobID string, spec model.JobSpec) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`INSERT INTO jobs (id, spec, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		jobID, string(specJSON), model.StatusPending, now, now)
	return err
}

// UpdateJobStatus updates job status
func (s *Store) UpdateJobStatus(jobID string, status string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, status, now, jobID)
	return err
}

// SaveJobError records an error for a job. Mapping errors are classified and
// bad data errors keep their offending columns.
func (s *Store) SaveJobError(jobID string, err error) error {
	if err == nil {
		return nil
	}

	kind := "internal"
	var badColumns []byte
	var badData *mapper.BadDataError
	switch {
	case errors.As(err, &badData):
		kind = "data"
		encoded, e := json.Marshal(badData.BadColumns)
		if e != nil {
			return e
		}
		badColumns = encoded
	case errors.Is(err, mapping.ErrBadConfig):
		kind = "config"
	}

	now := time.Now().UTC()
	_, e := s.db.Exec(`INSERT INTO job_errors (job_id, kind, error_message, bad_columns, created_at) VALUES (?, ?, ?, ?, ?)`,
		jobID, kind, err.Error(), nullableString(badColumns), now)
	return e
}

// GetJobErrors returns the errors of a job, oldest first
func (s *Store) GetJobErrors(jobID string) ([]model.JobError, error) {
	rows, err := s.db.Query(`SELECT id, job_id, kind, error_message, bad_columns, created_at FROM job_errors WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobErrors := []model.JobError{}
	for rows.Next() {
		var e model.JobError
		var badColumns sql.NullString
		if err := rows.Scan(&e.ID, &e.JobID, &e.Kind, &e.Message, &badColumns, &e.CreatedAt); err != nil {
			return nil, err
		}
		if badColumns.Valid {
			if err := json.Unmarshal([]byte(badColumns.String), &e.BadColumns); err != nil {
				return nil, err
			}
		}
		jobErrors = append(jobErrors, e)
	}
	return jobErrors, rows.Err()
}

// SaveJobTables replaces the tables recorded for a job
func (s *Store) SaveJobTables(jobID string, tables []model.TableResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM job_tables WHERE job_id = ?`, jobID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO job_tables (job_id, position, name, path, header, primary_key, row_count, size_bytes, download_url) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range tables {
		header, err := json.Marshal(nonNil(t.Header))
		if err != nil {
			return err
		}
		pk, err := json.Marshal(nonNil(t.PrimaryKey))
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(jobID, i, t.Name, t.Path, string(header), string(pk), t.RowCount, t.SizeBytes, t.DownloadURL); err != nil {
			return fmt.Errorf("failed to save table %q: %w", t.Name, err)
		}
	}
	return tx.Commit()
}

// GetJobTables returns the tables of a job in the order they were produced
func (s *Store) GetJobTables(jobID string) ([]model.TableResult, error) {
	rows, err := s.db.Query(`SELECT name, path, header, primary_key, row_count, size_bytes, download_url FROM job_tables WHERE job_id = ? ORDER BY position`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []model.TableResult{}
	for rows.Next() {
		var t model.TableResult
		var header, pk string
		if err := rows.Scan(&t.Name, &t.Path, &header, &pk, &t.RowCount, &t.SizeBytes, &t.DownloadURL); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(header), &t.Header); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(pk), &t.PrimaryKey); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// ListJobs returns all jobs with basic info
func (s *Store) ListJobs() ([]model.JobSummary, error) {
	rows, err := s.db.Query(`SELECT id, status, created_at, updated_at FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []model.JobSummary{}
	for rows.Next() {
		var j model.JobSummary
		if err := rows.Scan(&j.ID, &j.Status, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// GetJob fetches full job spec and status
func (s *Store) GetJob(jobID string) (*model.Job, error) {
	var specJSON string
	job := &model.Job{JobSummary: model.JobSummary{ID: jobID}}

	err := s.db.QueryRow(`SELECT spec, status, created_at, updated_at FROM jobs WHERE id = ?`, jobID).
		Scan(&specJSON, &job.Status, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(specJSON), &job.Spec); err != nil {
		return nil, err
	}
	return job, nil
}

func nullableString(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
