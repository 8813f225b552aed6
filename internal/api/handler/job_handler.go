package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-csvmap/internal/mapper"
	"go-csvmap/internal/mapping"
	"go-csvmap/internal/model"
	"go-csvmap/internal/pipeline"
	"go-csvmap/internal/store"
	"go-csvmap/pkg/utils"
)

const jobsPrefix = "/api/v1/jobs/"

// JobHandler serves the job and mapping endpoints.
type JobHandler struct {
	ctx    context.Context
	store  *store.Store
	output *utils.OutputManager
	opts   pipeline.Options
	log    logrus.FieldLogger
	wg     sync.WaitGroup
}

// NewJobHandler creates the handlers. Jobs run with opts and are cancelled
// when ctx is done; their progress is recorded in st.
func NewJobHandler(ctx context.Context, st *store.Store, opts pipeline.Options) *JobHandler {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	opts.Recorder = st
	return &JobHandler{
		ctx:    ctx,
		store:  st,
		output: utils.NewOutputManager(opts.OutputDir),
		opts:   opts,
		log:    opts.Log,
	}
}

// Wait blocks until every started job has finished.
func (h *JobHandler) Wait() {
	h.wg.Wait()
}

// CreateJob creates a new mapping job
// @Summary Create a mapping job
// @Description Validate the mapping and start mapping the records into tables in the background
// @Tags jobs
// @Accept json
// @Produce json
// @Param job body model.JobSpec true "Mapping job"
// @Success 200 {object} map[string]interface{} "Job created successfully"
// @Failure 400 {object} map[string]interface{} "Invalid request payload or mapping"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /jobs [post]
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	job, err := decodeJob(r)
	if err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	// 1. Validate payload
	if err := validateJob(job); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// 2. Generate job ID
	jobID := uuid.New().String()

	// 3. Save job to DB
	if err := h.store.SaveJob(jobID, job); err != nil {
		h.log.WithError(err).Error("Failed to save job")
		http.Error(w, "Failed to save job", http.StatusInternalServerError)
		return
	}

	// 4. Start pipeline asynchronously
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		// failures are recorded by the pipeline
		_, _ = pipeline.Run(h.ctx, jobID, job, h.opts)
	}()

	// 5. Return response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Job created successfully!",
		"jobID":     jobID,
		"status":    model.StatusPending,
		"createdAt": time.Now().UTC(),
	})
}

// ListJobs retrieves all jobs
// @Summary List all jobs
// @Description Get a list of all mapping jobs with their current status
// @Tags jobs
// @Produce json
// @Success 200 {array} model.JobSummary "List of jobs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /jobs [get]
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.ListJobs()
	if err != nil {
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetJob retrieves a single job
// @Summary Get job
// @Description Retrieve the spec and status of a mapping job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} model.Job "Job details"
// @Failure 400 {object} map[string]interface{} "Invalid job ID"
// @Failure 404 {object} map[string]interface{} "Job not found"
// @Router /jobs/{id} [get]
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(r.URL.Path, "")
	if !ok {
		http.Error(w, "Job ID is required", http.StatusBadRequest)
		return
	}

	job, err := h.store.GetJob(jobID)
	if errors.Is(err, store.ErrJobNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to retrieve job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GetJobErrors retrieves the errors of a job
// @Summary Get job errors
// @Description Retrieve the errors recorded for a mapping job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{} "Job errors"
// @Failure 400 {object} map[string]interface{} "Invalid job ID"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /jobs/{id}/errors [get]
func (h *JobHandler) GetJobErrors(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(r.URL.Path, "/errors")
	if !ok {
		http.Error(w, "Job ID is required", http.StatusBadRequest)
		return
	}

	jobErrors, err := h.store.GetJobErrors(jobID)
	if err != nil {
		http.Error(w, "Failed to retrieve errors", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"errors": jobErrors,
		"count":  len(jobErrors),
	})
}

// GetJobTables retrieves the tables written by a job
// @Summary Get job tables
// @Description Retrieve the tables a completed job wrote, with their headers, primary keys and download links
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{} "Job tables"
// @Failure 400 {object} map[string]interface{} "Invalid job ID"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /jobs/{id}/tables [get]
func (h *JobHandler) GetJobTables(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDFromPath(r.URL.Path, "/tables")
	if !ok {
		http.Error(w, "Job ID is required", http.StatusBadRequest)
		return
	}

	tables, err := h.store.GetJobTables(jobID)
	if err != nil {
		http.Error(w, "Failed to retrieve tables", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": jobID,
		"tables": tables,
		"count":  len(tables),
	})
}

// DownloadFile serves a file written by a job
// @Summary Download file
// @Description Download a table, manifest, database or result file of a job
// @Tags files
// @Produce application/octet-stream
// @Param jobID path string true "Job ID"
// @Param filename path string true "File name"
// @Success 200 {file} file "File download"
// @Failure 400 {object} map[string]interface{} "Invalid URL format"
// @Failure 404 {object} map[string]interface{} "File not found"
// @Router /download/{jobID}/{filename} [get]
func (h *JobHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	// URL format: /api/v1/download/jobID/filename
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) != 5 {
		http.Error(w, fmt.Sprintf("Invalid URL format. Expected 5 parts, got %d", len(pathParts)), http.StatusBadRequest)
		return
	}
	jobID := pathParts[3]
	fileName := pathParts[4]

	filePath, err := h.output.GetOutputFilePath(jobID, fileName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if info, err := os.Stat(filePath); err != nil || info.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Type", h.output.GetContentType(fileName))
	http.ServeFile(w, r, filePath)
}

// MapRecords maps records synchronously
// @Summary Map records in memory
// @Description Map the records of a job without storing anything and return every table as CSV text
// @Tags mapping
// @Accept json
// @Produce json
// @Param job body model.JobSpec true "Mapping job"
// @Success 200 {object} map[string]interface{} "Mapped tables"
// @Failure 400 {object} map[string]interface{} "Invalid request payload or mapping"
// @Failure 422 {object} map[string]interface{} "Records hold values the tables cannot store"
// @Router /map [post]
func (h *JobHandler) MapRecords(w http.ResponseWriter, r *http.Request) {
	job, err := decodeJob(r)
	if err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if err := validateJob(job); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), utils.ParseDuration(job.Timeout, pipeline.DefaultTimeout))
	defer cancel()

	tables, err := pipeline.Preview(ctx, job, h.opts.RootTable, h.opts.Metrics, h.log)
	if err != nil {
		var badData *mapper.BadDataError
		switch {
		case errors.As(err, &badData):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":       err.Error(),
				"table":       badData.Table,
				"bad_columns": badData.BadColumns,
			})
		case errors.Is(err, mapping.ErrBadConfig):
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		default:
			h.log.WithError(err).Error("Failed to map records")
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tables": tables,
		"count":  len(tables),
	})
}

// Health reports that the service is up
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "Service is healthy"
// @Router /health [get]
func (h *JobHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// validateJob rejects jobs that cannot run before anything is stored.
func validateJob(job model.JobSpec) error {
	if _, err := mapping.Parse(job.Mapping); err != nil {
		return err
	}
	if len(job.Records) == 0 && job.Source == nil {
		return errors.New("either records or a source is required")
	}
	if job.Source != nil {
		if job.Source.URL == "" {
			return errors.New("source url is required")
		}
		// local files are only readable from the command line
		if !pipeline.IsRemoteSource(job.Source.URL) {
			return errors.New("source url must be an http(s) URL")
		}
	}
	switch strings.ToLower(job.Export.Format) {
	case "", model.ExportCSV, model.ExportSQLite:
	default:
		return fmt.Errorf("unsupported export format: %s", job.Export.Format)
	}
	return nil
}

// decodeJob reads a job body. Numbers stay json.Number so user data keeps
// its digits.
func decodeJob(r *http.Request) (model.JobSpec, error) {
	var job model.JobSpec
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	err := dec.Decode(&job)
	return job, err
}

// jobIDFromPath extracts the id from /api/v1/jobs/{id}<suffix>.
func jobIDFromPath(path, suffix string) (string, bool) {
	if !strings.HasPrefix(path, jobsPrefix) || !strings.HasSuffix(path, suffix) {
		return "", false
	}
	jobID := path[len(jobsPrefix) : len(path)-len(suffix)]
	if jobID == "" || strings.Contains(jobID, "/") {
		return "", false
	}
	return jobID, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
