// Package pipeline runs mapping jobs: it ingests the records of a job, maps
// them into tables and exports those tables into the job's output directory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"go-csvmap/internal/mapper"
	"go-csvmap/internal/mapping"
	"go-csvmap/internal/model"
	"go-csvmap/internal/sink"
	"go-csvmap/pkg/utils"
)

// DefaultTimeout bounds jobs that do not set one.
const DefaultTimeout = 5 * time.Minute

// Recorder persists the progress of a job.
type Recorder interface {
	UpdateJobStatus(jobID string, status string) error
	SaveJobError(jobID string, err error) error
	SaveJobTables(jobID string, tables []model.TableResult) error
}

// Options configure Run.
type Options struct {
	// OutputDir is the base directory; each job writes into OutputDir/<job id>.
	OutputDir string
	// InPlace writes the tables into OutputDir itself.
	InPlace bool
	// RootTable names the root table of jobs without a table name.
	RootTable string
	Metrics   *sink.Metrics
	Log       logrus.FieldLogger
	// Recorder is optional.
	Recorder Recorder
}

func (o Options) logger() logrus.FieldLogger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

// ------------------- Pipeline Runner -------------------

// Run maps the records of job into tables and exports them.
func Run(ctx context.Context, jobID string, job model.JobSpec, opts Options) (result *model.JobResult, err error) {
	log := opts.logger().WithField("job_id", jobID)
	result = &model.JobResult{JobID: jobID, Status: model.StatusRunning, StartedAt: time.Now().UTC()}
	log.Info("Starting pipeline")

	record(log, opts.Recorder, func(r Recorder) error { return r.UpdateJobStatus(jobID, model.StatusRunning) })

	defer func() {
		result.FinishedAt = time.Now().UTC()
		if err != nil {
			result.Status = model.StatusFailed
			logFailure(log, err)
			record(log, opts.Recorder, func(r Recorder) error { return r.UpdateJobStatus(jobID, model.StatusFailed) })
			record(log, opts.Recorder, func(r Recorder) error { return r.SaveJobError(jobID, err) })
			return
		}
		result.Status = model.StatusCompleted
		record(log, opts.Recorder, func(r Recorder) error { return r.UpdateJobStatus(jobID, model.StatusCompleted) })
		log.WithFields(logrus.Fields{
			"records":  result.Records,
			"tables":   len(result.Tables),
			"duration": result.Duration().String(),
		}).Info("Pipeline completed")
	}()

	ctx, cancel := context.WithTimeout(ctx, utils.ParseDuration(job.Timeout, DefaultTimeout))
	defer cancel()

	spec, err := mapping.Parse(job.Mapping)
	if err != nil {
		return result, err
	}

	output := utils.NewOutputManager(opts.OutputDir)
	dir, err := jobDir(output, jobID, opts.InPlace)
	if err != nil {
		return result, err
	}
	result.OutputDir = dir

	exp, err := newExporter(jobID, dir, job.Export, output)
	if err != nil {
		return result, err
	}
	defer func() {
		if cerr := exp.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	factory := exp.factory
	if opts.Metrics != nil {
		factory = opts.Metrics.Instrument(factory)
	}

	m := mapper.New(spec,
		mapper.WithFactory(factory),
		mapper.WithTableName(tableName(job.TableName, opts.RootTable)),
		mapper.WithWriteHeader(job.Export.Header()),
		mapper.WithLogger(log),
	)

	// --- INGESTION + MAPPING ---
	result.Records, err = mapRecords(ctx, cancel, m, job, log)
	if err != nil {
		_ = m.Close()
		return result, err
	}

	// --- EXPORT ---
	tables, err := m.Tables()
	if err != nil {
		_ = m.Close()
		return result, err
	}
	if err := m.Close(); err != nil {
		return result, fmt.Errorf("failed to close tables: %w", err)
	}
	result.Tables = exp.describe(tables)
	result.Status = model.StatusCompleted
	result.FinishedAt = time.Now().UTC()

	if err := writeResult(dir, result); err != nil {
		return result, err
	}
	record(log, opts.Recorder, func(r Recorder) error { return r.SaveJobTables(jobID, result.Tables) })

	return result, nil
}

// mapRecords feeds the ingested records to m one by one. Ingestion runs in its
// own goroutine and is cancelled as soon as a record fails to map.
func mapRecords(ctx context.Context, cancel context.CancelFunc, m *mapper.Mapper, job model.JobSpec, log logrus.FieldLogger) (int, error) {
	recordsCh := make(chan interface{}, 64)
	ingestErr := make(chan error, 1)
	go func() {
		defer close(recordsCh)
		ingestErr <- Ingest(ctx, job, recordsCh, log)
	}()

	count := 0
	var mapErr error
	for rec := range recordsCh {
		if mapErr != nil {
			continue
		}
		if err := m.ParseRow(rec, job.UserData); err != nil {
			mapErr = fmt.Errorf("record %d: %w", count, err)
			cancel()
			continue
		}
		count++
	}

	if err := <-ingestErr; err != nil && mapErr == nil {
		return count, err
	}
	if mapErr != nil {
		return count, mapErr
	}
	log.WithField("records", count).Info("Mapping done")
	return count, nil
}

func jobDir(output *utils.OutputManager, jobID string, inPlace bool) (string, error) {
	if !inPlace {
		return output.CreateJobOutputDir(jobID)
	}
	if err := output.EnsureOutputDirExists(); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return output.BaseOutputDir, nil
}

func tableName(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

func record(log logrus.FieldLogger, r Recorder, fn func(Recorder) error) {
	if r == nil {
		return
	}
	if err := fn(r); err != nil {
		log.WithError(err).Error("Failed to record job progress")
	}
}

func logFailure(log logrus.FieldLogger, err error) {
	entry := log.WithError(err)
	var badData *mapper.BadDataError
	if errors.As(err, &badData) {
		entry = entry.WithFields(logrus.Fields{"table": badData.Table, "bad_columns": badData.BadColumns})
	}
	entry.Error("Pipeline failed")
}
