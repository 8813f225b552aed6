package pipeline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go-csvmap/internal/model"
	"go-csvmap/internal/sink"
	"go-csvmap/pkg/utils"
)

const (
	// SQLiteFileName is the database written by sqlite exports.
	SQLiteFileName = "tables.db"
	// ResultFileName describes a finished job next to its tables.
	ResultFileName = "result.json"
)

// exporter opens the table factory of one job and describes what it wrote.
type exporter struct {
	jobID   string
	dir     string
	format  string
	factory sink.Factory
	output  *utils.OutputManager
	db      *sql.DB
}

func newExporter(jobID, dir string, spec model.Export, output *utils.OutputManager) (*exporter, error) {
	e := &exporter{jobID: jobID, dir: dir, format: strings.ToLower(spec.Format), output: output}
	switch e.format {
	case "", model.ExportCSV:
		e.format = model.ExportCSV
		csvFactory := sink.NewCSV(dir)
		csvFactory.Manifest = spec.Manifest
		e.factory = csvFactory
	case model.ExportSQLite:
		db, err := sink.OpenSQLiteFile(filepath.Join(dir, SQLiteFileName))
		if err != nil {
			return nil, fmt.Errorf("failed to open export database: %w", err)
		}
		e.db = db
		e.factory = sink.NewSQLite(db)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", spec.Format)
	}
	return e, nil
}

// describe turns the closed tables of a mapper tree into job results.
func (e *exporter) describe(tables []sink.Table) []model.TableResult {
	results := make([]model.TableResult, 0, len(tables))
	for _, t := range tables {
		r := model.TableResult{
			Name:       t.Name(),
			Path:       t.Pathname(),
			Header:     t.Header(),
			PrimaryKey: t.PrimaryKey(),
			RowCount:   t.RowCount(),
		}
		switch e.format {
		case model.ExportCSV:
			r.DownloadURL = e.output.GetDownloadURL(e.jobID, filepath.Base(r.Path))
			if size, err := e.output.GetFileSize(r.Path); err == nil {
				r.SizeBytes = size
			}
		case model.ExportSQLite:
			r.DownloadURL = e.output.GetDownloadURL(e.jobID, SQLiteFileName)
		}
		results = append(results, r)
	}
	return results
}

func (e *exporter) close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// writeResult stores the job result as JSON in the job directory.
func writeResult(dir string, result *model.JobResult) error {
	file, err := os.Create(filepath.Join(dir, ResultFileName))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
