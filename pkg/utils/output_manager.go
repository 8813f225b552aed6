package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OutputManager handles output file organization and path management
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// CreateJobOutputDir creates a UUID-based directory for a job's tables
func (om *OutputManager) CreateJobOutputDir(jobID string) (string, error) {
	jobDir := filepath.Join(om.BaseOutputDir, filepath.Base(jobID))

	err := os.MkdirAll(jobDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create job output directory: %w", err)
	}

	return jobDir, nil
}

// GetOutputFilePath resolves a file inside a job's output directory without
// creating anything. It refuses names that would escape the job directory.
func (om *OutputManager) GetOutputFilePath(jobID, fileName string) (string, error) {
	cleanJobID := filepath.Base(jobID)
	cleanFileName := filepath.Base(fileName)
	if cleanJobID == "." || cleanJobID == string(filepath.Separator) || cleanFileName == "." || cleanFileName == string(filepath.Separator) {
		return "", fmt.Errorf("invalid output path %q/%q", jobID, fileName)
	}

	return filepath.Join(om.BaseOutputDir, cleanJobID, cleanFileName), nil
}

// GetDownloadURL generates a download URL for a file
func (om *OutputManager) GetDownloadURL(jobID, fileName string) string {
	cleanFileName := filepath.Base(fileName)
	return fmt.Sprintf("/api/v1/download/%s/%s", jobID, cleanFileName)
}

// GetFileType determines the file type based on extension
func (om *OutputManager) GetFileType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".manifest":
		return "manifest"
	case ".db", ".sqlite":
		return "sqlite"
	default:
		return "unknown"
	}
}

// GetContentType maps a file type to the Content-Type served for downloads
func (om *OutputManager) GetContentType(fileName string) string {
	switch om.GetFileType(fileName) {
	case "csv":
		return "text/csv; charset=utf-8"
	case "json", "manifest":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// GetFileSize returns the size of a file in bytes
func (om *OutputManager) GetFileSize(filePath string) (int64, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return fileInfo.Size(), nil
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	return os.MkdirAll(om.BaseOutputDir, 0755)
}
