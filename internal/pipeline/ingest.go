package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"go-csvmap/internal/model"
	"go-csvmap/pkg/utils"
)

// ------------------- Ingestion -------------------

// Ingest sends the records of a job to out: the inline records when the job
// carries them, the records read from its source otherwise. out is not closed.
func Ingest(ctx context.Context, job model.JobSpec, out chan<- interface{}, log logrus.FieldLogger) error {
	if inline := bytes.TrimSpace(job.Records); len(inline) > 0 && !bytes.Equal(inline, []byte("null")) {
		records, err := decodeRecords(bytes.NewReader(job.Records), "")
		if err != nil {
			return fmt.Errorf("failed to decode inline records: %w", err)
		}
		log.WithField("records", len(records)).Debug("Using inline records")
		return emit(ctx, records, out)
	}
	if job.Source == nil {
		return errors.New("job has neither records nor a source")
	}
	return IngestSource(ctx, *job.Source, out, log)
}

// IngestSource reads one JSON or JSON Lines source (file or http(s) URL).
func IngestSource(ctx context.Context, source model.Source, out chan<- interface{}, log logrus.FieldLogger) error {
	log = log.WithFields(logrus.Fields{"source": source.URL, "type": source.Type})
	log.Info("Starting ingestion")

	reader, err := openSource(ctx, source.URL)
	if err != nil {
		return err
	}
	defer reader.Close()

	var count int
	switch strings.ToLower(source.Type) {
	case "", model.SourceJSON:
		records, err := decodeRecords(reader, source.DataPath)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", source.URL, err)
		}
		count = len(records)
		err = emit(ctx, records, out)
		if err != nil {
			return err
		}
	case model.SourceJSONL:
		count, err = streamLines(ctx, reader, source.DataPath, out)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", source.URL, err)
		}
	default:
		return fmt.Errorf("unknown source type: %s", source.Type)
	}

	log.WithField("records", count).Info("Ingestion done")
	return nil
}

// LoadRecords collects the records of a job into memory.
func LoadRecords(ctx context.Context, job model.JobSpec, log logrus.FieldLogger) ([]interface{}, error) {
	out := make(chan interface{}, 64)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		errCh <- Ingest(ctx, job, out, log)
	}()

	var records []interface{}
	for record := range out {
		records = append(records, record)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return records, nil
}

// IsRemoteSource reports whether a source is fetched over http(s) rather than
// read from the local filesystem.
func IsRemoteSource(pathOrURL string) bool {
	lower := strings.ToLower(pathOrURL)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func openSource(ctx context.Context, pathOrURL string) (io.ReadCloser, error) {
	if IsRemoteSource(pathOrURL) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pathOrURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to GET JSON: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to GET JSON: %s returned %s", pathOrURL, resp.Status)
		}
		return resp.Body, nil
	}

	file, err := os.Open(pathOrURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}
	return file, nil
}

// decodeRecords decodes one JSON document and returns the records found at
// dataPath. Anything but an array is a single record.
func decodeRecords(r io.Reader, dataPath string) ([]interface{}, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return recordsAt(raw, dataPath)
}

func recordsAt(raw interface{}, dataPath string) ([]interface{}, error) {
	if dataPath != "" {
		value, ok := utils.GetDataFromPath(dataPath, raw, "")
		if !ok {
			return nil, fmt.Errorf("data path %q not found", dataPath)
		}
		raw = value
	}
	if list, ok := raw.([]interface{}); ok {
		return list, nil
	}
	return []interface{}{raw}, nil
}

// streamLines decodes one JSON document per line. Blank lines are skipped.
func streamLines(ctx context.Context, r io.Reader, dataPath string, out chan<- interface{}) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	count := 0
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		records, err := decodeRecords(bytes.NewReader(text), dataPath)
		if err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		if err := emit(ctx, records, out); err != nil {
			return count, err
		}
		count += len(records)
	}
	return count, scanner.Err()
}

func emit(ctx context.Context, records []interface{}, out chan<- interface{}) error {
	for _, record := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- record:
		}
	}
	return nil
}
