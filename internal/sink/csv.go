package sink

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CSV writes every table into "<Dir>/<name>.csv".
type CSV struct {
	// Dir receives the files. A temporary directory is created when empty.
	Dir string
	// Manifest writes "<name>.csv.manifest" with the columns and primary key
	// next to each table when it is closed.
	Manifest bool

	mu     sync.Mutex
	tables map[string]*CSVTable
	files  map[string]string // file name -> table name
}

// NewCSV creates a factory writing into dir.
func NewCSV(dir string) *CSV {
	return &CSV{Dir: dir, tables: make(map[string]*CSVTable), files: make(map[string]string)}
}

// Open creates the file for name and writes its header.
func (c *CSV) Open(name string, header []string, writeHeader bool) (Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tables == nil {
		c.tables = make(map[string]*CSVTable)
		c.files = make(map[string]string)
	}
	if t, ok := c.tables[name]; ok {
		return t, nil
	}
	fileName := FileName(name)
	if other, ok := c.files[fileName]; ok {
		return nil, fmt.Errorf("tables %q and %q both write %s", other, name, fileName)
	}

	if c.Dir == "" {
		dir, err := os.MkdirTemp("", "csvmap-")
		if err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		c.Dir = dir
	}
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(c.Dir, fileName)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	t := &CSVTable{
		name:     name,
		header:   copyStrings(header),
		path:     path,
		file:     file,
		writer:   csv.NewWriter(file),
		manifest: c.Manifest,
	}
	if writeHeader {
		if err := t.writer.Write(t.header); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	c.tables[name] = t
	c.files[fileName] = name
	return t, nil
}

// FileName is the CSV file name used for a table.
func FileName(table string) string {
	clean := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, table)
	return clean + ".csv"
}

// CSVTable is a Table backed by a CSV file.
type CSVTable struct {
	name       string
	header     []string
	primaryKey []string
	path       string
	file       *os.File
	writer     *csv.Writer
	manifest   bool
	rows       int
	closed     bool
}

func (t *CSVTable) Name() string                   { return t.name }
func (t *CSVTable) Header() []string               { return copyStrings(t.header) }
func (t *CSVTable) PrimaryKey() []string           { return copyStrings(t.primaryKey) }
func (t *CSVTable) SetPrimaryKey(columns []string) { t.primaryKey = copyStrings(columns) }
func (t *CSVTable) Pathname() string               { return t.path }
func (t *CSVTable) RowCount() int                  { return t.rows }

// WriteRow formats the whole row before writing so a rejected row leaves no
// partial record behind.
func (t *CSVTable) WriteRow(cells []interface{}) error {
	if t.closed {
		return fmt.Errorf("table %q is closed", t.name)
	}
	if err := checkWidth(t.name, t.header, cells); err != nil {
		return err
	}
	record, err := FormatRow(cells)
	if err != nil {
		return err
	}
	if err := t.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	t.rows++
	return nil
}

// Flush pushes buffered rows to the file.
func (t *CSVTable) Flush() error {
	t.writer.Flush()
	return t.writer.Error()
}

// Close flushes the file and writes the manifest. Closing twice is a no-op.
func (t *CSVTable) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	if err := t.Flush(); err != nil {
		t.file.Close()
		return fmt.Errorf("failed to flush %s: %w", t.path, err)
	}
	if err := t.file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", t.path, err)
	}
	if t.manifest {
		return t.writeManifest()
	}
	return nil
}

type manifest struct {
	PrimaryKey []string `json:"primary_key"`
	Columns    []string `json:"columns"`
}

func (t *CSVTable) writeManifest() error {
	m := manifest{PrimaryKey: []string{}, Columns: []string{}}
	m.PrimaryKey = append(m.PrimaryKey, t.primaryKey...)
	m.Columns = append(m.Columns, t.header...)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(t.path+".manifest", data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
