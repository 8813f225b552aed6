package sink

import (
	"bytes"
	"encoding/csv"
	"sync"
)

// Memory keeps tables in memory. It is used by tests and by synchronous API
// calls that return the tables inline.
type Memory struct {
	mu     sync.Mutex
	tables map[string]*MemoryTable
	order  []string
}

// NewMemory creates an empty in-memory factory.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*MemoryTable)}
}

// Open returns the table called name, creating it on first use.
func (m *Memory) Open(name string, header []string, writeHeader bool) (Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tables[name]; ok {
		return t, nil
	}
	t := &MemoryTable{name: name, header: copyStrings(header), writeHeader: writeHeader}
	m.tables[name] = t
	m.order = append(m.order, name)
	return t, nil
}

// Table returns a previously opened table.
func (m *Memory) Table(name string) (*MemoryTable, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	return t, ok
}

// Names lists the opened tables in opening order.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyStrings(m.order)
}

// MemoryTable is a Table held in memory.
type MemoryTable struct {
	name        string
	header      []string
	primaryKey  []string
	writeHeader bool
	rows        [][]string
}

func (t *MemoryTable) Name() string                   { return t.name }
func (t *MemoryTable) Header() []string               { return copyStrings(t.header) }
func (t *MemoryTable) PrimaryKey() []string           { return copyStrings(t.primaryKey) }
func (t *MemoryTable) SetPrimaryKey(columns []string) { t.primaryKey = copyStrings(columns) }
func (t *MemoryTable) Pathname() string               { return "memory://" + t.name }
func (t *MemoryTable) RowCount() int                  { return len(t.rows) }
func (t *MemoryTable) Close() error                   { return nil }

// WriteRow appends the formatted row.
func (t *MemoryTable) WriteRow(cells []interface{}) error {
	if err := checkWidth(t.name, t.header, cells); err != nil {
		return err
	}
	row, err := FormatRow(cells)
	if err != nil {
		return err
	}
	t.rows = append(t.rows, row)
	return nil
}

// Rows returns a copy of the written rows.
func (t *MemoryTable) Rows() [][]string {
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = copyStrings(r)
	}
	return out
}

// CSV renders the table the way the CSV factory writes it to disk.
func (t *MemoryTable) CSV() string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if t.writeHeader {
		_ = w.Write(t.header)
	}
	_ = w.WriteAll(t.rows)
	return buf.String()
}
