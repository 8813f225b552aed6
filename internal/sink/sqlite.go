package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// RowColumn keeps the input order of rows in SQLite tables.
const RowColumn = "_csvmap_row"

const primaryKeysTable = `
CREATE TABLE IF NOT EXISTS _csvmap_primary_keys (
	table_name TEXT PRIMARY KEY,
	columns TEXT
);
`

// SQLite writes every table into its own SQLite table with TEXT columns.
// Primary keys are recorded in _csvmap_primary_keys; rows are not
// deduplicated, so no constraint is declared on the data tables.
type SQLite struct {
	db *sql.DB

	mu     sync.Mutex
	tables map[string]*SQLiteTable
}

// NewSQLite creates a factory writing into db.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, tables: make(map[string]*SQLiteTable)}
}

// OpenSQLiteFile opens a SQLite database file with the mattn driver.
func OpenSQLiteFile(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Open (re)creates the table called name.
func (s *SQLite) Open(name string, header []string, writeHeader bool) (Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tables[name]; ok {
		return t, nil
	}
	if _, err := s.db.Exec(primaryKeysTable); err != nil {
		return nil, fmt.Errorf("failed to create primary key table: %w", err)
	}

	columns := make([]string, 0, len(header)+1)
	columns = append(columns, quoteIdent(RowColumn)+" INTEGER PRIMARY KEY")
	names := make([]string, 0, len(header))
	for _, col := range header {
		columns = append(columns, quoteIdent(col)+" TEXT")
		names = append(names, quoteIdent(col))
	}

	if _, err := s.db.Exec("DROP TABLE IF EXISTS " + quoteIdent(name)); err != nil {
		return nil, fmt.Errorf("failed to drop table %q: %w", name, err)
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(columns, ", "))
	if _, err := s.db.Exec(create); err != nil {
		return nil, fmt.Errorf("failed to create table %q: %w", name, err)
	}

	names = append([]string{quoteIdent(RowColumn)}, names...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(name), strings.Join(names, ", "), placeholders)
	stmt, err := s.db.Prepare(insert)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert into %q: %w", name, err)
	}

	t := &SQLiteTable{db: s.db, name: name, header: copyStrings(header), insert: stmt}
	s.tables[name] = t
	return t, nil
}

// SQLiteTable is a Table stored in SQLite.
type SQLiteTable struct {
	db         *sql.DB
	name       string
	header     []string
	primaryKey []string
	insert     *sql.Stmt
	rows       int
	closed     bool
}

func (t *SQLiteTable) Name() string                   { return t.name }
func (t *SQLiteTable) Header() []string               { return copyStrings(t.header) }
func (t *SQLiteTable) PrimaryKey() []string           { return copyStrings(t.primaryKey) }
func (t *SQLiteTable) SetPrimaryKey(columns []string) { t.primaryKey = copyStrings(columns) }
func (t *SQLiteTable) Pathname() string               { return "sqlite:" + t.name }
func (t *SQLiteTable) RowCount() int                  { return t.rows }

// WriteRow inserts one row; null cells are stored as NULL.
func (t *SQLiteTable) WriteRow(cells []interface{}) error {
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

	args := make([]interface{}, 0, len(cells)+1)
	args = append(args, t.rows+1)
	for i, cell := range cells {
		if cell == nil {
			args = append(args, nil)
			continue
		}
		args = append(args, record[i])
	}
	if _, err := t.insert.Exec(args...); err != nil {
		return fmt.Errorf("failed to insert into %q: %w", t.name, err)
	}
	t.rows++
	return nil
}

// Close releases the insert statement and records the primary key.
func (t *SQLiteTable) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	if err := t.insert.Close(); err != nil {
		return err
	}
	pk := t.primaryKey
	if pk == nil {
		pk = []string{}
	}
	columns, err := json.Marshal(pk)
	if err != nil {
		return err
	}
	_, err = t.db.Exec(`INSERT OR REPLACE INTO _csvmap_primary_keys (table_name, columns) VALUES (?, ?)`, t.name, string(columns))
	if err != nil {
		return fmt.Errorf("failed to save primary key of %q: %w", t.name, err)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
