// Package mapper flattens hierarchical records into relational tables.
//
// A Mapper owns one output table. Table directives in its mapping hand the
// nested values over to child mappers, which write their own tables and carry
// a parent-key column pointing back at the row they came from. All mappers of
// one tree share a registry, so each table name has exactly one mapper.
//
// A Mapper tree is not safe for concurrent use.
package mapper

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"

	"go-csvmap/internal/mapping"
	"go-csvmap/internal/sink"
	"go-csvmap/pkg/utils"
)

// ParentLink is the parent key handed to a child table for one parent row.
type ParentLink struct {
	Column string
	Value  string
	// FoldIntoKey appends Column to the child's primary key.
	FoldIntoKey bool
}

// Mapper maps records onto one table and delegates nested tables to children.
type Mapper struct {
	spec        mapping.Spec
	name        string
	writeHeader bool
	factory     sink.Factory
	log         logrus.FieldLogger

	registry map[string]*Mapper
	children []*Mapper

	// set when the table is opened
	table      sink.Table
	header     []string
	columns    map[string]int
	keys       []keyColumn
	linkColumn string
	foldLink   bool
}

// New creates the root mapper of a tree.
func New(spec mapping.Spec, opts ...Option) *Mapper {
	m := &Mapper{
		spec:        spec,
		name:        DefaultTableName,
		writeHeader: true,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.factory == nil {
		m.factory = sink.NewCSV("")
	}
	m.registry = map[string]*Mapper{m.name: m}
	return m
}

// Name returns the table name.
func (m *Mapper) Name() string { return m.name }

// Parse maps every record into the tree's tables. The table is created even
// when records is empty.
func (m *Mapper) Parse(records []interface{}, userData map[string]interface{}) error {
	return m.parse(records, userData, nil)
}

// ParseRow maps a single record.
func (m *Mapper) ParseRow(record interface{}, userData map[string]interface{}) error {
	return m.parse([]interface{}{record}, userData, nil)
}

// GetTables returns the table of m and of every descendant, by name.
func (m *Mapper) GetTables() (map[string]sink.Table, error) {
	tables, err := m.Tables()
	if err != nil {
		return nil, err
	}
	out := make(map[string]sink.Table, len(tables))
	for _, t := range tables {
		out[t.Name()] = t
	}
	return out, nil
}

// Tables returns the same tables as GetTables, m first and then the
// descendants in the order they were discovered. Tables that never received
// a row are created with their header.
func (m *Mapper) Tables() ([]sink.Table, error) {
	var tables []sink.Table
	seen := make(map[string]bool)

	var walk func(*Mapper) error
	walk = func(cur *Mapper) error {
		if seen[cur.name] {
			return nil
		}
		seen[cur.name] = true
		if cur.table == nil {
			if err := cur.open(nil); err != nil {
				return err
			}
		}
		tables = append(tables, cur.table)
		for _, child := range cur.children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(m); err != nil {
		return nil, err
	}
	return tables, nil
}

// Close closes every table of the tree.
func (m *Mapper) Close() error {
	tables, err := m.Tables()
	if err != nil {
		return err
	}
	var errs []error
	for _, t := range tables {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Mapper) parse(records []interface{}, userData map[string]interface{}, link *ParentLink) error {
	if err := m.open(link); err != nil {
		return err
	}
	for _, record := range records {
		if err := m.parseRow(record, userData, link); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mapper) parseRow(record interface{}, userData map[string]interface{}, link *ParentLink) error {
	row, err := m.mapRow(record, userData, link)
	if err != nil {
		return err
	}
	if err := m.table.WriteRow(row); err != nil {
		if errors.Is(err, sink.ErrNonScalarCell) {
			return m.badData(row, err)
		}
		return err
	}
	return nil
}

// open creates the table on first use. The parent link seen at that moment
// decides the header; every later link must have the same shape.
func (m *Mapper) open(link *ParentLink) error {
	if m.table != nil {
		return m.checkLink(link)
	}

	keys := keyColumns(m.spec, link)
	header, err := buildHeader(m.spec, len(keys) > 0, link)
	if err != nil {
		return err
	}

	table, err := m.factory.Open(m.name, header, m.writeHeader)
	if err != nil {
		return err
	}
	pk := make([]string, len(keys))
	for i, k := range keys {
		pk[i] = k.column
	}
	table.SetPrimaryKey(pk)

	m.table = table
	m.header = header
	m.keys = keys
	m.columns = make(map[string]int, len(header))
	for i, col := range header {
		if _, ok := m.columns[col]; !ok {
			m.columns[col] = i
		}
	}
	if link != nil {
		m.linkColumn = link.Column
		m.foldLink = link.FoldIntoKey
	}

	m.log.WithFields(logrus.Fields{
		"table":       m.name,
		"columns":     len(header),
		"primary_key": pk,
	}).Debug("Opened table")
	return nil
}

func (m *Mapper) checkLink(link *ParentLink) error {
	switch {
	case link == nil && m.linkColumn == "":
		return nil
	case link != nil && link.Column == m.linkColumn && link.FoldIntoKey == m.foldLink:
		return nil
	}
	return mapping.ConfigErrorf("table %q is linked to its parent tables in more than one way", m.name)
}

// mapRow builds the cells of one record in header order.
func (m *Mapper) mapRow(record interface{}, userData map[string]interface{}, link *ParentLink) ([]interface{}, error) {
	row := make([]interface{}, len(m.header))
	set := func(column string, value interface{}) {
		if i, ok := m.columns[column]; ok {
			row[i] = value
		}
	}

	for _, e := range m.spec {
		value, _ := resolve(record, e.Path, mapping.Delimiter(e.Directive))

		switch d := e.Directive.(type) {
		case mapping.Column:
			if d.ForceType && !sink.IsScalar(value) {
				encoded, err := encodeJSON(value)
				if err != nil {
					return nil, err
				}
				value = encoded
			}
			set(d.Destination, value)
		case mapping.User:
			v, _ := utils.GetDataFromPath(e.Path, userData, "")
			set(d.Destination, v)
		case mapping.Date:
			set(d.Destination, parseDate(value))
		case mapping.Table:
			if err := m.mapTable(e.Path, d, record, value, userData, link, set); err != nil {
				return nil, err
			}
		}
	}

	if link != nil {
		set(link.Column, link.Value)
	}
	return row, nil
}

// mapTable hands value over to the child table of d.
func (m *Mapper) mapTable(path string, d mapping.Table, record, value interface{}, userData map[string]interface{}, link *ParentLink, set func(string, interface{})) error {
	child, err := m.child(path, d)
	if err != nil {
		return err
	}

	hasKey := len(m.keys) > 0
	if !hasKey && isEmpty(value) {
		if !d.ParentKey.Disable {
			set(d.Destination, nil)
		}
		return nil
	}

	keyValues, err := m.primaryKeyValues(record, userData, link)
	if err != nil {
		return err
	}

	var childLink *ParentLink
	switch {
	case !d.ParentKey.Disable:
		joined := joinKey(keyValues)
		if !hasKey {
			set(d.Destination, joined)
		}
		childLink = &ParentLink{
			Column:      d.ParentKeyColumn(m.name),
			Value:       joined,
			FoldIntoKey: d.ParentKey.PrimaryKey,
		}
	case child == m:
		childLink = link
	}

	return child.parse(toRecords(value), userData, childLink)
}

// child returns the mapper of the table d writes to, creating it on first use.
func (m *Mapper) child(path string, d mapping.Table) (*Mapper, error) {
	if d.IsSelfReference(m.name) {
		if !d.ParentKey.Disable {
			return nil, mapping.ConfigErrorf("'parentKey.disable' must be true to parse child values into parent's table")
		}
		return m, nil
	}
	if len(d.Mapping) == 0 {
		return nil, mapping.ConfigErrorf("key %q is not set for table %q", "tableMapping", path)
	}
	if d.Destination == "" {
		return nil, mapping.ConfigErrorf("key %q is not set for table %q", "destination", path)
	}

	c, ok := m.registry[d.Destination]
	if !ok {
		c = &Mapper{
			spec:        d.Mapping,
			name:        d.Destination,
			writeHeader: m.writeHeader,
			factory:     m.factory,
			log:         m.log,
			registry:    m.registry,
		}
		m.registry[d.Destination] = c
		m.log.WithFields(logrus.Fields{"table": c.name, "parent": m.name}).Debug("Created child table")
	}
	for _, existing := range m.children {
		if existing == c {
			return c, nil
		}
	}
	if c != m {
		m.children = append(m.children, c)
	}
	return c, nil
}

func (m *Mapper) badData(row []interface{}, cause error) error {
	e := &BadDataError{Table: m.name, BadColumns: make(map[string]string), Err: cause}
	for i, cell := range row {
		if !sink.IsScalar(cell) {
			e.Columns = append(e.Columns, m.header[i])
			e.BadColumns[m.header[i]] = sink.KindOf(cell)
		}
	}
	return e
}

// buildHeader lists the columns of a table: columns, then link placeholders
// of child tables when the table has no key of its own, then the parent key.
func buildHeader(spec mapping.Spec, hasKey bool, link *ParentLink) ([]string, error) {
	header := make([]string, 0, len(spec)+1)
	for _, e := range spec {
		var dest string
		switch d := e.Directive.(type) {
		case mapping.Column:
			dest = d.Destination
		case mapping.User:
			dest = d.Destination
		case mapping.Date:
			dest = d.Destination
		case mapping.Table:
			if hasKey {
				continue
			}
			if d.Destination == "" {
				return nil, mapping.ConfigErrorf("key %q is not set for table %q", "destination", e.Path)
			}
			if !d.ParentKey.Disable {
				header = append(header, d.Destination)
			}
			continue
		}
		if dest == "" {
			return nil, mapping.ConfigErrorf("key %q is not set for column %q", "mapping.destination", e.Path)
		}
		header = append(header, dest)
	}
	if link != nil {
		header = append(header, link.Column)
	}
	return header, nil
}

// resolve finds the value at path. Scalar records only answer to a path
// addressing the record itself.
func resolve(record interface{}, path, delimiter string) (interface{}, bool) {
	if utils.IsNavigable(record) {
		return utils.GetDataFromPath(path, record, delimiter)
	}
	if utils.IsSelfPath(path, delimiter) {
		return record, true
	}
	return nil, false
}

// isEmpty reports values that cannot start a relation on their own:
// nil, false, zero numbers, "" and "0", and empty containers.
func isEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return !val
	case string:
		return val == "" || val == "0"
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 0
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	default:
		return false
	}
}

// toRecords turns an array into its items and wraps anything else.
func toRecords(v interface{}) []interface{} {
	switch val := v.(type) {
	case []interface{}:
		return val
	case map[string]interface{}, nil:
		return []interface{}{val}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []interface{}{v}
}

// parseDate converts date strings into Unix seconds and leaves everything
// else as it is.
func parseDate(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok || s == "" {
		return v
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return v
	}
	return t.Unix()
}

func encodeJSON(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
