// Package sink holds the append-only table destinations the mapper writes to.
package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

// Table is an append-only destination for the rows of one output table.
type Table interface {
	Name() string
	Header() []string
	PrimaryKey() []string
	SetPrimaryKey(columns []string)
	// WriteRow appends one row. A row holding a non-scalar cell is rejected
	// as a whole with a *CellError.
	WriteRow(cells []interface{}) error
	// Pathname identifies where the table is persisted.
	Pathname() string
	RowCount() int
	Close() error
}

// Factory opens the table for a name. The mapper opens each name once.
type Factory interface {
	Open(name string, header []string, writeHeader bool) (Table, error)
}

// ErrNonScalarCell matches every *CellError.
var ErrNonScalarCell = errors.New("non-scalar cell")

// CellError rejects a row because a cell cannot be written.
type CellError struct {
	Column int
	Kind   string
}

func (e *CellError) Error() string {
	return "cannot write data into column: " + e.Kind
}

func (e *CellError) Is(target error) bool { return target == ErrNonScalarCell }

// IsScalar reports whether v can be written into a cell. Null counts as scalar.
func IsScalar(v interface{}) bool {
	switch v.(type) {
	case nil, string, json.Number, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// KindOf describes the kind of a value the way it appears in error reports.
func KindOf(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// FormatCell renders a scalar as cell text. Null and false become the empty
// string, true becomes "1".
func FormatCell(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		if val {
			return "1", nil
		}
		return "", nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case int8:
		return strconv.FormatInt(int64(val), 10), nil
	case int16:
		return strconv.FormatInt(int64(val), 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", &CellError{Column: -1, Kind: KindOf(v)}
	}
}

// FormatRow renders every cell of a row or reports the first bad one.
func FormatRow(cells []interface{}) ([]string, error) {
	out := make([]string, len(cells))
	for i, cell := range cells {
		s, err := FormatCell(cell)
		if err != nil {
			var cellErr *CellError
			if errors.As(err, &cellErr) {
				cellErr.Column = i
			}
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func checkWidth(name string, header []string, cells []interface{}) error {
	if len(cells) != len(header) {
		return fmt.Errorf("table %q: row has %d cells, header has %d columns", name, len(cells), len(header))
	}
	return nil
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
