package mapper

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadData matches every *BadDataError.
var ErrBadData = errors.New("bad data")

// BadDataError reports a row that holds values the table cannot store.
type BadDataError struct {
	Table string
	// Columns lists the offending columns in header order.
	Columns []string
	// BadColumns maps each offending column to the kind of its value.
	BadColumns map[string]string
	Err        error
}

func (e *BadDataError) Error() string {
	return fmt.Sprintf("error writing %q column: %v", strings.Join(e.Columns, ","), e.Err)
}

func (e *BadDataError) Unwrap() error { return e.Err }

func (e *BadDataError) Is(target error) bool { return target == ErrBadData }
