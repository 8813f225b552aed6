package mapper

import (
	"github.com/sirupsen/logrus"

	"go-csvmap/internal/sink"
)

// DefaultTableName names the root table when no name is given.
const DefaultTableName = "root"

// Option configures a Mapper.
type Option func(*Mapper)

// WithWriteHeader controls whether tables start with a header row.
func WithWriteHeader(write bool) Option {
	return func(m *Mapper) { m.writeHeader = write }
}

// WithTableName names the root table.
func WithTableName(name string) Option {
	return func(m *Mapper) {
		if name != "" {
			m.name = name
		}
	}
}

// WithFactory sets where tables are written. CSV files in a fresh temporary
// directory are used by default.
func WithFactory(f sink.Factory) Option {
	return func(m *Mapper) {
		if f != nil {
			m.factory = f
		}
	}
}

// WithLogger sets the logger the mapper reports table creation to.
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Mapper) {
		if log != nil {
			m.log = log
		}
	}
}
