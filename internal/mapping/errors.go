package mapping

import (
	"errors"
	"fmt"
)

// ErrBadConfig matches every *ConfigError.
var ErrBadConfig = errors.New("bad mapping config")

// ConfigError reports a self-contradictory or incomplete mapping.
type ConfigError struct {
	Message string
	Cause   error
}

// ConfigErrorf formats a ConfigError.
func ConfigErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error { return e.Cause }

func (e *ConfigError) Is(target error) bool { return target == ErrBadConfig }
