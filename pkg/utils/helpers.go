package utils

import (
	"reflect"
	"strings"
	"time"
)

// ParseDuration safely parses duration string like "5m"
func ParseDuration(d string, fallback time.Duration) time.Duration {
	if d == "" {
		return fallback
	}
	duration, err := time.ParseDuration(d)
	if err != nil || duration <= 0 {
		return fallback
	}
	return duration
}

// IsNavigable reports whether a path can descend into v (objects and arrays).
func IsNavigable(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return true
	case nil:
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	default:
		return false
	}
}

// IsSelfPath reports whether path addresses the value itself: the empty path
// or a path made only of delimiters (e.g. ".").
func IsSelfPath(path, delimiter string) bool {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return strings.ReplaceAll(path, delimiter, "") == ""
}
