package utils

import (
	"reflect"
	"strconv"
	"strings"
)

// DefaultDelimiter separates path segments when no delimiter is configured.
const DefaultDelimiter = "."

// GetDataFromPath walks data along path and returns the value found there.
//
// Segments are split by delimiter; empty segments are skipped, so both "" and
// "." address data itself. Object keys are looked up in maps with string keys,
// numeric segments index arrays. A missing segment yields (nil, false).
func GetDataFromPath(path string, data interface{}, delimiter string) (interface{}, bool) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	if path == "" {
		return data, true
	}

	current := data
	for _, segment := range strings.Split(path, delimiter) {
		if segment == "" {
			continue
		}
		next, ok := step(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func step(current interface{}, segment string) (interface{}, bool) {
	switch node := current.(type) {
	case nil:
		return nil, false
	case map[string]interface{}:
		v, ok := node[segment]
		return v, ok
	case []interface{}:
		i, err := strconv.Atoi(segment)
		if err != nil || i < 0 || i >= len(node) {
			return nil, false
		}
		return node[i], true
	}

	rv := reflect.ValueOf(current)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(segment)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	default:
		return nil, false
	}
}
