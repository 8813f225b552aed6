package mapper

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go-csvmap/internal/mapping"
	"go-csvmap/internal/sink"
	"go-csvmap/pkg/utils"
)

// keyColumn is one column of a table's primary key.
type keyColumn struct {
	path      string
	column    string
	delimiter string
	user      bool
}

// keyColumns collects the primary key declared by spec, in spec order, and
// appends the parent-key column when the link folds into the key.
func keyColumns(spec mapping.Spec, link *ParentLink) []keyColumn {
	var keys []keyColumn
	for _, e := range spec {
		switch d := e.Directive.(type) {
		case mapping.Column:
			if d.PrimaryKey {
				keys = append(keys, keyColumn{path: e.Path, column: d.Destination, delimiter: d.Delimiter})
			}
		case mapping.User:
			if d.PrimaryKey {
				keys = append(keys, keyColumn{path: e.Path, column: d.Destination, user: true})
			}
		}
	}
	if link != nil && link.FoldIntoKey {
		keys = append(keys, keyColumn{path: link.Column, column: link.Column})
	}
	return keys
}

// primaryKeyValues returns the key of record. Without a declared key the
// record content is hashed.
func (m *Mapper) primaryKeyValues(record interface{}, userData map[string]interface{}, link *ParentLink) ([]interface{}, error) {
	if len(m.keys) == 0 {
		h, err := contentHash(record, userData)
		if err != nil {
			return nil, err
		}
		return []interface{}{h}, nil
	}

	values := make([]interface{}, 0, len(m.keys))
	for _, k := range m.keys {
		var v interface{}
		switch {
		case link != nil && k.column == link.Column:
			v = link.Value
		case k.user:
			v, _ = utils.GetDataFromPath(k.path, userData, "")
		default:
			v, _ = resolve(record, k.path, k.delimiter)
		}
		values = append(values, v)
	}

	for _, v := range values {
		if !sink.IsScalar(v) {
			encoded, _ := json.Marshal(values)
			return nil, mapping.ConfigErrorf("only scalar values are allowed in primary key, primary key: %s", encoded)
		}
	}
	return values, nil
}

// contentHash is the hex MD5 of the record's JSON encoding, followed by the
// user data encoding when there is any. Object keys are encoded sorted.
func contentHash(record interface{}, userData map[string]interface{}) (string, error) {
	h := md5.New()
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to hash record: %w", err)
	}
	h.Write(data)
	if len(userData) > 0 {
		data, err = json.Marshal(userData)
		if err != nil {
			return "", fmt.Errorf("failed to hash user data: %w", err)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// joinKey renders a key tuple as one comma-separated value.
func joinKey(values []interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i], _ = sink.FormatCell(v)
	}
	return strings.Join(parts, ",")
}
