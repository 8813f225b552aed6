package mapper

import (
	"encoding/json"
	"errors"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-csvmap/internal/mapping"
	"go-csvmap/internal/sink"
)

const sampleData = `[
	{
		"timestamp": 1234567890,
		"id": 1,
		"text": "asdf",
		"user": {"id": 123, "username": "alois"},
		"reactions": [
			{"user": {"id": 456, "username": "jose"}},
			{"user": {"id": 789, "username": "mike"}}
		]
	}
]`

const sampleDataSimple = `[{"timestamp": 1234567890, "id": 1, "reactions": []}]`

const sampleDataMulti = `[
	{"id": 1, "timestamp": 1234567890, "reactions": []},
	{"id": 2, "timestamp": 9876543210, "reactions": []}
]`

const mixedData = `[
	{"id": 1, "arr": [1.1, 1.2]},
	{"id": 2, "arr": 2.1}
]`

const relationSpec = `{
	"id": {"type": "column", "mapping": {"destination": "pk", "primaryKey": true}},
	"timestamp": "timestamp",
	"reactions": {
		"type": "table",
		"destination": "reactions",
		"tableMapping": {"user.id": "id", "user.username": "username"}
	}
}`

var md5Hex = regexp.MustCompile(`^[0-9a-f]{32}$`)

func records(t *testing.T, data string) []interface{} {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var out []interface{}
	require.NoError(t, dec.Decode(&out))
	return out
}

func parseSpec(t *testing.T, data string) mapping.Spec {
	t.Helper()
	spec, err := mapping.Parse([]byte(data))
	require.NoError(t, err)
	return spec
}

func newMapper(t *testing.T, spec string, opts ...Option) (*Mapper, *sink.Memory) {
	t.Helper()
	mem := sink.NewMemory()
	opts = append([]Option{WithFactory(mem)}, opts...)
	return New(parseSpec(t, spec), opts...), mem
}

// collect opens every table of the tree and returns the memory tables by name.
func collect(t *testing.T, m *Mapper, mem *sink.Memory) map[string]*sink.MemoryTable {
	t.Helper()
	tables, err := m.GetTables()
	require.NoError(t, err)
	out := make(map[string]*sink.MemoryTable, len(tables))
	for name := range tables {
		mt, ok := mem.Table(name)
		require.True(t, ok, name)
		out[name] = mt
	}
	return out
}

func tableNames(t *testing.T, m *Mapper) []string {
	t.Helper()
	tables, err := m.Tables()
	require.NoError(t, err)
	var names []string
	for _, table := range tables {
		names = append(names, table.Name())
	}
	return names
}

func TestParse_Shorthand(t *testing.T) {
	m, mem := newMapper(t, `{"id": "id", "timestamp": "timestamp"}`)
	require.NoError(t, m.Parse(records(t, sampleData), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, "id,timestamp\n1,1234567890\n", tables["root"].CSV())
}

func TestParse_ShorthandWithRelation(t *testing.T) {
	m, mem := newMapper(t, relationSpec)
	require.NoError(t, m.Parse(records(t, sampleData), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, "pk,timestamp\n1,1234567890\n", tables["root"].CSV())
	assert.Equal(t, "id,username,root_pk\n456,jose,1\n789,mike,1\n", tables["reactions"].CSV())
}

func TestParse_EmptyRelation(t *testing.T) {
	tests := []struct {
		name string
		data string
		root string
	}{
		{name: "one row", data: sampleDataSimple, root: "pk,timestamp\n1,1234567890\n"},
		{name: "multiple rows", data: sampleDataMulti, root: "pk,timestamp\n1,1234567890\n2,9876543210\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, mem := newMapper(t, relationSpec)
			require.NoError(t, m.Parse(records(t, tt.data), nil))

			tables := collect(t, m, mem)
			assert.Equal(t, tt.root, tables["root"].CSV())
			assert.Equal(t, "id,username,root_pk\n", tables["reactions"].CSV())
		})
	}
}

func TestParse_EmptyRelationFew(t *testing.T) {
	data := `[
		{"id": 1, "timestamp": 1234567891, "reactions": []},
		{"id": 2, "timestamp": 1234567892, "reactions": [{"user": {"id": 456, "username": "jose"}}]},
		{"id": 3, "timestamp": 1234567893, "reactions": []},
		{"id": 4, "timestamp": 1234567894, "reactions": [{"user": {"id": 789, "username": "mary"}}]}
	]`

	m, mem := newMapper(t, relationSpec)
	require.NoError(t, m.Parse(records(t, data), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, "pk,timestamp\n1,1234567891\n2,1234567892\n3,1234567893\n4,1234567894\n", tables["root"].CSV())
	assert.Equal(t, "id,username,root_pk\n456,jose,2\n789,mary,4\n", tables["reactions"].CSV())
}

func TestParse_WrongPaths(t *testing.T) {
	t.Run("main", func(t *testing.T) {
		m, mem := newMapper(t, `{"nonExistent1": "nonExistent1", "nonExistent2": "nonExistent2"}`)
		require.NoError(t, m.Parse(records(t, sampleDataMulti), nil))

		tables := collect(t, m, mem)
		assert.Equal(t, "nonExistent1,nonExistent2\n,\n,\n", tables["root"].CSV())
	})

	t.Run("relation", func(t *testing.T) {
		spec := `{
			"id": {"type": "column", "mapping": {"destination": "pk", "primaryKey": true}},
			"timestamp": "timestamp",
			"nonexistent": {
				"type": "table",
				"destination": "nonexistent",
				"tableMapping": {"user.id": "id", "user.username": "username"}
			}
		}`
		m, mem := newMapper(t, spec)
		require.NoError(t, m.Parse(records(t, sampleDataMulti), nil))

		tables := collect(t, m, mem)
		assert.Equal(t, "pk,timestamp\n1,1234567890\n2,9876543210\n", tables["root"].CSV())
		assert.Equal(t, "id,username,root_pk\n,,1\n,,2\n", tables["nonexistent"].CSV())
	})

	t.Run("main and relation", func(t *testing.T) {
		spec := `{
			"nonexistent1": {"type": "column", "mapping": {"destination": "nonexistent1", "primaryKey": true}},
			"nonexistent2": "nonexistent2",
			"nonexistent3": {
				"type": "table",
				"destination": "nonexistent3",
				"tableMapping": {"user.id": "id", "user.username": "username"}
			}
		}`
		m, mem := newMapper(t, spec)
		require.NoError(t, m.Parse(records(t, sampleDataSimple), nil))

		tables := collect(t, m, mem)
		assert.Equal(t, "nonexistent1,nonexistent2\n,\n", tables["root"].CSV())
		assert.Equal(t, "id,username,root_pk\n,,\n", tables["nonexistent3"].CSV())
	})
}

func TestParse_PrimaryKeyAndRelation(t *testing.T) {
	spec := `{
		"timestamp": {"type": "column", "mapping": {"destination": "timestamp"}},
		"id": {"type": "column", "mapping": {"destination": "post_id", "primaryKey": true}},
		"user.id": {"type": "column", "mapping": {"destination": "user_id"}},
		"reactions": {
			"type": "table",
			"destination": "post_reactions",
			"tableMapping": {
				"user/id": {"type": "column", "mapping": {"destination": "user_id"}, "delimiter": "/"}
			}
		}
	}`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, sampleData), nil))

	assert.Equal(t, []string{"root", "post_reactions"}, tableNames(t, m))

	tables := collect(t, m, mem)
	assert.Equal(t, "timestamp,post_id,user_id\n1234567890,1,123\n", tables["root"].CSV())
	assert.Equal(t, []string{"post_id"}, tables["root"].PrimaryKey())
	assert.Equal(t, "user_id,root_pk\n456,1\n789,1\n", tables["post_reactions"].CSV())
}

func TestParse_NoPrimaryKey(t *testing.T) {
	spec := `{
		"timestamp": {"type": "column", "mapping": {"destination": "timestamp"}},
		"id": {"type": "column", "mapping": {"destination": "post_id"}},
		"user.id": {"type": "column", "mapping": {"destination": "user_id"}},
		"reactions": {
			"type": "table",
			"destination": "post_reactions",
			"tableMapping": {"user.id": {"type": "column", "mapping": {"destination": "user_id"}}}
		}
	}`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, sampleData), nil))

	tables := collect(t, m, mem)
	root := tables["root"]
	assert.Equal(t, []string{"timestamp", "post_id", "user_id", "post_reactions"}, root.Header())
	assert.Empty(t, root.PrimaryKey())

	rows := root.Rows()
	require.Len(t, rows, 1)
	hash := rows[0][3]
	assert.Regexp(t, md5Hex, hash)
	assert.Equal(t, []string{"1234567890", "1", "123", hash}, rows[0])

	assert.Equal(t, [][]string{{"456", hash}, {"789", hash}}, tables["post_reactions"].Rows())
}

func TestParse_CompositePrimaryKey(t *testing.T) {
	spec := `{
		"timestamp": {"type": "column", "mapping": {"destination": "timestamp"}},
		"id": {"type": "column", "mapping": {"destination": "post_id", "primaryKey": true}},
		"user.id": {"type": "column", "mapping": {"destination": "user_id", "primaryKey": true}},
		"reactions": {
			"type": "table",
			"destination": "post_reactions",
			"tableMapping": {"user.id": {"type": "column", "mapping": {"destination": "user_id"}}}
		}
	}`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, sampleData), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, []string{"post_id", "user_id"}, tables["root"].PrimaryKey())
	assert.Equal(t, [][]string{{"456", "1,123"}, {"789", "1,123"}}, tables["post_reactions"].Rows())
}

func TestParse_BoolCellsAndKeys(t *testing.T) {
	spec := `{
		"id": {"type": "column", "mapping": {"destination": "id", "primaryKey": true}},
		"active": {"type": "column", "mapping": {"destination": "active", "primaryKey": true}},
		"tags": {"type": "table", "destination": "tags", "tableMapping": {"": "tag"}}
	}`
	data := `[
		{"id": 1, "active": true, "tags": ["a"]},
		{"id": 2, "active": false, "tags": ["b"]}
	]`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, data), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, "id,active\n1,1\n2,\n", tables["root"].CSV())
	assert.Equal(t, [][]string{{"a", "1,1"}, {"b", "2,"}}, tables["tags"].Rows())
}

func TestParse_ParentKeyPrimaryKey(t *testing.T) {
	spec := `{
		"id": {"type": "column", "mapping": {"destination": "post_id", "primaryKey": true}},
		"reactions": {
			"type": "table",
			"destination": "post_reactions",
			"tableMapping": {"user.id": {"type": "column", "mapping": {"destination": "user_id", "primaryKey": true}}},
			"parentKey": {"primaryKey": true}
		}
	}`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, sampleData), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, []string{"user_id", "root_pk"}, tables["post_reactions"].PrimaryKey())
	assert.Equal(t, "user_id,root_pk\n456,1\n789,1\n", tables["post_reactions"].CSV())
}

func TestParse_ParentKeyDestination(t *testing.T) {
	spec := `{
		"id": {"type": "column", "mapping": {"destination": "post_id", "primaryKey": true}},
		"reactions": {
			"type": "table",
			"destination": "post_reactions",
			"tableMapping": {"user.id": {"type": "column", "mapping": {"destination": "user_id", "primaryKey": true}}},
			"parentKey": {"destination": "post_id"}
		}
	}`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, sampleData), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, []string{"user_id", "post_id"}, tables["post_reactions"].Header())
	assert.Equal(t, "user_id,post_id\n456,1\n789,1\n", tables["post_reactions"].CSV())
}

func TestParse_EmptyArrayWithoutPrimaryKey(t *testing.T) {
	spec := `{
		"id": {"mapping": {"destination": "id"}},
		"arr": {
			"type": "table",
			"destination": "children",
			"tableMapping": {"child_id": {"mapping": {"destination": "child_id"}}}
		}
	}`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, `[{"id": 1}, {"id": 2, "arr": []}]`), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, "id,children\n1,\n2,\n", tables["root"].CSV())
	assert.Equal(t, []string{"child_id"}, tables["children"].Header())
	assert.Equal(t, 0, tables["children"].RowCount())
}

func TestParse_FalsyRelationWithoutPrimaryKey(t *testing.T) {
	spec := `{
		"id": "id",
		"rel": {"type": "table", "destination": "child", "tableMapping": {"": "v"}}
	}`
	data := `[
		{"id": 1, "rel": 0},
		{"id": 2, "rel": "0"},
		{"id": 3, "rel": false},
		{"id": 4, "rel": 0.0},
		{"id": 5, "rel": 7}
	]`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, data), nil))

	tables := collect(t, m, mem)
	rows := tables["root"].Rows()
	require.Len(t, rows, 5)
	for _, row := range rows[:4] {
		assert.Equal(t, "", row[1], "row %s", row[0])
	}
	assert.Regexp(t, md5Hex, rows[4][1])

	require.Equal(t, 1, tables["child"].RowCount())
	assert.Equal(t, [][]string{{"7", rows[4][1]}}, tables["child"].Rows())
}

func TestParse_EmptyString(t *testing.T) {
	spec := `{"id": {"mapping": {"destination": "id"}}, "str": {"mapping": {"destination": "text"}}}`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, `[{"id": 1, "str": "asdf"}, {"id": 2}]`), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, "id,text\n1,asdf\n2,\n", tables["root"].CSV())
}

func TestParse_Date(t *testing.T) {
	spec := `{
		"id": {"mapping": {"destination": "id"}},
		"birthDate": {"type": "date", "mapping": {"destination": "birthTime"}}
	}`
	data := `[
		{"id": 1, "birthDate": "1963-07-10T00:00:00.000Z"},
		{"id": 2},
		{"id": 3, "birthDate": "not a date"},
		{"id": 4, "birthDate": 42}
	]`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, data), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, "id,birthTime\n1,-204508800\n2,\n3,not a date\n4,42\n", tables["root"].CSV())
}

func TestParse_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr string
	}{
		{
			name:    "column without destination",
			spec:    `{"timestamp": {"type": "column"}}`,
			wantErr: `key "mapping.destination" is not set for column "timestamp"`,
		},
		{
			name:    "table without destination",
			spec:    `{"arr": {"type": "table"}}`,
			wantErr: `key "destination" is not set for table "arr"`,
		},
		{
			name:    "table without table mapping",
			spec:    `{"reactions": {"type": "table", "destination": "children"}}`,
			wantErr: `key "tableMapping" is not set for table "reactions"`,
		},
		{
			name:    "nested table without destination",
			spec:    `{"reactions": {"type": "table", "tableMapping": {"child_id": {"mapping": {"destination": "child_id"}}}}}`,
			wantErr: `key "destination" is not set for table "reactions"`,
		},
		{
			name:    "self reference with parent key",
			spec:    `{"id": "id", "child": {"type": "table", "destination": "root"}}`,
			wantErr: `'parentKey.disable' must be true to parse child values into parent's table`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newMapper(t, tt.spec)
			err := m.Parse(records(t, sampleData), nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, mapping.ErrBadConfig))
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestParse_NonScalarPrimaryKey(t *testing.T) {
	spec := `{
		"_id": {"type": "column", "mapping": {"destination": "id", "primaryKey": true}},
		"coord": {"type": "table", "destination": "coord", "tableMapping": {"a": "a"}}
	}`
	data := `[{"_id": {"$oid": "5716054bee6e764c94fa85a6"}, "coord": [{"a": 1}, {"a": 2}]}]`

	m, _ := newMapper(t, spec)
	err := m.Parse(records(t, data), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, mapping.ErrBadConfig))
	assert.EqualError(t, err, `only scalar values are allowed in primary key, primary key: [{"$oid":"5716054bee6e764c94fa85a6"}]`)
}

func TestParse_UserData(t *testing.T) {
	t.Run("injection", func(t *testing.T) {
		spec := `{"id": {"mapping": {"destination": "id"}}, "userData": {"type": "user", "mapping": {"destination": "userCol"}}}`
		m, mem := newMapper(t, spec)
		require.NoError(t, m.Parse(records(t, sampleData), map[string]interface{}{"userData": "blah"}))

		tables := collect(t, m, mem)
		assert.Equal(t, "id,userCol\n1,blah\n", tables["root"].CSV())
	})

	t.Run("no user data", func(t *testing.T) {
		spec := `{"id": {"mapping": {"destination": "id"}}, "userData": {"type": "user", "mapping": {"destination": "userCol"}}}`
		m, mem := newMapper(t, spec)
		require.NoError(t, m.Parse(records(t, sampleData), nil))

		tables := collect(t, m, mem)
		assert.Equal(t, "id,userCol\n1,\n", tables["root"].CSV())
	})

	t.Run("primary key", func(t *testing.T) {
		spec := `{
			"id": {"mapping": {"destination": "id", "primaryKey": true}},
			"reactions": {
				"type": "table",
				"destination": "post_reactions",
				"tableMapping": {"user.id": {"type": "column", "mapping": {"destination": "user_id"}}}
			},
			"userData": {"type": "user", "mapping": {"destination": "userCol", "primaryKey": true}}
		}`
		m, mem := newMapper(t, spec)
		require.NoError(t, m.Parse(records(t, sampleData), map[string]interface{}{"userData": "blah"}))

		tables := collect(t, m, mem)
		assert.Equal(t, "id,userCol\n1,blah\n", tables["root"].CSV())
		assert.Equal(t, []string{"id", "userCol"}, tables["root"].PrimaryKey())
		assert.Equal(t, [][]string{{"456", "1,blah"}, {"789", "1,blah"}}, tables["post_reactions"].Rows())
	})

	t.Run("propagation", func(t *testing.T) {
		spec := `{
			"id": {"mapping": {"destination": "id"}},
			"user": {
				"type": "table",
				"destination": "users",
				"tableMapping": {
					"id": {"mapping": {"destination": "id", "primaryKey": true}},
					"username": {"mapping": {"destination": "username"}},
					"keboola_source": {"type": "user", "mapping": {"destination": "keboola_source"}}
				},
				"parentKey": {"disable": true}
			},
			"user.id": {"mapping": {"destination": "user_id"}},
			"keboola_source": {"type": "user", "mapping": {"destination": "keboola_source"}}
		}`
		m, mem := newMapper(t, spec)
		require.NoError(t, m.Parse(records(t, sampleData), map[string]interface{}{"keboola_source": "search"}))

		tables := collect(t, m, mem)
		assert.Equal(t, "id,user_id,keboola_source\n1,123,search\n", tables["root"].CSV())
		assert.Equal(t, "id,username,keboola_source\n123,alois,search\n", tables["users"].CSV())
	})
}

func TestParse_ObjectToTable(t *testing.T) {
	spec := `{
		"id": {"mapping": {"destination": "id"}},
		"user": {
			"type": "table",
			"destination": "users",
			"tableMapping": {
				"id": {"mapping": {"destination": "id", "primaryKey": true}},
				"username": {"mapping": {"destination": "username"}}
			},
			"parentKey": {"disable": true}
		},
		"user.id": {"mapping": {"destination": "user_id"}}
	}`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, sampleData), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, "id,user_id\n1,123\n", tables["root"].CSV())
	assert.Equal(t, "id,username\n123,alois\n", tables["users"].CSV())
}

func TestParse_DisableParentKey(t *testing.T) {
	spec := `{
		"id": {"type": "column", "mapping": {"destination": "post_id"}},
		"reactions": {
			"type": "table",
			"destination": "post_reactions",
			"tableMapping": {"user.id": {"type": "column", "mapping": {"destination": "user_id"}}},
			"parentKey": {"disable": true}
		}
	}`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, sampleData), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, "post_id\n1\n", tables["root"].CSV())
	assert.Equal(t, "user_id\n456\n789\n", tables["post_reactions"].CSV())
}

func TestParse_ChildFoldsIntoSameTable(t *testing.T) {
	spec := `{
		"id": {"mapping": {"destination": "post_id"}},
		"child": {"type": "table", "destination": "items", "parentKey": {"disable": true}},
		"arrChild": {"type": "table", "destination": "items", "parentKey": {"disable": true}}
	}`
	data := `[{"id": 1, "child": {"id": 1.1}, "arrChild": [{"id": "1.2"}]}]`

	m, mem := newMapper(t, spec, WithTableName("items"))
	require.NoError(t, m.Parse(records(t, data), nil))

	assert.Equal(t, []string{"items"}, tableNames(t, m))
	tables := collect(t, m, mem)
	assert.Equal(t, "post_id\n1.1\n1.2\n1\n", tables["items"].CSV())
}

func TestParse_ArrayItemToColumn(t *testing.T) {
	m, mem := newMapper(t, `{"arr.0": {"mapping": {"destination": "first_arr_item"}}}`)
	require.NoError(t, m.Parse(records(t, `[{"arr": ["one", "two"]}]`), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, "first_arr_item\none\n", tables["root"].CSV())
}

func TestParse_BadData(t *testing.T) {
	t.Run("object", func(t *testing.T) {
		m, _ := newMapper(t, `{"user": {"mapping": {"destination": "user"}}}`)
		err := m.Parse(records(t, sampleData), nil)

		var badData *BadDataError
		require.True(t, errors.As(err, &badData))
		assert.True(t, errors.Is(err, ErrBadData))
		assert.True(t, errors.Is(err, sink.ErrNonScalarCell))
		assert.Equal(t, "root", badData.Table)
		assert.Equal(t, map[string]string{"user": "object"}, badData.BadColumns)
		assert.EqualError(t, err, `error writing "user" column: cannot write data into column: object`)
	})

	t.Run("array", func(t *testing.T) {
		m, _ := newMapper(t, `{"id": "id", "arr": {"type": "column", "mapping": {"destination": "arrStr"}}}`)
		err := m.Parse(records(t, mixedData), nil)
		assert.EqualError(t, err, `error writing "arrStr" column: cannot write data into column: array`)
	})

	t.Run("several columns", func(t *testing.T) {
		m, _ := newMapper(t, `{"user": "user", "id": "id", "reactions": "reactions"}`)
		err := m.Parse(records(t, sampleData), nil)

		var badData *BadDataError
		require.True(t, errors.As(err, &badData))
		assert.Equal(t, []string{"user", "reactions"}, badData.Columns)
		assert.Equal(t, map[string]string{"user": "object", "reactions": "array"}, badData.BadColumns)
	})
}

func TestParse_DeepNestedTables(t *testing.T) {
	spec := `{
		"id": "id",
		"child": {
			"type": "table",
			"destination": "child",
			"tableMapping": {
				"id": "cid",
				"grandchild": {"type": "table", "destination": "grandchild", "tableMapping": {"id": "gcid"}}
			}
		}
	}`
	data := `[{"id": 1, "child": [{"id": 2, "grandchild": [{"id": 3}]}]}]`

	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, data), nil))

	assert.Equal(t, []string{"root", "child", "grandchild"}, tableNames(t, m))

	tables := collect(t, m, mem)
	childRows := tables["child"].Rows()
	require.Len(t, childRows, 1)
	assert.Equal(t, []string{"cid", "grandchild", "root_pk"}, tables["child"].Header())
	assert.Equal(t, "2", childRows[0][0])
	assert.Regexp(t, md5Hex, childRows[0][1])
	assert.Equal(t, tables["root"].Rows()[0][1], childRows[0][2])
	assert.Equal(t, [][]string{{"3", childRows[0][1]}}, tables["grandchild"].Rows())
}

func TestParse_KeyChainAcrossThreeLevels(t *testing.T) {
	spec := `{
		"id": {"mapping": {"destination": "id", "primaryKey": true}},
		"child": {
			"type": "table",
			"destination": "child",
			"tableMapping": {
				"id": {"mapping": {"destination": "cid", "primaryKey": true}},
				"grandchild": {
					"type": "table",
					"destination": "grandchild",
					"tableMapping": {"id": {"mapping": {"destination": "gcid", "primaryKey": true}}},
					"parentKey": {"primaryKey": true}
				}
			},
			"parentKey": {"primaryKey": true}
		}
	}`
	data := `[
		{"id": 1, "child": [{"id": 2, "grandchild": [{"id": 3}, {"id": 4}]}]},
		{"id": 5, "child": [{"id": 6, "grandchild": [{"id": 7}]}]}
	]`

	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, data), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, "id\n1\n5\n", tables["root"].CSV())
	assert.Equal(t, []string{"cid", "root_pk"}, tables["child"].PrimaryKey())
	assert.Equal(t, [][]string{{"2", "1"}, {"6", "5"}}, tables["child"].Rows())
	assert.Equal(t, []string{"gcid", "child_pk"}, tables["grandchild"].PrimaryKey())
	assert.Equal(t, [][]string{{"3", "2,1"}, {"4", "2,1"}, {"7", "6,5"}}, tables["grandchild"].Rows())
}

func TestParse_ForceType(t *testing.T) {
	spec := `{"id": "id", "arr": {"type": "column", "mapping": {"destination": "str"}, "forceType": true}}`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, mixedData), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, [][]string{{"1", "[1.1,1.2]"}, {"2", "2.1"}}, tables["root"].Rows())
	assert.Equal(t, "id,str\n1,\"[1.1,1.2]\"\n2,2.1\n", tables["root"].CSV())
}

func TestParse_ScalarsToTable(t *testing.T) {
	t.Run("dot path", func(t *testing.T) {
		spec := `{
			"id": {"mapping": {"destination": "id", "primaryKey": true}},
			"arr": {"type": "table", "destination": "arr", "tableMapping": {".": "data"}}
		}`
		m, mem := newMapper(t, spec)
		require.NoError(t, m.Parse(records(t, mixedData), nil))

		tables := collect(t, m, mem)
		assert.Equal(t, "id\n1\n2\n", tables["root"].CSV())
		assert.Equal(t, "data,root_pk\n1.1,1\n1.2,1\n2.1,2\n", tables["arr"].CSV())
	})

	t.Run("empty path", func(t *testing.T) {
		spec := `{
			"id": {"type": "column", "mapping": {"destination": "id", "primaryKey": true}},
			"title": "title",
			"actors": {"type": "table", "destination": "actor", "tableMapping": {"": "name"}}
		}`
		data := `[
			{"id": 1, "title": "Rush", "actors": ["Daniel Bruhl", "Chris Hemsworth", "Olivia Wilde"]},
			{"id": 2, "title": "Prisoners", "actors": ["Hugh Jackman", "Jake Gyllenhaal", "Viola Davis"]},
			{"id": 3, "title": "Insidious 2", "actors": ["Patrick Wilson", "Rose Byrne", "Barbara Hershey"]}
		]`
		m, mem := newMapper(t, spec)
		require.NoError(t, m.Parse(records(t, data), nil))

		tables := collect(t, m, mem)
		assert.Len(t, tables, 2)
		assert.Equal(t, "id,title\n1,Rush\n2,Prisoners\n3,Insidious 2\n", tables["root"].CSV())
		assert.Equal(t, "name,root_pk\n"+
			"Daniel Bruhl,1\nChris Hemsworth,1\nOlivia Wilde,1\n"+
			"Hugh Jackman,2\nJake Gyllenhaal,2\nViola Davis,2\n"+
			"Patrick Wilson,3\nRose Byrne,3\nBarbara Hershey,3\n", tables["actor"].CSV())
	})
}

func TestParse_ArrayToTable(t *testing.T) {
	spec := `{
		"rows": {
			"type": "table",
			"destination": "report-rows",
			"tableMapping": {
				"0": {"type": "column", "mapping": {"destination": "date"}},
				"1": {"type": "column", "mapping": {"destination": "clicks"}}
			}
		}
	}`
	data := `[{"rows": [["2017-05-27", "83008"], ["2017-05-28", "105723"]]}]`

	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, data), nil))

	tables := collect(t, m, mem)
	rows := tables["report-rows"].Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"date", "clicks", "root_pk"}, tables["report-rows"].Header())
	assert.Equal(t, []string{"2017-05-27", "83008"}, rows[0][:2])
	assert.Equal(t, []string{"2017-05-28", "105723"}, rows[1][:2])
	assert.Regexp(t, md5Hex, rows[0][2])
	assert.Equal(t, rows[0][2], rows[1][2])
	assert.Equal(t, [][]string{{rows[0][2]}}, tables["root"].Rows())
}

func TestParse_WithoutHeader(t *testing.T) {
	m, mem := newMapper(t, `{"id": "id", "timestamp": "time"}`, WithWriteHeader(false))
	require.NoError(t, m.Parse(records(t, sampleDataSimple), nil))

	tables := collect(t, m, mem)
	assert.Equal(t, "1,1234567890\n", tables["root"].CSV())
	assert.Equal(t, []string{"id", "time"}, tables["root"].Header())
}

func TestParse_ZeroRecordsCreatesTable(t *testing.T) {
	m, mem := newMapper(t, relationSpec)
	require.NoError(t, m.Parse(nil, nil))

	root, ok := mem.Table("root")
	require.True(t, ok)
	assert.Equal(t, "pk,timestamp\n", root.CSV())
	assert.Equal(t, []string{"root"}, mem.Names())
}

func TestParseRow(t *testing.T) {
	m, mem := newMapper(t, relationSpec)
	for _, record := range records(t, sampleDataMulti) {
		require.NoError(t, m.ParseRow(record, nil))
	}

	tables := collect(t, m, mem)
	assert.Equal(t, "pk,timestamp\n1,1234567890\n2,9876543210\n", tables["root"].CSV())
}

func TestParse_ContradictingLinks(t *testing.T) {
	spec := `{
		"id": {"mapping": {"destination": "id", "primaryKey": true}},
		"a": {"type": "table", "destination": "shared", "tableMapping": {"x": "x"}},
		"b": {"type": "table", "destination": "shared", "tableMapping": {"x": "x"}, "parentKey": {"destination": "other_pk"}}
	}`
	m, _ := newMapper(t, spec)
	err := m.Parse(records(t, `[{"id": 1, "a": [{"x": 1}], "b": [{"x": 2}]}]`), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, mapping.ErrBadConfig))
}

func TestParse_SiblingsShareTable(t *testing.T) {
	spec := `{
		"id": {"mapping": {"destination": "id", "primaryKey": true}},
		"a": {"type": "table", "destination": "shared", "tableMapping": {"x": "x"}},
		"b": {"type": "table", "destination": "shared", "tableMapping": {"x": "x"}}
	}`
	m, mem := newMapper(t, spec)
	require.NoError(t, m.Parse(records(t, `[{"id": 1, "a": [{"x": 1}], "b": {"x": 2}}]`), nil))

	assert.Equal(t, []string{"root", "shared"}, tableNames(t, m))
	tables := collect(t, m, mem)
	assert.Equal(t, "x,root_pk\n1,1\n2,1\n", tables["shared"].CSV())
}

func TestNew_DefaultFactoryWritesCSV(t *testing.T) {
	m := New(parseSpec(t, `{"id": "id"}`))
	require.NoError(t, m.Parse(records(t, sampleDataSimple), nil))
	require.NoError(t, m.Close())

	tables, err := m.GetTables()
	require.NoError(t, err)
	path := tables["root"].Pathname()
	t.Cleanup(func() { os.RemoveAll(strings.TrimSuffix(path, "/root.csv")) })

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(content))
}

func TestContentHash(t *testing.T) {
	a := map[string]interface{}{"id": json.Number("1"), "b": "x"}
	b := map[string]interface{}{"b": "x", "id": json.Number("1")}

	h1, err := contentHash(a, nil)
	require.NoError(t, err)
	h2, err := contentHash(b, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := contentHash(a, map[string]interface{}{"source": "search"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, isEmpty(nil))
	assert.True(t, isEmpty(""))
	assert.True(t, isEmpty([]interface{}{}))
	assert.True(t, isEmpty(map[string]interface{}{}))
	assert.True(t, isEmpty([]string{}))
	assert.True(t, isEmpty(json.Number("0")))
	assert.True(t, isEmpty(json.Number("0.0")))
	assert.True(t, isEmpty(json.Number("-0")))
	assert.True(t, isEmpty("0"))
	assert.True(t, isEmpty(false))
	assert.True(t, isEmpty(0))
	assert.True(t, isEmpty(0.0))
	assert.True(t, isEmpty(uint8(0)))

	assert.False(t, isEmpty(json.Number("0.5")))
	assert.False(t, isEmpty("0.0"))
	assert.False(t, isEmpty(" "))
	assert.False(t, isEmpty(true))
	assert.False(t, isEmpty(-1))
	assert.False(t, isEmpty([]interface{}{nil}))
}
