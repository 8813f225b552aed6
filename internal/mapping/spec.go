// Package mapping describes how hierarchical records map onto flat tables.
//
// A Spec is an ordered list of entries, each pairing a source path with a
// Directive. The order of entries is the column order of the output table.
package mapping

// Type names used in mapping files.
const (
	TypeColumn = "column"
	TypeTable  = "table"
	TypeUser   = "user"
	TypeDate   = "date"
)

// Directive is one mapping rule. It is a closed set: Column, Table, User and Date.
type Directive interface {
	directive()
	// Type returns the mapping-file name of the directive kind.
	Type() string
}

// Column writes the value found at the source path into a column.
type Column struct {
	Destination string
	PrimaryKey  bool
	Delimiter   string
	// ForceType serializes objects and arrays into JSON text instead of
	// rejecting the row.
	ForceType bool
}

// Table maps the value found at the source path into a child table.
type Table struct {
	Destination string
	Mapping     Spec
	Delimiter   string
	ParentKey   ParentKey
}

// ParentKey configures the column linking child rows to their parent row.
type ParentKey struct {
	// Disable omits the parent-key column from the child table.
	Disable bool
	// Destination overrides the default "<parent table>_pk" column name.
	Destination string
	// PrimaryKey appends the parent-key column to the child's primary key.
	PrimaryKey bool
}

// User writes a value taken from the user data instead of the record.
type User struct {
	Destination string
	PrimaryKey  bool
}

// Date parses a date/time string into Unix seconds.
type Date struct {
	Destination string
	Delimiter   string
}

func (Column) directive() {}
func (Table) directive()  {}
func (User) directive()   {}
func (Date) directive()   {}

func (Column) Type() string { return TypeColumn }
func (Table) Type() string  { return TypeTable }
func (User) Type() string   { return TypeUser }
func (Date) Type() string   { return TypeDate }

// Entry pairs a source path with its directive.
type Entry struct {
	Path      string
	Directive Directive
}

// Spec is the ordered mapping of one table.
type Spec []Entry

// Shorthand is the expanded form of a bare-string mapping entry.
func Shorthand(destination string) Column {
	return Column{Destination: destination}
}

// Delimiter returns the path delimiter configured for a directive, or "" for
// the default.
func Delimiter(d Directive) string {
	switch d := d.(type) {
	case Column:
		return d.Delimiter
	case Table:
		return d.Delimiter
	case Date:
		return d.Delimiter
	default:
		return ""
	}
}

// Lookup returns the directive mapped from path.
func (s Spec) Lookup(path string) (Directive, bool) {
	for _, e := range s {
		if e.Path == path {
			return e.Directive, true
		}
	}
	return nil, false
}

// IsSelfReference reports whether the table folds its rows back into the
// table named current.
func (t Table) IsSelfReference(current string) bool {
	return t.Destination != "" && t.Destination == current
}

// ParentKeyColumn returns the name of the column injected into child rows
// when the parent table is named parent.
func (t Table) ParentKeyColumn(parent string) string {
	if t.ParentKey.Destination != "" {
		return t.ParentKey.Destination
	}
	return parent + "_pk"
}
