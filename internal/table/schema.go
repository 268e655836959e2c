package table

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
)

// RowKeyField is the Arrow field holding row keys in every MemTable record.
// It is not part of the user visible Schema.
const RowKeyField = "__row_key"

// Column describes one column of a schema.
type Column struct {
	Name string    `json:"name" yaml:"name"`
	Type ValueType `json:"type" yaml:"type"`
}

// Schema is an ordered list of uniquely named columns.
type Schema struct {
	columns []Column
	index   map[string]int
}

// NewSchema creates a schema. Duplicate names are rejected.
func NewSchema(columns ...Column) (*Schema, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", c.Name)
		}
		index[c.Name] = i
	}
	return &Schema{
		columns: append([]Column(nil), columns...),
		index:   index,
	}, nil
}

// MustSchema is NewSchema that panics on error. Intended for literals.
func MustSchema(columns ...Column) *Schema {
	s, err := NewSchema(columns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.columns) }

// Column returns the column at ordinal i.
func (s *Schema) Column(i int) Column { return s.columns[i] }

// Columns returns a copy of all columns in order.
func (s *Schema) Columns() []Column { return append([]Column(nil), s.columns...) }

// Names returns the column names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the ordinal of the named column.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// HasColumn reports whether the named column exists.
func (s *Schema) HasColumn(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Equal reports whether both schemas have the same names and types in the same order.
func (s *Schema) Equal(o *Schema) bool {
	if s.Len() != o.Len() {
		return false
	}
	for i := range s.columns {
		if s.columns[i] != o.columns[i] {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	parts := make([]string, len(s.columns))
	for i, c := range s.columns {
		parts[i] = fmt.Sprintf("%s:%s", c.Name, c.Type)
	}
	return "Schema[" + strings.Join(parts, ", ") + "]"
}

// ArrowSchema returns the Arrow schema of MemTable records: the row key
// field followed by one nullable field per column.
func (s *Schema) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(s.columns)+1)
	fields = append(fields, arrow.Field{Name: RowKeyField, Type: arrow.BinaryTypes.String})
	for _, c := range s.columns {
		fields = append(fields, arrow.Field{Name: c.Name, Type: c.Type.ArrowType(), Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

// SchemaFromArrow converts an Arrow schema. A leading RowKeyField is skipped.
func SchemaFromArrow(as *arrow.Schema) (*Schema, error) {
	columns := make([]Column, 0, as.NumFields())
	for i, f := range as.Fields() {
		if i == 0 && f.Name == RowKeyField {
			continue
		}
		vt, err := TypeFromArrow(f.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		columns = append(columns, Column{Name: f.Name, Type: vt})
	}
	return NewSchema(columns...)
}
