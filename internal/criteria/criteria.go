// Package criteria models filter settings: the individual criteria, how they
// combine, and which rows the first output receives.
package criteria

import (
	"fmt"
	"strings"

	"github.com/paveg/tabula/internal/predicate"
	"github.com/paveg/tabula/internal/table"
)

// Target selects what a criterion tests: a named column, the row key or the row number.
type Target struct {
	Kind   predicate.TargetKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Column string               `json:"column,omitempty" yaml:"column,omitempty"`
}

// ColumnTarget targets the named column.
func ColumnTarget(name string) Target { return Target{Kind: predicate.TargetColumn, Column: name} }

// RowKeyTarget targets the row key.
func RowKeyTarget() Target { return Target{Kind: predicate.TargetRowKey} }

// RowNumberTarget targets the 1-based row number.
func RowNumberTarget() Target { return Target{Kind: predicate.TargetRowNumber} }

func (t Target) String() string {
	if t.Kind == predicate.TargetColumn {
		return t.Column
	}
	return t.Kind.String()
}

// Criterion is a single filter condition.
type Criterion struct {
	Target   Target             `json:"target" yaml:"target"`
	Operator predicate.Operator `json:"operator" yaml:"operator"`
	// Values holds the comparison value; at most one is used.
	Values []any `json:"values,omitempty" yaml:"values,omitempty"`
	// IgnoreCase disables case-sensitive string equality and pattern matching.
	IgnoreCase bool `json:"ignore_case,omitempty" yaml:"ignore_case,omitempty"`
}

// Value returns the comparison value, nil if none was given.
func (c Criterion) Value() any {
	if len(c.Values) == 0 {
		return nil
	}
	return c.Values[0]
}

// IsRowNumber reports whether the criterion only depends on the row offset.
func (c Criterion) IsRowNumber() bool {
	return c.Target.Kind == predicate.TargetRowNumber
}

func (c Criterion) String() string {
	if c.Operator.Arity() == 0 {
		return fmt.Sprintf("%s %s", c.Target, c.Operator)
	}
	return fmt.Sprintf("%s %s %v", c.Target, c.Operator, c.Value())
}

// Combination joins all criteria of a filter.
type Combination int

const (
	And Combination = iota
	Or
)

func (c Combination) String() string {
	if c == Or {
		return "OR"
	}
	return "AND"
}

// MarshalText implements encoding.TextMarshaler.
func (c Combination) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Combination) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "AND", "":
		*c = And
	case "OR":
		*c = Or
	default:
		return fmt.Errorf("unknown criteria combination %q", string(text))
	}
	return nil
}

// OutputMode decides which rows the first output receives.
type OutputMode int

const (
	Matching OutputMode = iota
	NonMatching
)

func (m OutputMode) String() string {
	if m == NonMatching {
		return "NON_MATCHING"
	}
	return "MATCHING"
}

// MarshalText implements encoding.TextMarshaler.
func (m OutputMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *OutputMode) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "MATCHING", "INCLUDE", "":
		*m = Matching
	case "NON_MATCHING", "EXCLUDE":
		*m = NonMatching
	default:
		return fmt.Errorf("unknown output mode %q", string(text))
	}
	return nil
}

// Settings is a complete filter configuration.
type Settings struct {
	Criteria    []Criterion `json:"criteria" yaml:"criteria"`
	Combination Combination `json:"combination" yaml:"combination"`
	OutputMode  OutputMode  `json:"output_mode" yaml:"output_mode"`
}

// DefaultSettings returns a single criterion on the last column of schema:
// IS_TRUE for booleans, otherwise EQ against the zero value of the column type.
// A schema without columns yields empty settings, which fail validation.
func DefaultSettings(schema *table.Schema) Settings {
	if schema.Len() == 0 {
		return Settings{}
	}
	col := schema.Column(schema.Len() - 1)
	c := Criterion{Target: ColumnTarget(col.Name), Operator: predicate.OpEQ}
	switch col.Type {
	case table.TypeBool:
		c.Operator = predicate.OpIsTrue
	case table.TypeInt64:
		c.Values = []any{int64(0)}
	case table.TypeFloat64:
		c.Values = []any{0.0}
	default:
		c.Values = []any{""}
	}
	return Settings{Criteria: []Criterion{c}}
}

// Split separates row-number criteria from the others, preserving order.
func (s Settings) Split() (rowNumber, data []Criterion) {
	for _, c := range s.Criteria {
		if c.IsRowNumber() {
			rowNumber = append(rowNumber, c)
		} else {
			data = append(data, c)
		}
	}
	return rowNumber, data
}

// IsAnd reports whether criteria combine with AND.
func (s Settings) IsAnd() bool { return s.Combination == And }
