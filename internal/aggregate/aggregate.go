// Package aggregate defines aggregation operators: immutable descriptors shared
// across groups that create one fresh accumulator per group.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/paveg/tabula/internal/table"
)

// Aggregation operator identifiers
const (
	AggNameSum          = "sum"
	AggNameMean         = "mean"
	AggNameMin          = "min"
	AggNameMax          = "max"
	AggNameCount        = "count"
	AggNameMissingCount = "missing_count"
	AggNameFirst        = "first"
	AggNameLast         = "last"
	AggNameConcatenate  = "concatenate"
	AggNameUniqueCount  = "unique_count"
)

// Accumulator folds the values of one column of one group. Missing values
// arrive as nil. Result is called once, after the last Add.
type Accumulator interface {
	Add(v any)
	Result() any
}

// Operator describes an aggregation. It is immutable and shared by all groups.
type Operator struct {
	ID          string
	Description string
	// Applicable reports whether the operator accepts input columns of type t.
	Applicable func(t table.ValueType) bool
	// ResultType returns the output column type for input type t.
	ResultType func(t table.ValueType) table.ValueType
	// New creates a fresh accumulator for input type t.
	New func(t table.ValueType) Accumulator
}

// ColumnName returns the default output column name, e.g. "sum(price)".
func (o Operator) ColumnName(column string) string {
	return fmt.Sprintf("%s(%s)", o.ID, column)
}

// Registry maps operator ids to descriptors. It is passed explicitly to the
// grouping engine; there is no process-wide registry.
type Registry struct {
	ops map[string]Operator
}

// NewRegistry creates a registry holding ops.
func NewRegistry(ops ...Operator) (*Registry, error) {
	r := &Registry{ops: make(map[string]Operator, len(ops))}
	for _, op := range ops {
		if err := r.Register(op); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds op. Ids must be unique and the descriptor complete.
func (r *Registry) Register(op Operator) error {
	if op.ID == "" {
		return fmt.Errorf("aggregation operator without id")
	}
	if op.Applicable == nil || op.ResultType == nil || op.New == nil {
		return fmt.Errorf("aggregation operator %s is incomplete", op.ID)
	}
	if _, exists := r.ops[op.ID]; exists {
		return fmt.Errorf("duplicate aggregation operator %s", op.ID)
	}
	r.ops[op.ID] = op
	return nil
}

// Lookup returns the operator with id.
func (r *Registry) Lookup(id string) (Operator, bool) {
	op, ok := r.ops[id]
	return op, ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.ops))
	for id := range r.ops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Builtins returns a new registry with the built-in operators.
func Builtins() *Registry {
	r, err := NewRegistry(
		Sum(), Mean(), Min(), Max(),
		Count(), MissingCount(),
		First(), Last(),
		Concatenate(", "), UniqueCount(),
	)
	if err != nil {
		panic(err)
	}
	return r
}
