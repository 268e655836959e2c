// Package groupby partitions a table into groups by a composite key and
// computes aggregate values per group, either in memory or by an external sort.
package groupby

import (
	"fmt"

	"github.com/paveg/tabula/internal/aggregate"
	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/table"
	"github.com/paveg/tabula/internal/validation"
)

const opGroupBy = "GroupBy"

// Aggregation computes one output column from one input column.
type Aggregation struct {
	Column   string `json:"column" yaml:"column"`
	Operator string `json:"operator" yaml:"operator"`
	// Name of the output column, "<operator>(<column>)" when empty.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Spec describes a grouping.
type Spec struct {
	GroupBy      []string      `json:"group_by" yaml:"group_by"`
	Aggregations []Aggregation `json:"aggregations" yaml:"aggregations"`
	// CountColumn adds an int64 column with the rows per group when set.
	CountColumn string `json:"count_column,omitempty" yaml:"count_column,omitempty"`
	// Hilite records the source offsets contributing to each group.
	Hilite bool `json:"hilite,omitempty" yaml:"hilite,omitempty"`
}

type resolvedAggregation struct {
	op     aggregate.Operator
	input  int // projected column
	typ    table.ValueType
	output string
}

// plan is a Spec resolved against a schema. Rows are projected to the
// needed columns before they reach the engines.
type plan struct {
	spec       Spec
	needed     []int // source ordinals of the projected columns
	projection *table.Schema
	groupIdx   []int // projected ordinals of the group columns
	groupTypes []table.ValueType
	aggs       []resolvedAggregation
	output     *table.Schema
}

func resolve(schema *table.Schema, spec Spec, registry *aggregate.Registry) (*plan, error) {
	if registry == nil {
		return nil, errors.NewConfigurationError(opGroupBy, "", "no aggregation registry")
	}
	err := validation.NewCompoundValidator(
		validation.NewColumnValidator(schema, opGroupBy, spec.GroupBy...),
		validation.NewUniqueValidator(opGroupBy, "group column", spec.GroupBy...),
	).Validate()
	if err != nil {
		return nil, err
	}

	p := &plan{spec: spec}
	projected := make(map[int]int)
	project := func(name string) int {
		src, _ := schema.Index(name)
		if idx, ok := projected[src]; ok {
			return idx
		}
		projected[src] = len(p.needed)
		p.needed = append(p.needed, src)
		return len(p.needed) - 1
	}

	outCols := make([]table.Column, 0, len(spec.GroupBy)+len(spec.Aggregations)+1)
	for _, name := range spec.GroupBy {
		idx := project(name)
		col, _ := schema.Index(name)
		typ := schema.Column(col).Type
		p.groupIdx = append(p.groupIdx, idx)
		p.groupTypes = append(p.groupTypes, typ)
		outCols = append(outCols, table.Column{Name: name, Type: typ})
	}

	for _, agg := range spec.Aggregations {
		if err := validation.ValidateColumns(schema, opGroupBy, agg.Column); err != nil {
			return nil, err
		}
		op, ok := registry.Lookup(agg.Operator)
		if !ok {
			return nil, errors.NewConfigurationError(opGroupBy, agg.Column,
				fmt.Sprintf("unknown aggregation operator %q", agg.Operator))
		}
		col, _ := schema.Index(agg.Column)
		typ := schema.Column(col).Type
		if !op.Applicable(typ) {
			return nil, errors.NewInapplicableOperatorError(opGroupBy, agg.Column, op.ID, typ.String())
		}
		name := agg.Name
		if name == "" {
			name = op.ColumnName(agg.Column)
		}
		p.aggs = append(p.aggs, resolvedAggregation{op: op, input: project(agg.Column), typ: typ, output: name})
		outCols = append(outCols, table.Column{Name: name, Type: op.ResultType(typ)})
	}

	if spec.CountColumn != "" {
		outCols = append(outCols, table.Column{Name: spec.CountColumn, Type: table.TypeInt64})
	}

	names := make([]string, len(outCols))
	for i, c := range outCols {
		names[i] = c.Name
	}
	if err := validation.NewUniqueValidator(opGroupBy, "output column", names...).Validate(); err != nil {
		return nil, err
	}
	if p.output, err = table.NewSchema(outCols...); err != nil {
		return nil, errors.NewConfigurationError(opGroupBy, "", err.Error())
	}

	projCols := make([]table.Column, len(p.needed))
	for i, src := range p.needed {
		projCols[i] = schema.Column(src)
	}
	if p.projection, err = table.NewSchema(projCols...); err != nil {
		return nil, errors.NewConfigurationError(opGroupBy, "", err.Error())
	}
	return p, nil
}

// project reduces a source row to the needed columns.
func (p *plan) project(row table.Row) table.Row {
	values := make([]any, len(p.needed))
	for i, src := range p.needed {
		values[i] = row.Values[src]
	}
	return table.Row{Key: row.Key, Values: values}
}

// compareKeys orders projected rows by their group columns.
func (p *plan) compareKeys(a, b table.Row) int {
	return table.CompareAt(p.groupIdx, p.groupTypes, a, b)
}

// OutputSchema resolves spec against schema and returns the schema of the result table.
func OutputSchema(schema *table.Schema, spec Spec, registry *aggregate.Registry) (*table.Schema, error) {
	p, err := resolve(schema, spec, registry)
	if err != nil {
		return nil, err
	}
	return p.output, nil
}
