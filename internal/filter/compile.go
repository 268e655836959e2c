// Package filter compiles filter criteria into row predicates and drives them
// over row sources, either by slicing row-number ranges or by scanning rows.
package filter

import (
	"fmt"

	"github.com/paveg/tabula/internal/criteria"
	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/predicate"
	"github.com/paveg/tabula/internal/rowrange"
	"github.com/paveg/tabula/internal/table"
	"github.com/paveg/tabula/internal/validation"
)

const opCompile = "Compile"

// Input is what a compiled predicate is evaluated against.
type Input struct {
	Offset int64
	Row    table.Row
}

// Compiled is an executable filter built once per execution.
type Compiled struct {
	settings     criteria.Settings
	size         int64
	specs        []rowrange.Spec
	hasRowNumber bool
	hasData      bool
	match        predicate.Cond[Input]
}

// Compile resolves settings against schema. size is the table size, negative
// when unknown; it is needed for LAST_N_ROWS.
func Compile(schema *table.Schema, settings criteria.Settings, size int64, caps predicate.Capabilities) (*Compiled, error) {
	if err := validation.ValidateNotEmpty(len(settings.Criteria), opCompile, "need at least one filter criterion"); err != nil {
		return nil, err
	}

	rowNumberCrits, dataCrits := settings.Split()
	c := &Compiled{
		settings:     settings,
		size:         size,
		hasRowNumber: len(rowNumberCrits) > 0,
		hasData:      len(dataCrits) > 0,
	}

	var rowNumber predicate.Cond[int64]
	if c.hasRowNumber {
		specs, cond, err := buildRowNumberPredicate(rowNumberCrits, settings.Combination, size)
		if err != nil {
			return nil, err
		}
		c.specs = specs
		rowNumber = cond
	}

	var data predicate.Cond[table.Row]
	if c.hasData {
		cond, err := BuildDataPredicate(schema, dataCrits, settings.Combination, caps)
		if err != nil {
			return nil, err
		}
		data = cond
	}

	byOffset := predicate.Map(rowNumber, func(in Input) int64 { return in.Offset })
	byRow := predicate.Map(data, func(in Input) table.Row { return in.Row })
	switch {
	case c.hasRowNumber && c.hasData:
		c.match = predicate.Combine(settings.IsAnd(), byOffset, byRow)
	case c.hasRowNumber:
		c.match = byOffset
	default:
		c.match = byRow
	}
	return c, nil
}

// HasData reports whether any criterion reads cell values or row keys.
func (c *Compiled) HasData() bool { return c.hasData }

// HasRowNumber reports whether any criterion targets the row number.
func (c *Compiled) HasRowNumber() bool { return c.hasRowNumber }

// Specs returns the row-number criteria in range form.
func (c *Compiled) Specs() []rowrange.Spec { return c.specs }

// Known reports whether the outcome is the same for every row.
func (c *Compiled) Known() (value, known bool) { return c.match.Known() }

// Matches evaluates the combined predicate on the row at offset.
func (c *Compiled) Matches(offset int64, row table.Row) bool {
	return c.match.Evaluate(Input{Offset: offset, Row: row})
}

// Partition computes the range partition of a filter without data criteria.
func (c *Compiled) Partition() (rowrange.Partition, error) {
	if c.hasData {
		return rowrange.Partition{}, errors.NewConsistencyError(opCompile,
			"range partition requested for a filter reading row data")
	}
	return rowrange.ComputeRowPartition(c.settings.Combination, c.specs, c.settings.OutputMode, c.size)
}

func buildRowNumberPredicate(crits []criteria.Criterion, comb criteria.Combination, size int64) ([]rowrange.Spec, predicate.Cond[int64], error) {
	specs := make([]rowrange.Spec, 0, len(crits))
	conds := make([]predicate.Cond[int64], 0, len(crits))
	for _, crit := range crits {
		spec, err := rowrange.SpecFor(crit)
		if err != nil {
			return nil, predicate.Cond[int64]{}, err
		}
		match, err := spec.Matcher(size)
		if err != nil {
			return nil, predicate.Cond[int64]{}, err
		}
		specs = append(specs, spec)
		conds = append(conds, rowNumberCond(spec, match, size))
	}
	return specs, predicate.Combine(comb == criteria.And, conds...), nil
}

// rowNumberCond resolves specs whose outcome is fixed for a known table size.
func rowNumberCond(spec rowrange.Spec, match func(int64) bool, size int64) predicate.Cond[int64] {
	if size >= 0 {
		if set, err := rowrange.ComputeRanges(spec.Operator, spec.Value, size); err == nil {
			switch {
			case set.IsEmpty():
				return predicate.False[int64]()
			case set.Equal(rowrange.All(size)):
				return predicate.True[int64]()
			}
		}
	}
	return predicate.Eval(match)
}

// BuildDataPredicate compiles criteria that read row keys or cells and combines
// them left to right. An empty list is a caller error: filters made only of
// row-number criteria are answered by range slicing.
func BuildDataPredicate(schema *table.Schema, crits []criteria.Criterion, comb criteria.Combination, caps predicate.Capabilities) (predicate.Cond[table.Row], error) {
	if len(crits) == 0 {
		return predicate.Cond[table.Row]{}, errors.NewConsistencyError(opCompile,
			"row number predicate without data predicate, should have used slicing")
	}
	conds := make([]predicate.Cond[table.Row], 0, len(crits))
	for _, crit := range crits {
		cond, err := compileCriterion(schema, crit, caps)
		if err != nil {
			return predicate.Cond[table.Row]{}, err
		}
		conds = append(conds, cond)
	}
	return predicate.Combine(comb == criteria.And, conds...), nil
}

func compileCriterion(schema *table.Schema, crit criteria.Criterion, caps predicate.Capabilities) (predicate.Cond[table.Row], error) {
	switch crit.Target.Kind {
	case predicate.TargetRowKey:
		return compileRowKey(crit, caps)
	case predicate.TargetRowNumber:
		return predicate.Cond[table.Row]{}, errors.NewConsistencyError(opCompile,
			"row number criterion passed to the data predicate")
	}

	name := crit.Target.Column
	if err := validation.ValidateColumns(schema, opCompile, name); err != nil {
		return predicate.Cond[table.Row]{}, err
	}
	idx, _ := schema.Index(name)
	typ := schema.Column(idx).Type

	if !predicate.IsApplicable(crit.Operator, predicate.TargetColumn, typ, caps) {
		return predicate.Cond[table.Row]{}, errors.NewInapplicableOperatorError(opCompile, name, crit.Operator.String(), typ.String())
	}
	if crit.Operator == predicate.OpIsMissing {
		return predicate.Eval(func(r table.Row) bool { return r.IsMissing(idx) }), nil
	}

	value, err := comparisonValue(crit, typ)
	if err != nil {
		return predicate.Cond[table.Row]{}, err
	}
	pred, err := predicate.Build(crit.Operator, predicate.Params{
		Type:          typ,
		Value:         value,
		CaseSensitive: !crit.IgnoreCase,
	})
	if err != nil {
		return predicate.Cond[table.Row]{}, &errors.TableError{
			Kind: errors.KindConfiguration, Op: opCompile, Column: name,
			Message: "invalid criterion", Cause: err,
		}
	}
	return predicate.Eval(func(r table.Row) bool {
		v := r.Values[idx]
		return v != nil && pred(v)
	}), nil
}

func compileRowKey(crit criteria.Criterion, caps predicate.Capabilities) (predicate.Cond[table.Row], error) {
	if !predicate.IsApplicable(crit.Operator, predicate.TargetRowKey, table.TypeString, caps) {
		return predicate.Cond[table.Row]{}, errors.NewInapplicableOperatorError(opCompile, crit.Target.String(), crit.Operator.String(), "row key")
	}
	value, err := comparisonValue(crit, table.TypeString)
	if err != nil {
		return predicate.Cond[table.Row]{}, err
	}
	pred, err := predicate.Build(crit.Operator, predicate.Params{
		Type:          table.TypeString,
		Value:         value,
		CaseSensitive: !crit.IgnoreCase,
		ExactKeys:     true,
	})
	if err != nil {
		return predicate.Cond[table.Row]{}, &errors.TableError{
			Kind: errors.KindConfiguration, Op: opCompile, Column: crit.Target.String(),
			Message: "invalid criterion", Cause: err,
		}
	}
	return predicate.Eval(func(r table.Row) bool { return pred(r.Key) }), nil
}

func comparisonValue(crit criteria.Criterion, typ table.ValueType) (any, error) {
	if crit.Operator.Arity() == 0 {
		return nil, nil
	}
	raw := crit.Value()
	if raw == nil {
		return nil, errors.NewConfigurationError(opCompile, crit.Target.String(),
			fmt.Sprintf("operator %s requires a comparison value", crit.Operator))
	}
	if crit.Operator.Pattern() {
		typ = table.TypeString
	}
	v, err := table.Coerce(typ, raw)
	if err != nil {
		return nil, &errors.TableError{
			Kind: errors.KindConfiguration, Op: opCompile, Column: crit.Target.String(),
			Message: "invalid comparison value", Cause: err,
		}
	}
	return v, nil
}
