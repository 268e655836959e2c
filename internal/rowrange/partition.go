package rowrange

import (
	"fmt"

	"github.com/paveg/tabula/internal/criteria"
	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/predicate"
	"github.com/paveg/tabula/internal/table"
)

const opRowNumber = "RowNumberFilter"

// Spec is a row-number criterion reduced to an operator and a 0-based offset
// (comparison operators) or a raw row count (FIRST_N_ROWS, LAST_N_ROWS).
type Spec struct {
	Operator predicate.Operator
	Value    int64
}

func (s Spec) String() string {
	return fmt.Sprintf("%s %d", s.Operator, s.Value)
}

// SpecFor converts a row-number criterion. User-facing row numbers are 1-based
// and must be positive; counts must be non-negative.
func SpecFor(c criteria.Criterion) (Spec, error) {
	if !c.IsRowNumber() {
		return Spec{}, errors.NewConfigurationError(opRowNumber, c.Target.String(), "not a row number criterion")
	}
	if !predicate.IsApplicable(c.Operator, predicate.TargetRowNumber, table.TypeInt64, predicate.Capabilities{}) {
		return Spec{}, errors.NewInapplicableOperatorError(opRowNumber, c.Target.String(), c.Operator.String(), "row number")
	}
	raw := c.Value()
	if raw == nil {
		return Spec{}, errors.NewConfigurationError(opRowNumber, c.Target.String(),
			fmt.Sprintf("operator %s requires a comparison value", c.Operator))
	}
	coerced, err := table.Coerce(table.TypeInt64, raw)
	if err != nil {
		return Spec{}, &errors.TableError{
			Kind: errors.KindConfiguration, Op: opRowNumber, Column: c.Target.String(),
			Message: "invalid row number", Cause: err,
		}
	}
	v := coerced.(int64)

	switch c.Operator {
	case predicate.OpFirstNRows, predicate.OpLastNRows:
		if v < 0 {
			return Spec{}, errors.NewConfigurationError(opRowNumber, c.Target.String(),
				fmt.Sprintf("row count must not be negative, got %d", v))
		}
		return Spec{Operator: c.Operator, Value: v}, nil
	}
	if v < 1 {
		return Spec{}, errors.NewConfigurationError(opRowNumber, c.Target.String(),
			fmt.Sprintf("row number must be positive, got %d", v))
	}
	return Spec{Operator: c.Operator, Value: v - 1}, nil
}

// ComputeRanges returns the offsets matching op with the given offset or count.
// size is the table size, negative when unknown.
func ComputeRanges(op predicate.Operator, value, size int64) (Set, error) {
	if value < 0 {
		return nil, errors.NewConfigurationError(opRowNumber, "", fmt.Sprintf("negative offset %d", value))
	}
	end := Unbounded
	if size >= 0 {
		end = size
	}
	var rs Set
	switch op {
	case predicate.OpEQ:
		rs = NewSet(Range{value, value + 1})
	case predicate.OpNEQ:
		rs = NewSet(Range{0, value}, Range{value + 1, end})
	case predicate.OpLT:
		rs = NewSet(Range{0, value})
	case predicate.OpLTE:
		rs = NewSet(Range{0, value + 1})
	case predicate.OpGT:
		rs = NewSet(Range{value + 1, end})
	case predicate.OpGTE:
		rs = NewSet(Range{value, end})
	case predicate.OpFirstNRows:
		rs = NewSet(Range{0, value})
	case predicate.OpLastNRows:
		if size < 0 {
			return nil, errors.NewConfigurationError(opRowNumber, "",
				"LAST_N_ROWS requires a known table size")
		}
		rs = NewSet(Range{max(0, size-value), size})
	default:
		return nil, errors.NewInapplicableOperatorError(opRowNumber, "", op.String(), "row number")
	}
	return rs.Intersect(All(size)), nil
}

// Matcher returns the arithmetic per-row form of s, equivalent to
// membership in ComputeRanges.
func (s Spec) Matcher(size int64) (func(offset int64) bool, error) {
	v := s.Value
	switch s.Operator {
	case predicate.OpEQ:
		return func(i int64) bool { return i == v }, nil
	case predicate.OpNEQ:
		return func(i int64) bool { return i != v }, nil
	case predicate.OpLT, predicate.OpFirstNRows:
		return func(i int64) bool { return i < v }, nil
	case predicate.OpLTE:
		return func(i int64) bool { return i <= v }, nil
	case predicate.OpGT:
		return func(i int64) bool { return i > v }, nil
	case predicate.OpGTE:
		return func(i int64) bool { return i >= v }, nil
	case predicate.OpLastNRows:
		if size < 0 {
			return nil, errors.NewConfigurationError(opRowNumber, "",
				"LAST_N_ROWS requires a known table size")
		}
		first := max(0, size-v)
		return func(i int64) bool { return i >= first }, nil
	}
	return nil, errors.NewInapplicableOperatorError(opRowNumber, "", s.Operator.String(), "row number")
}

// Partition is the pair of matching and non-matching offsets.
type Partition struct {
	Matching    Set
	NonMatching Set
}

// PartitionFor computes the partition of a single spec.
func PartitionFor(s Spec, size int64) (Partition, error) {
	m, err := ComputeRanges(s.Operator, s.Value, size)
	if err != nil {
		return Partition{}, err
	}
	return Partition{Matching: m, NonMatching: m.Complement(size)}, nil
}

// Combine merges two partitions: AND intersects the matching halves and unites
// the non-matching halves, OR does the opposite.
func (p Partition) Combine(o Partition, comb criteria.Combination) Partition {
	if comb == criteria.And {
		return Partition{
			Matching:    p.Matching.Intersect(o.Matching),
			NonMatching: p.NonMatching.Union(o.NonMatching),
		}
	}
	return Partition{
		Matching:    p.Matching.Union(o.Matching),
		NonMatching: p.NonMatching.Intersect(o.NonMatching),
	}
}

// Swapped exchanges the matching and non-matching halves.
func (p Partition) Swapped() Partition {
	return Partition{Matching: p.NonMatching, NonMatching: p.Matching}
}

// CheckSpan verifies that for a known size both halves are disjoint and
// exactly cover [0,size).
func (p Partition) CheckSpan(size int64) error {
	if size < 0 {
		return nil
	}
	if !p.Matching.Intersect(p.NonMatching).IsEmpty() ||
		!p.Matching.Union(p.NonMatching).Equal(All(size)) {
		return errors.NewConsistencyError(opRowNumber,
			fmt.Sprintf("ranges %s and %s do not span [0,%d)", p.Matching, p.NonMatching, size))
	}
	return nil
}

func (p Partition) String() string {
	return fmt.Sprintf("matching=%s non-matching=%s", p.Matching, p.NonMatching)
}

// ComputeRowPartition folds the partitions of specs left to right and swaps
// the result when the first output receives non-matching rows.
func ComputeRowPartition(comb criteria.Combination, specs []Spec, mode criteria.OutputMode, size int64) (Partition, error) {
	if len(specs) == 0 {
		return Partition{}, errors.NewConfigurationError(opRowNumber, "", "need at least one filter criterion")
	}
	var acc Partition
	for i, s := range specs {
		p, err := PartitionFor(s, size)
		if err != nil {
			return Partition{}, err
		}
		if i == 0 {
			acc = p
			continue
		}
		acc = acc.Combine(p, comb)
	}
	if mode == criteria.NonMatching {
		acc = acc.Swapped()
	}
	return acc, nil
}
