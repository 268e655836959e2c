package aggregate

import (
	"fmt"
	"math"
	"strings"

	"github.com/paveg/tabula/internal/table"
)

func anyType(table.ValueType) bool { return true }

func sameType(t table.ValueType) table.ValueType { return t }

func numeric(t table.ValueType) bool { return t.Numeric() }

func orderable(t table.ValueType) bool { return t != table.TypeBool }

func int64Result(table.ValueType) table.ValueType { return table.TypeInt64 }

// Sum adds numeric values. The result keeps the input type and is missing
// when the group has no values. An int64 sum that overflows is missing too.
func Sum() Operator {
	return Operator{
		ID:          AggNameSum,
		Description: "sum of the values",
		Applicable:  numeric,
		ResultType:  sameType,
		New: func(t table.ValueType) Accumulator {
			if t == table.TypeInt64 {
				return &intSum{}
			}
			return &floatSum{}
		},
	}
}

// intSum stops at the first overflow; later values cannot bring it back.
type intSum struct {
	sum        int64
	seen       bool
	overflowed bool
}

func (a *intSum) Add(v any) {
	n, ok := v.(int64)
	if !ok || a.overflowed {
		return
	}
	a.seen = true
	s := a.sum + n
	if (n > 0 && s < a.sum) || (n < 0 && s > a.sum) {
		a.overflowed = true
		return
	}
	a.sum = s
}

func (a *intSum) Result() any {
	if !a.seen || a.overflowed {
		return nil
	}
	return a.sum
}

type floatSum struct {
	sum  float64
	seen bool
}

func (a *floatSum) Add(v any) {
	if f, ok := v.(float64); ok {
		a.sum += f
		a.seen = true
	}
}

func (a *floatSum) Result() any {
	if !a.seen {
		return nil
	}
	return a.sum
}

// Mean averages numeric values as float64.
func Mean() Operator {
	return Operator{
		ID:          AggNameMean,
		Description: "arithmetic mean of the values",
		Applicable:  numeric,
		ResultType:  func(table.ValueType) table.ValueType { return table.TypeFloat64 },
		New:         func(table.ValueType) Accumulator { return &mean{} },
	}
}

type mean struct {
	sum float64
	n   int64
}

func (a *mean) Add(v any) {
	switch x := v.(type) {
	case int64:
		a.sum += float64(x)
		a.n++
	case float64:
		a.sum += x
		a.n++
	}
}

func (a *mean) Result() any {
	if a.n == 0 {
		return nil
	}
	return a.sum / float64(a.n)
}

// Min keeps the smallest value by the table order.
func Min() Operator {
	return extremum(AggNameMin, "smallest value", -1)
}

// Max keeps the largest value by the table order.
func Max() Operator {
	return extremum(AggNameMax, "largest value", 1)
}

func extremum(id, description string, sign int) Operator {
	return Operator{
		ID:          id,
		Description: description,
		Applicable:  orderable,
		ResultType:  sameType,
		New: func(t table.ValueType) Accumulator {
			return &extremumAcc{typ: t, sign: sign}
		},
	}
}

type extremumAcc struct {
	typ  table.ValueType
	sign int
	best any
}

func (a *extremumAcc) Add(v any) {
	if v == nil {
		return
	}
	if a.best == nil || table.Compare(a.typ, v, a.best)*a.sign > 0 {
		a.best = v
	}
}

func (a *extremumAcc) Result() any { return a.best }

// Count counts non-missing values.
func Count() Operator {
	return Operator{
		ID:          AggNameCount,
		Description: "number of non-missing values",
		Applicable:  anyType,
		ResultType:  int64Result,
		New:         func(table.ValueType) Accumulator { return &counter{} },
	}
}

// MissingCount counts missing values.
func MissingCount() Operator {
	return Operator{
		ID:          AggNameMissingCount,
		Description: "number of missing values",
		Applicable:  anyType,
		ResultType:  int64Result,
		New:         func(table.ValueType) Accumulator { return &counter{missing: true} },
	}
}

type counter struct {
	missing bool
	n       int64
}

func (a *counter) Add(v any) {
	if (v == nil) == a.missing {
		a.n++
	}
}

func (a *counter) Result() any { return a.n }

// First keeps the first non-missing value.
func First() Operator {
	return Operator{
		ID:          AggNameFirst,
		Description: "first non-missing value",
		Applicable:  anyType,
		ResultType:  sameType,
		New:         func(table.ValueType) Accumulator { return &positional{} },
	}
}

// Last keeps the last non-missing value.
func Last() Operator {
	return Operator{
		ID:          AggNameLast,
		Description: "last non-missing value",
		Applicable:  anyType,
		ResultType:  sameType,
		New:         func(table.ValueType) Accumulator { return &positional{last: true} },
	}
}

type positional struct {
	last  bool
	value any
}

func (a *positional) Add(v any) {
	if v == nil {
		return
	}
	if a.last || a.value == nil {
		a.value = v
	}
}

func (a *positional) Result() any { return a.value }

// Concatenate joins the string forms of the values with sep.
func Concatenate(sep string) Operator {
	return Operator{
		ID:          AggNameConcatenate,
		Description: "values joined into one string",
		Applicable:  anyType,
		ResultType:  func(table.ValueType) table.ValueType { return table.TypeString },
		New: func(table.ValueType) Accumulator {
			return &concatenation{sep: sep}
		},
	}
}

type concatenation struct {
	sep  string
	b    strings.Builder
	seen bool
}

func (a *concatenation) Add(v any) {
	if v == nil {
		return
	}
	if a.seen {
		a.b.WriteString(a.sep)
	}
	a.seen = true
	if s, ok := v.(string); ok {
		a.b.WriteString(s)
		return
	}
	fmt.Fprint(&a.b, v)
}

func (a *concatenation) Result() any {
	if !a.seen {
		return nil
	}
	return a.b.String()
}

// UniqueCount counts distinct non-missing values. Floats are distinct by bit
// pattern, so -0 and +0 count twice.
func UniqueCount() Operator {
	return Operator{
		ID:          AggNameUniqueCount,
		Description: "number of distinct non-missing values",
		Applicable:  anyType,
		ResultType:  int64Result,
		New: func(table.ValueType) Accumulator {
			return &uniqueCount{seen: make(map[any]struct{})}
		},
	}
}

type floatBits uint64

type uniqueCount struct {
	seen map[any]struct{}
}

func (a *uniqueCount) Add(v any) {
	switch x := v.(type) {
	case nil:
		return
	case float64:
		a.seen[floatBits(math.Float64bits(x))] = struct{}{}
	default:
		a.seen[v] = struct{}{}
	}
}

func (a *uniqueCount) Result() any { return int64(len(a.seen)) }
