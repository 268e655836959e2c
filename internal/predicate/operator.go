// Package predicate holds the filter operator enum, the pure rules deciding
// which operator applies to which target, the factory building single-value
// predicates, and the tri-state Cond used to combine them with structural
// short-circuiting.
package predicate

import (
	"fmt"
	"strings"

	"github.com/paveg/tabula/internal/table"
)

// Operator is a filter operator. The String spellings are persisted in settings.
type Operator int

const (
	OpEQ Operator = iota
	OpNEQ
	OpLT
	OpLTE
	OpGT
	OpGTE
	OpFirstNRows
	OpLastNRows
	OpRegex
	OpWildcard
	OpIsTrue
	OpIsFalse
	OpIsMissing
)

var operatorNames = [...]string{
	OpEQ:         "EQ",
	OpNEQ:        "NEQ",
	OpLT:         "LT",
	OpLTE:        "LTE",
	OpGT:         "GT",
	OpGTE:        "GTE",
	OpFirstNRows: "FIRST_N_ROWS",
	OpLastNRows:  "LAST_N_ROWS",
	OpRegex:      "REGEX",
	OpWildcard:   "WILDCARD",
	OpIsTrue:     "IS_TRUE",
	OpIsFalse:    "IS_FALSE",
	OpIsMissing:  "IS_MISSING",
}

// Operators lists every operator in declaration order.
func Operators() []Operator {
	ops := make([]Operator, len(operatorNames))
	for i := range operatorNames {
		ops[i] = Operator(i)
	}
	return ops
}

func (op Operator) String() string {
	if op < 0 || int(op) >= len(operatorNames) {
		return fmt.Sprintf("Operator(%d)", int(op))
	}
	return operatorNames[op]
}

// ParseOperator parses a persisted operator spelling.
func ParseOperator(s string) (Operator, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range operatorNames {
		if n == name {
			return Operator(i), nil
		}
	}
	return 0, fmt.Errorf("unknown filter operator %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (op Operator) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (op *Operator) UnmarshalText(text []byte) error {
	parsed, err := ParseOperator(string(text))
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// Arity is the number of comparison values the operator needs.
func (op Operator) Arity() int {
	switch op {
	case OpIsTrue, OpIsFalse, OpIsMissing:
		return 0
	}
	return 1
}

// Ordering reports whether op is one of LT, LTE, GT, GTE.
func (op Operator) Ordering() bool {
	return op >= OpLT && op <= OpGTE
}

// Pattern reports whether op is REGEX or WILDCARD.
func (op Operator) Pattern() bool {
	return op == OpRegex || op == OpWildcard
}

// TargetKind is what a criterion filters on.
type TargetKind int

const (
	TargetColumn TargetKind = iota
	TargetRowKey
	TargetRowNumber
)

var targetNames = [...]string{
	TargetColumn:    "COLUMN",
	TargetRowKey:    "ROW_KEY",
	TargetRowNumber: "ROW_NUMBER",
}

func (k TargetKind) String() string {
	if k < 0 || int(k) >= len(targetNames) {
		return fmt.Sprintf("TargetKind(%d)", int(k))
	}
	return targetNames[k]
}

// MarshalText implements encoding.TextMarshaler.
func (k TargetKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *TargetKind) UnmarshalText(text []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(text)))
	if name == "" {
		*k = TargetColumn
		return nil
	}
	for i, n := range targetNames {
		if n == name {
			*k = TargetKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown filter target %q", string(text))
}

// Capabilities select between the strict and the generic operator variants.
type Capabilities struct {
	// OrderStrings enables LT/LTE/GT/GTE on string columns and row keys.
	OrderStrings bool
}

// IsApplicable reports whether op can evaluate a target of the given kind.
// valueType is only consulted for column targets; row keys are strings and
// row numbers are 1-based longs.
func IsApplicable(op Operator, kind TargetKind, valueType table.ValueType, caps Capabilities) bool {
	switch kind {
	case TargetRowNumber:
		switch op {
		case OpEQ, OpNEQ, OpLT, OpLTE, OpGT, OpGTE, OpFirstNRows, OpLastNRows:
			return true
		}
		return false
	case TargetRowKey:
		switch {
		case op == OpEQ, op == OpNEQ, op.Pattern():
			return true
		case op.Ordering():
			return caps.OrderStrings
		}
		return false
	}

	switch op {
	case OpEQ, OpNEQ, OpIsMissing:
		return true
	case OpLT, OpLTE, OpGT, OpGTE:
		switch valueType {
		case table.TypeInt64, table.TypeFloat64:
			return true
		case table.TypeString:
			return caps.OrderStrings
		}
		return false
	case OpRegex, OpWildcard:
		return valueType == table.TypeString
	case OpIsTrue, OpIsFalse:
		return valueType == table.TypeBool
	}
	return false
}
