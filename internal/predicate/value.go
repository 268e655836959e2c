package predicate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/paveg/tabula/internal/table"
)

// ValuePredicate tests a single non-missing value.
type ValuePredicate func(v any) bool

// Params parameterize Build.
type Params struct {
	// Type is the declared type of the tested values.
	Type table.ValueType
	// Value is the comparison value, already coerced to Type. Patterns are strings.
	Value any
	// CaseSensitive applies to string equality and patterns.
	CaseSensitive bool
	// ExactKeys disables case folding, used for row keys.
	ExactKeys bool
}

// Build creates the value predicate of op. IS_MISSING and the row-count
// operators have no value predicate and yield an error.
func Build(op Operator, p Params) (ValuePredicate, error) {
	if op.Arity() > 0 && p.Value == nil {
		return nil, fmt.Errorf("operator %s requires a comparison value", op)
	}

	switch op {
	case OpEQ:
		return equality(p), nil
	case OpNEQ:
		eq := equality(p)
		return func(v any) bool { return !eq(v) }, nil
	case OpLT, OpLTE, OpGT, OpGTE:
		if p.Type == table.TypeBool {
			return nil, fmt.Errorf("operator %s is not defined for %s values", op, p.Type)
		}
		return ordering(op, p), nil
	case OpRegex, OpWildcard:
		pattern, ok := p.Value.(string)
		if !ok {
			return nil, fmt.Errorf("operator %s requires a string pattern, got %T", op, p.Value)
		}
		re, err := CompilePattern(pattern, op == OpWildcard, p.CaseSensitive)
		if err != nil {
			return nil, err
		}
		return func(v any) bool {
			s, ok := v.(string)
			return ok && re.MatchString(s)
		}, nil
	case OpIsTrue:
		return func(v any) bool { b, ok := v.(bool); return ok && b }, nil
	case OpIsFalse:
		return func(v any) bool { b, ok := v.(bool); return ok && !b }, nil
	}
	return nil, fmt.Errorf("operator %s has no value predicate", op)
}

func equality(p Params) ValuePredicate {
	want := p.Value
	if s, ok := want.(string); ok && p.Type == table.TypeString && !p.CaseSensitive && !p.ExactKeys {
		return func(v any) bool {
			got, ok := v.(string)
			return ok && strings.EqualFold(got, s)
		}
	}
	t := p.Type
	return func(v any) bool { return table.Equal(t, v, want) }
}

func ordering(op Operator, p Params) ValuePredicate {
	want, t := p.Value, p.Type
	switch op {
	case OpLT:
		return func(v any) bool { return table.Compare(t, v, want) < 0 }
	case OpLTE:
		return func(v any) bool { return table.Compare(t, v, want) <= 0 }
	case OpGT:
		return func(v any) bool { return table.Compare(t, v, want) > 0 }
	default:
		return func(v any) bool { return table.Compare(t, v, want) >= 0 }
	}
}

// CompilePattern compiles a regex or wildcard pattern for full-string matching
// with dot-all and multi-line semantics.
func CompilePattern(pattern string, wildcard, caseSensitive bool) (*regexp.Regexp, error) {
	expr := pattern
	if wildcard {
		expr = WildcardToRegex(pattern)
	}
	flags := "(?sm"
	if !caseSensitive {
		flags += "i"
	}
	flags += ")"
	re, err := regexp.Compile(flags + `\A(?:` + expr + `)\z`)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

// WildcardToRegex translates '*' and '?' into their regex equivalents and
// quotes everything else.
func WildcardToRegex(pattern string) string {
	var sb strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return sb.String()
}
