package predicate_test

import (
	"testing"

	"github.com/paveg/tabula/internal/predicate"
	"github.com/stretchr/testify/assert"
)

func TestCond_ShortCircuit(t *testing.T) {
	calls := 0
	probe := predicate.Eval(func(x int) bool {
		calls++
		return x > 0
	})

	tests := []struct {
		name      string
		cond      predicate.Cond[int]
		wantKnown bool
		wantValue bool
	}{
		{"x and false", predicate.And(probe, predicate.False[int]()), true, false},
		{"false and x", predicate.And(predicate.False[int](), probe), true, false},
		{"x or true", predicate.Or(probe, predicate.True[int]()), true, true},
		{"true or x", predicate.Or(predicate.True[int](), probe), true, true},
		{"x and true", predicate.And(probe, predicate.True[int]()), false, false},
		{"x or false", predicate.Or(predicate.False[int](), probe), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, known := tt.cond.Known()
			assert.Equal(t, tt.wantKnown, known)
			if known {
				assert.Equal(t, tt.wantValue, v)
				before := calls
				tt.cond.Evaluate(5)
				assert.Equal(t, before, calls, "known condition must not evaluate")
			} else {
				assert.True(t, tt.cond.Evaluate(1))
				assert.False(t, tt.cond.Evaluate(-1))
			}
		})
	}
}

func TestCombine(t *testing.T) {
	pos := predicate.Eval(func(x int) bool { return x > 0 })
	even := predicate.Eval(func(x int) bool { return x%2 == 0 })

	and := predicate.Combine(true, pos, even)
	assert.True(t, and.Evaluate(2))
	assert.False(t, and.Evaluate(3))
	assert.False(t, and.Evaluate(-2))

	or := predicate.Combine(false, pos, even)
	assert.True(t, or.Evaluate(3))
	assert.True(t, or.Evaluate(-2))
	assert.False(t, or.Evaluate(-3))

	v, known := predicate.Combine[int](true).Known()
	assert.True(t, known)
	assert.True(t, v)

	v, known = predicate.Combine[int](false).Known()
	assert.True(t, known)
	assert.False(t, v)
}

func TestMap(t *testing.T) {
	isLong := predicate.Eval(func(s string) bool { return len(s) > 3 })
	byInt := predicate.Map(isLong, func(n int) string { return string(make([]byte, n)) })

	assert.True(t, byInt.Evaluate(4))
	assert.False(t, byInt.Evaluate(2))

	_, known := predicate.Map(predicate.True[string](), func(n int) string { return "" }).Known()
	assert.True(t, known)
}
