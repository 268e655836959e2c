package rowrange_test

import (
	"testing"

	"github.com/paveg/tabula/internal/rowrange"
	"github.com/stretchr/testify/assert"
)

func TestNewSet_Normalizes(t *testing.T) {
	s := rowrange.NewSet(
		rowrange.Range{Lower: 5, Upper: 7},
		rowrange.Range{Lower: 0, Upper: 2},
		rowrange.Range{Lower: 2, Upper: 3},
		rowrange.Range{Lower: 6, Upper: 9},
		rowrange.Range{Lower: 4, Upper: 4},
	)

	assert.Equal(t, rowrange.Set{{Lower: 0, Upper: 3}, {Lower: 5, Upper: 9}}, s)
	assert.Equal(t, int64(7), s.Count())
	assert.Nil(t, rowrange.NewSet(rowrange.Range{Lower: 3, Upper: 1}))
}

func TestSet_Operations(t *testing.T) {
	a := rowrange.NewSet(rowrange.Range{Lower: 0, Upper: 4}, rowrange.Range{Lower: 6, Upper: 10})
	b := rowrange.NewSet(rowrange.Range{Lower: 2, Upper: 8})

	tests := []struct {
		name string
		got  rowrange.Set
		want rowrange.Set
	}{
		{"union", a.Union(b), rowrange.Set{{Lower: 0, Upper: 10}}},
		{"intersect", a.Intersect(b), rowrange.Set{{Lower: 2, Upper: 4}, {Lower: 6, Upper: 8}}},
		{"complement known", a.Complement(12), rowrange.Set{{Lower: 4, Upper: 6}, {Lower: 10, Upper: 12}}},
		{"complement unknown", a.Complement(-1), rowrange.Set{{Lower: 4, Upper: 6}, {Lower: 10, Upper: rowrange.Unbounded}}},
		{"complement of all", rowrange.All(5).Complement(5), nil},
		{"intersect empty", a.Intersect(nil), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestSet_Contains(t *testing.T) {
	s := rowrange.NewSet(rowrange.Range{Lower: 1, Upper: 3}, rowrange.Range{Lower: 7, Upper: rowrange.Unbounded})

	for i, want := range []bool{false, true, true, false, false, false, false, true, true} {
		assert.Equal(t, want, s.Contains(int64(i)), "offset %d", i)
	}
	assert.True(t, s.Contains(1<<40))
	assert.Equal(t, int64(-1), s.Count())
}

func TestSet_String(t *testing.T) {
	assert.Equal(t, "{}", rowrange.Set(nil).String())
	assert.Equal(t, "{[0,2) ∪ [4,∞)}", rowrange.NewSet(
		rowrange.Range{Lower: 0, Upper: 2},
		rowrange.Range{Lower: 4, Upper: rowrange.Unbounded},
	).String())
}
