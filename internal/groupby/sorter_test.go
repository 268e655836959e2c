package groupby

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paveg/tabula/internal/aggregate"
	"github.com/paveg/tabula/internal/logging"
	"github.com/paveg/tabula/internal/table"
)

func TestExternalSorter_StableAcrossRuns(t *testing.T) {
	schema := table.MustSchema(
		table.Column{Name: "k", Type: table.TypeInt64},
		table.Column{Name: "s", Type: table.TypeString},
	)
	p, err := resolve(schema, Spec{GroupBy: []string{"k"}, Aggregations: []Aggregation{{Column: "s", Operator: "first"}}},
		aggregate.Builtins())
	require.NoError(t, err)

	dir := t.TempDir()
	s := newExternalSorter(p, 3, 2, dir, "test", memory.NewGoAllocator(), logging.Noop())
	keys := []int64{2, 1, 2, 1, 0, 2, 1, 0}
	for i, k := range keys {
		row := table.Row{Key: table.DefaultRowKey(int64(i)), Values: []any{k, string(rune('a' + i))}}
		require.NoError(t, s.Add(int64(i), row))
	}
	assert.Equal(t, 2, s.Runs())

	merged, err := s.Merge()
	require.NoError(t, err)

	var offsets []int64
	var values []string
	for merged.Next() {
		cur := merged.Current()
		offsets = append(offsets, cur.offset)
		values = append(values, cur.row.Values[1].(string))
		assert.Equal(t, table.DefaultRowKey(cur.offset), cur.row.Key)
	}
	require.NoError(t, merged.Err())
	require.NoError(t, s.Close())

	assert.Equal(t, []int64{4, 7, 1, 3, 6, 0, 2, 5}, offsets)
	assert.Equal(t, []string{"e", "h", "b", "d", "g", "a", "c", "f"}, values)
}

func TestExternalSorter_InMemoryOnly(t *testing.T) {
	schema := table.MustSchema(table.Column{Name: "k", Type: table.TypeString})
	p, err := resolve(schema, Spec{GroupBy: []string{"k"}}, aggregate.Builtins())
	require.NoError(t, err)

	s := newExternalSorter(p, 100, 10, t.TempDir(), "test", memory.NewGoAllocator(), logging.Noop())
	for i, k := range []string{"c", "a", "b"} {
		require.NoError(t, s.Add(int64(i), table.Row{Key: k, Values: []any{k}}))
	}
	merged, err := s.Merge()
	require.NoError(t, err)

	var keys []string
	for merged.Next() {
		keys = append(keys, merged.Current().row.Key)
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Zero(t, s.Runs())
	require.NoError(t, s.Close())
}
