package filter_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paveg/tabula/internal/criteria"
	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/filter"
	"github.com/paveg/tabula/internal/predicate"
	"github.com/paveg/tabula/internal/table"
)

var compileSchema = table.MustSchema(
	table.Column{Name: "name", Type: table.TypeString},
	table.Column{Name: "score", Type: table.TypeFloat64},
	table.Column{Name: "active", Type: table.TypeBool},
	table.Column{Name: "n", Type: table.TypeInt64},
)

// jsonSettings decodes settings the way a JSON settings file would, so numbers
// arrive as float64.
func jsonSettings(data string) criteria.Settings {
	var s criteria.Settings
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		panic(err)
	}
	return s
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name     string
		settings criteria.Settings
		caps     predicate.Capabilities
		size     int64
		contains string
	}{
		{
			name:     "empty criteria",
			settings: criteria.Settings{},
			contains: "need at least one filter criterion",
		},
		{
			name:     "unknown column",
			settings: settings(criteria.And, criteria.Matching, column("nope", predicate.OpEQ, 1)),
			contains: "column does not exist",
		},
		{
			name:     "ordering on booleans",
			settings: settings(criteria.And, criteria.Matching, column("active", predicate.OpLT, true)),
			contains: "operator LT is not applicable to bool values",
		},
		{
			name:     "ordering on strings in strict mode",
			settings: settings(criteria.And, criteria.Matching, column("name", predicate.OpGT, "m")),
			caps:     predicate.Capabilities{OrderStrings: false},
			contains: "operator GT is not applicable",
		},
		{
			name:     "missing comparison value",
			settings: settings(criteria.And, criteria.Matching, column("score", predicate.OpEQ)),
			contains: "requires a comparison value",
		},
		{
			name:     "value of the wrong type",
			settings: settings(criteria.And, criteria.Matching, column("score", predicate.OpEQ, "high")),
			contains: "invalid comparison value",
		},
		{
			name:     "float beyond the int64 range",
			settings: jsonSettings(`{"criteria":[{"target":{"column":"n"},"operator":"LT","values":[1e19]}]}`),
			contains: "value 1e+19 overflows int64",
		},
		{
			name:     "float below the int64 range",
			settings: jsonSettings(`{"criteria":[{"target":{"column":"n"},"operator":"GT","values":[-1e19]}]}`),
			contains: "overflows int64",
		},
		{
			name:     "invalid regex",
			settings: settings(criteria.And, criteria.Matching, column("name", predicate.OpRegex, "(")),
			contains: "invalid criterion",
		},
		{
			name:     "row number zero",
			settings: settings(criteria.And, criteria.Matching, rowNumber(predicate.OpEQ, 0)),
			contains: "row number must be positive",
		},
		{
			name:     "negative count",
			settings: settings(criteria.And, criteria.Matching, rowNumber(predicate.OpFirstNRows, -1)),
			contains: "row count must not be negative",
		},
		{
			name:     "last n rows with unknown size",
			settings: settings(criteria.And, criteria.Matching, rowNumber(predicate.OpLastNRows, 10)),
			size:     table.UnknownSize,
			contains: "LAST_N_ROWS requires a known table size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.size
			if size == 0 {
				size = 10
			}
			_, err := filter.Compile(compileSchema, tt.settings, size, tt.caps)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestBuildDataPredicate_Empty(t *testing.T) {
	_, err := filter.BuildDataPredicate(compileSchema, nil, criteria.And, predicate.Capabilities{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConsistency)
	assert.Contains(t, err.Error(), "should have used slicing")
}

func TestCompile_Matches(t *testing.T) {
	row := table.Row{Key: "Row3", Values: []any{"Alice", 2.5, true, int64(42)}}
	missing := table.Row{Key: "Row4", Values: []any{nil, nil, nil, nil}}
	caps := predicate.Capabilities{OrderStrings: true}

	tests := []struct {
		name      string
		criterion criteria.Criterion
		offset    int64
		want      bool
		onMissing bool
	}{
		{"string eq", column("name", predicate.OpEQ, "Alice"), 0, true, false},
		{"string eq is case sensitive", column("name", predicate.OpEQ, "alice"), 0, false, false},
		{"string ordering", column("name", predicate.OpLT, "Bob"), 0, true, false},
		{"float gte", column("score", predicate.OpGTE, 2.5), 0, true, false},
		{"float from int", column("score", predicate.OpLT, 3), 0, true, false},
		{"int from large float", column("n", predicate.OpLT, 1e18), 0, true, false},
		{"is true", column("active", predicate.OpIsTrue), 0, true, false},
		{"is false", column("active", predicate.OpIsFalse), 0, false, false},
		{"wildcard", column("name", predicate.OpWildcard, "A?i*"), 0, true, false},
		{"regex full match", column("name", predicate.OpRegex, "li"), 0, false, false},
		{"is missing", column("name", predicate.OpIsMissing), 0, false, true},
		{"row key regex", criteria.Criterion{Target: criteria.RowKeyTarget(), Operator: predicate.OpRegex, Values: []any{"Row[34]"}}, 0, true, true},
		{"row key eq", criteria.Criterion{Target: criteria.RowKeyTarget(), Operator: predicate.OpEQ, Values: []any{"Row3"}}, 0, true, false},
		{"row number eq", rowNumber(predicate.OpEQ, 4), 3, true, true},
		{"row number gt", rowNumber(predicate.OpGT, 4), 3, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := filter.Compile(compileSchema, settings(criteria.And, criteria.Matching, tt.criterion), 10, caps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Matches(tt.offset, row))
			assert.Equal(t, tt.onMissing, c.Matches(tt.offset, missing))
		})
	}
}

func TestCompile_KnownRowNumberOutcome(t *testing.T) {
	caps := predicate.Capabilities{}

	c, err := filter.Compile(compileSchema, settings(criteria.And, criteria.Matching,
		rowNumber(predicate.OpFirstNRows, 100)), 10, caps)
	require.NoError(t, err)
	value, known := c.Known()
	assert.True(t, known)
	assert.True(t, value)

	c, err = filter.Compile(compileSchema, settings(criteria.And, criteria.Matching,
		rowNumber(predicate.OpEQ, 20),
		column("active", predicate.OpIsTrue)), 10, caps)
	require.NoError(t, err)
	value, known = c.Known()
	assert.True(t, known)
	assert.False(t, value)
	assert.True(t, c.HasData())
	assert.True(t, c.HasRowNumber())

	_, err = c.Partition()
	assert.ErrorIs(t, err, errors.ErrConsistency)
}
