package criteria_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/paveg/tabula/internal/criteria"
	"github.com/paveg/tabula/internal/predicate"
	"github.com/paveg/tabula/internal/table"
)

func TestSettings_YAML(t *testing.T) {
	data := `
combination: or
output_mode: NON_MATCHING
criteria:
  - target: {kind: ROW_NUMBER}
    operator: FIRST_N_ROWS
    values: [3]
  - target: {column: dept}
    operator: eq
    values: [Sales]
    ignore_case: true
  - target: {kind: ROW_KEY}
    operator: WILDCARD
    values: ["Row1*"]
`
	var s criteria.Settings
	require.NoError(t, yaml.Unmarshal([]byte(data), &s))

	assert.Equal(t, criteria.Or, s.Combination)
	assert.False(t, s.IsAnd())
	assert.Equal(t, criteria.NonMatching, s.OutputMode)
	require.Len(t, s.Criteria, 3)

	assert.True(t, s.Criteria[0].IsRowNumber())
	assert.Equal(t, 3, s.Criteria[0].Value())
	assert.Equal(t, criteria.ColumnTarget("dept"), s.Criteria[1].Target)
	assert.Equal(t, predicate.OpEQ, s.Criteria[1].Operator)
	assert.True(t, s.Criteria[1].IgnoreCase)
	assert.Equal(t, criteria.RowKeyTarget(), s.Criteria[2].Target)

	rowNumber, data2 := s.Split()
	assert.Len(t, rowNumber, 1)
	assert.Len(t, data2, 2)
}

func TestSettings_JSONRoundTrip(t *testing.T) {
	in := criteria.Settings{
		Criteria: []criteria.Criterion{
			{Target: criteria.ColumnTarget("age"), Operator: predicate.OpGT, Values: []any{float64(30)}},
		},
		Combination: criteria.Or,
		OutputMode:  criteria.NonMatching,
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"combination":"OR"`)
	assert.Contains(t, string(data), `"output_mode":"NON_MATCHING"`)

	var out criteria.Settings
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestOutputMode_UnmarshalText(t *testing.T) {
	tests := []struct {
		input    string
		expected criteria.OutputMode
		wantErr  bool
	}{
		{"", criteria.Matching, false},
		{"include", criteria.Matching, false},
		{"Non_Matching", criteria.NonMatching, false},
		{"exclude", criteria.NonMatching, false},
		{"OR", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var mode criteria.OutputMode
			err := mode.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorContains(t, err, "unknown output mode")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}
}

func TestCombination_UnmarshalText(t *testing.T) {
	tests := []struct {
		input    string
		expected criteria.Combination
		wantErr  bool
	}{
		{"", criteria.And, false},
		{" and ", criteria.And, false},
		{"or", criteria.Or, false},
		{"xor", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var comb criteria.Combination
			err := comb.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorContains(t, err, "unknown criteria combination")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, comb)
		})
	}
}

func TestDefaultSettings(t *testing.T) {
	tests := []struct {
		name     string
		last     table.ValueType
		operator predicate.Operator
		values   []any
	}{
		{"bool column", table.TypeBool, predicate.OpIsTrue, nil},
		{"int column", table.TypeInt64, predicate.OpEQ, []any{int64(0)}},
		{"float column", table.TypeFloat64, predicate.OpEQ, []any{0.0}},
		{"string column", table.TypeString, predicate.OpEQ, []any{""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := table.MustSchema(
				table.Column{Name: "first", Type: table.TypeString},
				table.Column{Name: "last", Type: tt.last},
			)
			s := criteria.DefaultSettings(schema)
			require.Len(t, s.Criteria, 1)
			c := s.Criteria[0]
			assert.Equal(t, criteria.ColumnTarget("last"), c.Target)
			assert.Equal(t, tt.operator, c.Operator)
			assert.Equal(t, tt.values, c.Values)
			assert.Equal(t, criteria.Matching, s.OutputMode)
		})
	}

	assert.Empty(t, criteria.DefaultSettings(table.MustSchema()).Criteria)
}

func TestCriterion_String(t *testing.T) {
	assert.Equal(t, "age GT 3", criteria.Criterion{
		Target: criteria.ColumnTarget("age"), Operator: predicate.OpGT, Values: []any{3},
	}.String())
	assert.Equal(t, "ROW_KEY IS_MISSING", criteria.Criterion{
		Target: criteria.RowKeyTarget(), Operator: predicate.OpIsMissing,
	}.String())
	assert.Nil(t, criteria.Criterion{}.Value())
	assert.Equal(t, "ROW_NUMBER", criteria.RowNumberTarget().String())
}
