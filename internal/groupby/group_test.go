package groupby_test

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paveg/tabula/internal/aggregate"
	"github.com/paveg/tabula/internal/config"
	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/groupby"
	"github.com/paveg/tabula/internal/table"
	"github.com/paveg/tabula/internal/testutil"
)

var strategies = []groupby.Strategy{groupby.StrategyInMemory, groupby.StrategySorted}

// spillConfig forces the sorted engine to spill every few rows.
func spillConfig(t *testing.T) *config.Config {
	cfg := config.NewConfig()
	cfg.SortRunRows = 7
	cfg.SpillBatchRows = 3
	cfg.SpillDir = t.TempDir()
	return &cfg
}

// byKey indexes result rows by the printed group key, the first n values.
func byKey(res *groupby.Result, n int) map[string][]any {
	out := make(map[string][]any)
	for _, r := range res.Table.Collect() {
		out[fmt.Sprint(r.Values[:n]...)] = r.Values[n:]
	}
	return out
}

func TestGroup_Sum(t *testing.T) {
	schema := table.MustSchema(
		table.Column{Name: "k", Type: table.TypeString},
		table.Column{Name: "v", Type: table.TypeInt64},
	)
	tbl := testutil.NewTable(t, schema,
		testutil.R("r0", "A", 1),
		testutil.R("r1", "B", 2),
		testutil.R("r2", "A", 3),
	)
	spec := groupby.Spec{
		GroupBy:      []string{"k"},
		Aggregations: []groupby.Aggregation{{Column: "v", Operator: aggregate.AggNameSum}},
	}

	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			res, err := groupby.Group(context.Background(), tbl, spec, aggregate.Builtins(),
				groupby.Options{Strategy: strategy, Config: spillConfig(t)})
			require.NoError(t, err)
			defer res.Release()

			assert.Equal(t, strategy, res.Strategy)
			assert.Equal(t, int64(2), res.Groups)
			testutil.AssertTableHasColumns(t, res.Table, []string{"k", "sum(v)"})
			assert.Equal(t, []table.Row{
				{Key: "Row0", Values: []any{"A", int64(4)}},
				{Key: "Row1", Values: []any{"B", int64(2)}},
			}, res.Table.Collect())
		})
	}
}

func TestGroup_StrategiesAgree(t *testing.T) {
	schema := table.MustSchema(
		table.Column{Name: "dept", Type: table.TypeString},
		table.Column{Name: "level", Type: table.TypeInt64},
		table.Column{Name: "salary", Type: table.TypeFloat64},
		table.Column{Name: "remote", Type: table.TypeBool},
	)
	rng := rand.New(rand.NewSource(42))
	depts := []string{"eng", "sales", "ops", "hr"}
	rows := make([]table.Row, 500)
	for i := range rows {
		var level any = rng.Int63n(4)
		if rng.Intn(10) == 0 {
			level = nil
		}
		var salary any = float64(rng.Intn(1000))
		if rng.Intn(8) == 0 {
			salary = nil
		}
		rows[i] = table.Row{
			Key:    table.DefaultRowKey(int64(i)),
			Values: []any{depts[rng.Intn(len(depts))], level, salary, rng.Intn(2) == 0},
		}
	}
	spec := groupby.Spec{
		GroupBy: []string{"dept", "level"},
		Aggregations: []groupby.Aggregation{
			{Column: "salary", Operator: aggregate.AggNameSum},
			{Column: "salary", Operator: aggregate.AggNameMean, Name: "avg"},
			{Column: "salary", Operator: aggregate.AggNameMissingCount},
			{Column: "remote", Operator: aggregate.AggNameFirst},
			{Column: "remote", Operator: aggregate.AggNameLast},
			{Column: "dept", Operator: aggregate.AggNameConcatenate},
		},
		CountColumn: "n",
		Hilite:      true,
	}
	cfg := spillConfig(t)

	inMemory, err := groupby.Group(context.Background(), table.NewRowSource(schema, rows, true), spec,
		aggregate.Builtins(), groupby.Options{Strategy: groupby.StrategyInMemory, Config: cfg})
	require.NoError(t, err)
	defer inMemory.Release()

	sorted, err := groupby.Group(context.Background(), table.NewRowSource(schema, rows, false), spec,
		aggregate.Builtins(), groupby.Options{Config: cfg})
	require.NoError(t, err)
	defer sorted.Release()

	assert.Equal(t, groupby.StrategySorted, sorted.Strategy)
	assert.Greater(t, sorted.SpilledRuns, 1)
	assert.Equal(t, inMemory.Groups, sorted.Groups)

	expected, actual := byKey(inMemory, 2), byKey(sorted, 2)
	require.Len(t, actual, len(expected))
	for key, values := range expected {
		got, ok := actual[key]
		require.True(t, ok, key)
		require.Len(t, got, len(values))
		for i := range values {
			if f, isFloat := values[i].(float64); isFloat {
				assert.InDelta(t, f, got[i].(float64), 1e-6, key)
				continue
			}
			assert.Equal(t, values[i], got[i], key)
		}
	}

	// Sorted output is in key order.
	out := sorted.Table.Collect()
	assert.True(t, sort.SliceIsSorted(out, func(i, j int) bool {
		return table.CompareAt([]int{0, 1}, []table.ValueType{table.TypeString, table.TypeInt64}, out[i], out[j]) < 0
	}))

	// Every source row contributes to exactly one group.
	var total uint64
	for _, bm := range sorted.Hilite {
		total += bm.GetCardinality()
	}
	assert.Equal(t, uint64(len(rows)), total)

	// Spill files are removed.
	entries, err := os.ReadDir(cfg.SpillDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGroup_NegativeZeroKeys(t *testing.T) {
	schema := table.MustSchema(
		table.Column{Name: "x", Type: table.TypeFloat64},
		table.Column{Name: "v", Type: table.TypeInt64},
	)
	negZero := math.Copysign(0, -1)
	rows := []table.Row{
		{Key: "r0", Values: []any{0.0, int64(1)}},
		{Key: "r1", Values: []any{negZero, int64(10)}},
		{Key: "r2", Values: []any{0.0, int64(100)}},
		{Key: "r3", Values: []any{negZero, int64(1000)}},
	}
	spec := groupby.Spec{
		GroupBy:      []string{"x"},
		Aggregations: []groupby.Aggregation{{Column: "v", Operator: aggregate.AggNameSum}},
	}

	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			res, err := groupby.Group(context.Background(), table.NewRowSource(schema, rows, true), spec,
				aggregate.Builtins(), groupby.Options{Strategy: strategy, Config: spillConfig(t)})
			require.NoError(t, err)
			defer res.Release()

			require.Equal(t, int64(2), res.Groups)
			sums := make(map[bool]int64)
			for _, r := range res.Table.Collect() {
				sums[math.Signbit(r.Values[0].(float64))] = r.Values[1].(int64)
			}
			assert.Equal(t, map[bool]int64{false: 101, true: 1010}, sums)
		})
	}
}

func TestGroup_NoGroupColumns(t *testing.T) {
	schema := table.MustSchema(table.Column{Name: "v", Type: table.TypeFloat64})
	spec := groupby.Spec{
		Aggregations: []groupby.Aggregation{
			{Column: "v", Operator: aggregate.AggNameSum},
			{Column: "v", Operator: aggregate.AggNameCount},
		},
		CountColumn: "rows",
	}

	for _, strategy := range strategies {
		t.Run(strategy.String()+" empty input", func(t *testing.T) {
			res, err := groupby.Group(context.Background(), table.NewRowSource(schema, nil, true), spec,
				aggregate.Builtins(), groupby.Options{Strategy: strategy, Config: spillConfig(t)})
			require.NoError(t, err)
			defer res.Release()

			assert.Equal(t, []table.Row{{Key: "Row0", Values: []any{nil, int64(0), int64(0)}}}, res.Table.Collect())
		})

		t.Run(strategy.String()+" rows", func(t *testing.T) {
			tbl := testutil.NewTable(t, schema, testutil.R("a", 1.5), testutil.R("b", nil), testutil.R("c", 2))
			res, err := groupby.Group(context.Background(), tbl, spec,
				aggregate.Builtins(), groupby.Options{Strategy: strategy, Config: spillConfig(t)})
			require.NoError(t, err)
			defer res.Release()

			assert.Equal(t, []table.Row{{Key: "Row0", Values: []any{3.5, int64(2), int64(3)}}}, res.Table.Collect())
		})
	}
}

func TestGroup_MissingKeysFormAGroup(t *testing.T) {
	schema := table.MustSchema(
		table.Column{Name: "k", Type: table.TypeString},
		table.Column{Name: "v", Type: table.TypeInt64},
	)
	tbl := testutil.NewTable(t, schema,
		testutil.R("r0", "b", 1),
		testutil.R("r1", nil, 2),
		testutil.R("r2", "a", 3),
		testutil.R("r3", nil, 4),
	)
	spec := groupby.Spec{
		GroupBy:      []string{"k"},
		Aggregations: []groupby.Aggregation{{Column: "v", Operator: aggregate.AggNameMax}},
		Hilite:       true,
	}

	inMemory, err := groupby.Group(context.Background(), tbl, spec, aggregate.Builtins(),
		groupby.Options{Strategy: groupby.StrategyInMemory})
	require.NoError(t, err)
	defer inMemory.Release()
	assert.Equal(t, [][]any{{"b", int64(1)}, {nil, int64(4)}, {"a", int64(3)}}, values(inMemory))
	assert.Equal(t, []uint64{1, 3}, inMemory.Hilite[1].ToArray())

	sorted, err := groupby.Group(context.Background(), tbl, spec, aggregate.Builtins(),
		groupby.Options{Strategy: groupby.StrategySorted, Config: spillConfig(t)})
	require.NoError(t, err)
	defer sorted.Release()
	assert.Equal(t, [][]any{{nil, int64(4)}, {"a", int64(3)}, {"b", int64(1)}}, values(sorted))
	assert.Equal(t, []uint64{1, 3}, sorted.Hilite[0].ToArray())
}

func values(res *groupby.Result) [][]any {
	var out [][]any
	for _, r := range res.Table.Collect() {
		out = append(out, r.Values)
	}
	return out
}

func TestGroup_AutoStrategy(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()
	tbl := testutil.CreateTestTable(mem.Allocator, testutil.WithRowCount(20))
	defer tbl.Release()
	spec := groupby.Spec{GroupBy: []string{"department"}, CountColumn: "n"}

	cfg := config.NewConfig()
	res, err := groupby.Group(context.Background(), tbl, spec, aggregate.Builtins(), groupby.Options{Config: &cfg})
	require.NoError(t, err)
	defer res.Release()
	assert.Equal(t, groupby.StrategyInMemory, res.Strategy)
	assert.Equal(t, int64(5), res.Groups)
	assert.NotEmpty(t, res.RunID)

	small := config.NewConfig()
	small.MaxInMemoryRows = 10
	small.SpillDir = t.TempDir()
	res2, err := groupby.Group(context.Background(), tbl, spec, aggregate.Builtins(), groupby.Options{Config: &small})
	require.NoError(t, err)
	defer res2.Release()
	assert.Equal(t, groupby.StrategySorted, res2.Strategy)
	assert.Equal(t, int64(5), res2.Groups)
	assert.Zero(t, res2.SpilledRuns)
}

func TestGroup_ConfigurationErrors(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()
	tbl := testutil.CreateTestTable(mem.Allocator)
	defer tbl.Release()

	tests := []struct {
		name     string
		spec     groupby.Spec
		contains string
	}{
		{
			name:     "missing group column",
			spec:     groupby.Spec{GroupBy: []string{"nope"}},
			contains: "column does not exist",
		},
		{
			name:     "duplicate group column",
			spec:     groupby.Spec{GroupBy: []string{"name", "name"}},
			contains: "duplicate group column",
		},
		{
			name: "missing aggregation column",
			spec: groupby.Spec{Aggregations: []groupby.Aggregation{{Column: "nope", Operator: "sum"}}},
			contains: "column does not exist",
		},
		{
			name: "unknown operator",
			spec: groupby.Spec{Aggregations: []groupby.Aggregation{{Column: "age", Operator: "median"}}},
			contains: `unknown aggregation operator "median"`,
		},
		{
			name: "inapplicable operator",
			spec: groupby.Spec{Aggregations: []groupby.Aggregation{{Column: "name", Operator: "sum"}}},
			contains: "operator sum is not applicable to string values",
		},
		{
			name: "clashing output names",
			spec: groupby.Spec{
				GroupBy:      []string{"name"},
				Aggregations: []groupby.Aggregation{{Column: "age", Operator: "max", Name: "name"}},
			},
			contains: "duplicate output column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := groupby.Group(context.Background(), tbl, tt.spec, aggregate.Builtins(), groupby.Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}

	_, err := groupby.Group(context.Background(), tbl, groupby.Spec{}, nil, groupby.Options{})
	assert.ErrorIs(t, err, errors.ErrConfiguration)
}

func TestGroup_Cancellation(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()
	tbl := testutil.CreateTestTable(mem.Allocator, testutil.WithRowCount(50))
	defer tbl.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, strategy := range strategies {
		cfg := spillConfig(t)
		_, err := groupby.Group(ctx, tbl, groupby.Spec{GroupBy: []string{"name"}}, aggregate.Builtins(),
			groupby.Options{Strategy: strategy, Config: cfg})
		require.Error(t, err)
		assert.True(t, errors.IsCanceled(err), strategy.String())

		entries, err := os.ReadDir(cfg.SpillDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
}

func TestOutputSchema(t *testing.T) {
	schema := testutil.EmployeeSchema(true)
	out, err := groupby.OutputSchema(schema, groupby.Spec{
		GroupBy: []string{"department", "active"},
		Aggregations: []groupby.Aggregation{
			{Column: "age", Operator: "mean"},
			{Column: "salary", Operator: "max", Name: "top"},
			{Column: "name", Operator: "unique_count"},
		},
		CountColumn: "count",
	}, aggregate.Builtins())
	require.NoError(t, err)

	assert.Equal(t, []table.Column{
		{Name: "department", Type: table.TypeString},
		{Name: "active", Type: table.TypeBool},
		{Name: "mean(age)", Type: table.TypeFloat64},
		{Name: "top", Type: table.TypeFloat64},
		{Name: "unique_count(name)", Type: table.TypeInt64},
		{Name: "count", Type: table.TypeInt64},
	}, out.Columns())
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name     string
		expected groupby.Strategy
		wantErr  bool
	}{
		{"", groupby.StrategyAuto, false},
		{"auto", groupby.StrategyAuto, false},
		{"in-memory", groupby.StrategyInMemory, false},
		{"sorted", groupby.StrategySorted, false},
		{"hash", groupby.StrategyAuto, true},
		{"Sorted", groupby.StrategyAuto, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := groupby.ParseStrategy(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrConfiguration)
				assert.ErrorContains(t, err, "unknown grouping strategy")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s)
		})
	}
}
