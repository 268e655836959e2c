// Package testutil provides table builders and assertions shared by the
// filter and grouping tests.
package testutil

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paveg/tabula/internal/progress"
	"github.com/paveg/tabula/internal/table"
)

const (
	// defaultRowCount is the default number of rows in test tables.
	defaultRowCount = 4
)

// TestMemoryContext provides an allocator with automatic cleanup.
type TestMemoryContext struct {
	Allocator memory.Allocator
	cleanup   func()
}

// Release performs cleanup of the memory context.
func (tmc *TestMemoryContext) Release() {
	if tmc.cleanup != nil {
		tmc.cleanup()
	}
}

// SetupMemoryTest creates an allocator for a test.
//
// Example usage:
//
//	mem := testutil.SetupMemoryTest(t)
//	defer mem.Release()
func SetupMemoryTest(tb testing.TB) *TestMemoryContext {
	tb.Helper()
	return &TestMemoryContext{
		Allocator: memory.NewGoAllocator(),
		cleanup:   func() {},
	}
}

// TestTableOption configures test table creation.
type TestTableOption func(*testTableConfig)

type testTableConfig struct {
	includeNulls bool
	rowCount     int
	withActive   bool
}

// WithNulls leaves every third department cell missing.
func WithNulls() TestTableOption {
	return func(cfg *testTableConfig) {
		cfg.includeNulls = true
	}
}

// WithRowCount sets the number of rows in test data.
func WithRowCount(count int) TestTableOption {
	return func(cfg *testTableConfig) {
		cfg.rowCount = count
	}
}

// WithActiveColumn includes an 'active' boolean column.
func WithActiveColumn() TestTableOption {
	return func(cfg *testTableConfig) {
		cfg.withActive = true
	}
}

// EmployeeSchema is the schema of CreateTestTable without the active column.
func EmployeeSchema(withActive bool) *table.Schema {
	cols := []table.Column{
		{Name: "name", Type: table.TypeString},
		{Name: "age", Type: table.TypeInt64},
		{Name: "department", Type: table.TypeString},
		{Name: "salary", Type: table.TypeFloat64},
	}
	if withActive {
		cols = append(cols, table.Column{Name: "active", Type: table.TypeBool})
	}
	return table.MustSchema(cols...)
}

// CreateTestTable creates a table with employee data keyed Row0, Row1, ...
//
// Default table includes:
// - name (string): ["Alice", "Bob", "Charlie", "David"]
// - age (int64): [25, 30, 35, 28]
// - department (string): ["Engineering", "Sales", "Engineering", "Marketing"]
// - salary (float64): [100000, 80000, 120000, 75000]
func CreateTestTable(allocator memory.Allocator, opts ...TestTableOption) *table.MemTable {
	cfg := &testTableConfig{rowCount: defaultRowCount}
	for _, opt := range opts {
		opt(cfg)
	}

	rows := make([]table.Row, cfg.rowCount)
	for i := range cfg.rowCount {
		values := []any{
			baseNames[i%len(baseNames)],
			baseAges[i%len(baseAges)],
			baseDepts[i%len(baseDepts)],
			baseSalaries[i%len(baseSalaries)],
		}
		if cfg.includeNulls && i%3 == 2 {
			values[2] = nil
		}
		if cfg.withActive {
			values = append(values, baseFlags[i%len(baseFlags)])
		}
		rows[i] = table.Row{Key: table.DefaultRowKey(int64(i)), Values: values}
	}

	t, err := table.FromRows(EmployeeSchema(cfg.withActive), allocator, rows...)
	if err != nil {
		panic(err)
	}
	return t
}

// CreateSimpleTestTable creates a two-row table with name and age columns.
func CreateSimpleTestTable(allocator memory.Allocator) *table.MemTable {
	schema := table.MustSchema(
		table.Column{Name: "name", Type: table.TypeString},
		table.Column{Name: "age", Type: table.TypeInt64},
	)
	t, err := table.FromRows(schema, allocator,
		R("Row0", "Alice", 25),
		R("Row1", "Bob", 30),
	)
	if err != nil {
		panic(err)
	}
	return t
}

// R builds a row. Values are converted to the column types by NewTable.
func R(key string, values ...any) table.Row {
	return table.Row{Key: key, Values: values}
}

// NewTable builds a table from rows and releases it when the test ends.
func NewTable(tb testing.TB, schema *table.Schema, rows ...table.Row) *table.MemTable {
	tb.Helper()
	t, err := table.FromRows(schema, memory.NewGoAllocator(), rows...)
	require.NoError(tb, err)
	tb.Cleanup(t.Release)
	return t
}

// Keys returns the row keys of rows.
func Keys(rows []table.Row) []string {
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	return keys
}

// AssertTableKeys verifies the row keys of t in order.
func AssertTableKeys(t *testing.T, tbl *table.MemTable, expected ...string) {
	t.Helper()
	require.NotNil(t, tbl, "table should not be nil")
	if len(expected) == 0 {
		assert.Zero(t, tbl.Size(), "table should be empty")
		return
	}
	assert.Equal(t, expected, tbl.Keys())
}

// AssertTableEqual compares schema and every row of two tables.
func AssertTableEqual(t *testing.T, expected, actual *table.MemTable) {
	t.Helper()

	require.NotNil(t, expected, "expected table should not be nil")
	require.NotNil(t, actual, "actual table should not be nil")

	assert.True(t, expected.Schema().Equal(actual.Schema()),
		"schemas should match: %s vs %s", expected.Schema(), actual.Schema())
	assert.Equal(t, expected.Size(), actual.Size(), "table sizes should match")
	assert.Equal(t, expected.Collect(), actual.Collect(), "rows should match")
}

// AssertTableHasColumns verifies that a table has exactly the expected columns.
func AssertTableHasColumns(t *testing.T, tbl *table.MemTable, expectedColumns []string) {
	t.Helper()

	require.NotNil(t, tbl, "table should not be nil")
	assert.Equal(t, expectedColumns, tbl.Schema().Names())
}

// AssertTableNotEmpty verifies that a table has rows and columns.
func AssertTableNotEmpty(t *testing.T, tbl *table.MemTable) {
	t.Helper()

	require.NotNil(t, tbl, "table should not be nil")
	assert.Positive(t, tbl.Size(), "table should not be empty")
	assert.Positive(t, tbl.Schema().Len(), "table should have columns")
}

var (
	baseNames    = []string{"Alice", "Bob", "Charlie", "David", "Eve", "Frank", "Grace", "Henry"}
	baseAges     = []int64{25, 30, 35, 28, 32, 45, 29, 38}
	baseDepts    = []string{"Engineering", "Sales", "Engineering", "Marketing", "HR", "Finance", "Engineering", "Sales"}
	baseSalaries = []float64{100000, 80000, 120000, 75000, 90000, 110000, 95000, 85000}
	baseFlags    = []bool{true, true, false, true, true, false, true, false}
)

// ProgressRecorder keeps every progress report it receives.
type ProgressRecorder struct {
	Reports []progress.Report
}

// Func returns a progress.Func appending to Reports.
func (r *ProgressRecorder) Func() progress.Func {
	return func(rep progress.Report) { r.Reports = append(r.Reports, rep) }
}
