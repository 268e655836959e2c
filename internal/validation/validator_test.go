package validation_test

import (
	"testing"

	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/table"
	"github.com/paveg/tabula/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *table.Schema {
	return table.MustSchema(
		table.Column{Name: "name", Type: table.TypeString},
		table.Column{Name: "age", Type: table.TypeInt64},
	)
}

func TestColumnValidator(t *testing.T) {
	schema := testSchema()

	assert.NoError(t, validation.ValidateColumns(schema, "GroupBy", "name", "age"))

	err := validation.ValidateColumns(schema, "GroupBy", "name", "dept")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfiguration)
	assert.Contains(t, err.Error(), "'dept'")
}

func TestColumnTypeValidator(t *testing.T) {
	schema := testSchema()

	tests := []struct {
		name    string
		column  string
		allowed []table.ValueType
		wantErr string
	}{
		{"supported", "age", []table.ValueType{table.TypeInt64, table.TypeFloat64}, ""},
		{"unsupported", "name", []table.ValueType{table.TypeInt64}, "unsupported type: string"},
		{"missing", "dept", []table.ValueType{table.TypeString}, "column does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.ValidateColumnType(schema, "Aggregate", tt.column, tt.allowed...)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCompoundValidator(t *testing.T) {
	calls := 0
	counting := validation.ValidatorFunc(func() error {
		calls++
		return nil
	})

	v := validation.NewCompoundValidator(
		counting,
		validation.NewUniqueValidator("GroupBy", "output column", "a", "b", "a"),
		counting,
	)

	err := v.Validate()
	assert.ErrorContains(t, err, "duplicate output column")
	assert.Equal(t, 1, calls)
}

func TestValidateNotEmpty(t *testing.T) {
	assert.NoError(t, validation.ValidateNotEmpty(1, "Filter", "need at least one filter criterion"))
	assert.ErrorContains(t,
		validation.ValidateNotEmpty(0, "Filter", "need at least one filter criterion"),
		"need at least one filter criterion")
}
