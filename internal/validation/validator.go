// Package validation provides reusable validators for filter and grouping settings.
// Every validator reports configuration errors from internal/errors so callers
// can fail before any row is read.
package validation

import (
	"fmt"
	"slices"

	"github.com/paveg/tabula/internal/errors"
	"github.com/paveg/tabula/internal/table"
)

// Validator interface for input validation
type Validator interface {
	Validate() error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func() error

// Validate implements Validator.
func (f ValidatorFunc) Validate() error { return f() }

// ColumnValidator validates column existence
type ColumnValidator struct {
	schema  *table.Schema
	columns []string
	op      string
}

// NewColumnValidator creates a validator for column operations
func NewColumnValidator(schema *table.Schema, op string, columns ...string) *ColumnValidator {
	return &ColumnValidator{
		schema:  schema,
		columns: columns,
		op:      op,
	}
}

// Validate checks if all columns exist in the schema
func (v *ColumnValidator) Validate() error {
	for _, column := range v.columns {
		if !v.schema.HasColumn(column) {
			return errors.NewColumnNotFoundError(v.op, column)
		}
	}
	return nil
}

// ColumnTypeValidator validates that a column has one of the allowed types
type ColumnTypeValidator struct {
	schema  *table.Schema
	column  string
	allowed []table.ValueType
	op      string
}

// NewColumnTypeValidator creates a validator for column type checking
func NewColumnTypeValidator(schema *table.Schema, op, column string, allowed ...table.ValueType) *ColumnTypeValidator {
	return &ColumnTypeValidator{
		schema:  schema,
		column:  column,
		allowed: allowed,
		op:      op,
	}
}

// Validate checks the column exists and has a supported type
func (v *ColumnTypeValidator) Validate() error {
	i, ok := v.schema.Index(v.column)
	if !ok {
		return errors.NewColumnNotFoundError(v.op, v.column)
	}
	typ := v.schema.Column(i).Type
	if slices.Contains(v.allowed, typ) {
		return nil
	}
	return errors.NewConfigurationError(v.op, v.column, fmt.Sprintf("unsupported type: %s", typ))
}

// UniqueValidator validates that names do not repeat
type UniqueValidator struct {
	names []string
	what  string
	op    string
}

// NewUniqueValidator creates a validator rejecting duplicate names
func NewUniqueValidator(op, what string, names ...string) *UniqueValidator {
	return &UniqueValidator{names: names, what: what, op: op}
}

// Validate checks the names are distinct
func (v *UniqueValidator) Validate() error {
	seen := make(map[string]struct{}, len(v.names))
	for _, n := range v.names {
		if _, dup := seen[n]; dup {
			return errors.NewConfigurationError(v.op, n, fmt.Sprintf("duplicate %s", v.what))
		}
		seen[n] = struct{}{}
	}
	return nil
}

// NonEmptyValidator validates that a list has at least one element
type NonEmptyValidator struct {
	length  int
	message string
	op      string
}

// NewNonEmptyValidator creates a validator failing with message when length is zero
func NewNonEmptyValidator(length int, op, message string) *NonEmptyValidator {
	return &NonEmptyValidator{length: length, message: message, op: op}
}

// Validate checks the length is positive
func (v *NonEmptyValidator) Validate() error {
	if v.length <= 0 {
		return errors.NewConfigurationError(v.op, "", v.message)
	}
	return nil
}

// CompoundValidator combines multiple validators
type CompoundValidator struct {
	validators []Validator
}

// NewCompoundValidator creates a validator that checks multiple conditions
func NewCompoundValidator(validators ...Validator) *CompoundValidator {
	return &CompoundValidator{
		validators: validators,
	}
}

// Validate runs all validators and returns the first error encountered
func (v *CompoundValidator) Validate() error {
	for _, validator := range v.validators {
		if err := validator.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Convenience validation functions

// ValidateColumns is a convenience function for column validation
func ValidateColumns(schema *table.Schema, op string, columns ...string) error {
	return NewColumnValidator(schema, op, columns...).Validate()
}

// ValidateColumnType is a convenience function for column type validation
func ValidateColumnType(schema *table.Schema, op, column string, allowed ...table.ValueType) error {
	return NewColumnTypeValidator(schema, op, column, allowed...).Validate()
}

// ValidateNotEmpty is a convenience function for non-empty list validation
func ValidateNotEmpty(length int, op, message string) error {
	return NewNonEmptyValidator(length, op, message).Validate()
}
