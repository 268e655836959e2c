package errors_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/paveg/tabula/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestTableError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *errors.TableError
		expected string
	}{
		{
			name:     "Error with column",
			err:      errors.NewColumnNotFoundError("Compile", "age"),
			expected: "Compile configuration error on column 'age': column does not exist",
		},
		{
			name:     "Error without column",
			err:      errors.NewConsistencyError("Slice", "ranges do not span table"),
			expected: "Slice consistency error: ranges do not span table",
		},
		{
			name:     "Error with cause",
			err:      errors.NewIOError("Scan", stderrors.New("disk full")),
			expected: "Scan io error: i/o failure: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestTableError_IsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", errors.NewConfigurationError("Compile", "x", "missing value"))

	assert.ErrorIs(t, err, errors.ErrConfiguration)
	assert.NotErrorIs(t, err, errors.ErrConsistency)
	assert.NotErrorIs(t, err, errors.ErrCanceled)
}

func TestTableError_IsExact(t *testing.T) {
	a := errors.NewColumnNotFoundError("GroupBy", "dept")
	b := errors.NewColumnNotFoundError("GroupBy", "dept")
	c := errors.NewColumnNotFoundError("GroupBy", "name")

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}

func TestIsCanceled(t *testing.T) {
	assert.True(t, errors.IsCanceled(errors.NewCanceledError("Scan", context.Canceled)))
	assert.True(t, errors.IsCanceled(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.False(t, errors.IsCanceled(errors.NewConsistencyError("Scan", "boom")))
}

func TestTableError_Unwrap(t *testing.T) {
	cause := stderrors.New("underlying error")
	err := errors.NewIOError("Spill", cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)
}
