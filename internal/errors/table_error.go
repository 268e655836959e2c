// Package errors provides standardized error types for filter and grouping operations.
// Every error raised by the engine is a *TableError carrying the operation name,
// the column it concerns (if any) and the taxonomy kind, so callers can tell
// configuration mistakes from internal invariant violations and cancellation.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Kind classifies a TableError.
type Kind int

const (
	// KindConfiguration is raised before any row is processed.
	KindConfiguration Kind = iota
	// KindConsistency marks a violated internal invariant. Always fatal.
	KindConsistency
	// KindCanceled wraps a cooperative abort signal.
	KindCanceled
	// KindIO marks a failure reading or writing rows, spill files or table files.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConsistency:
		return "consistency"
	case KindCanceled:
		return "canceled"
	case KindIO:
		return "io"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// TableError represents standardized errors across all engine operations
type TableError struct {
	Kind    Kind
	Op      string // Operation name (e.g., "Compile", "Filter", "GroupBy")
	Column  string // Column name if applicable
	Message string // Human-readable error description
	Cause   error  // Underlying error cause

	sentinel bool
}

// Error implements the error interface
func (e *TableError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Column != "" {
		return fmt.Sprintf("%s %s error on column '%s': %s", e.Op, e.Kind, e.Column, msg)
	}
	return fmt.Sprintf("%s %s error: %s", e.Op, e.Kind, msg)
}

// Unwrap returns the underlying cause for error wrapping support
func (e *TableError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel of this error's kind, or an
// identical TableError.
func (e *TableError) Is(target error) bool {
	t, ok := target.(*TableError)
	if !ok {
		return false
	}
	if t.sentinel {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Op == t.Op && e.Column == t.Column && e.Message == t.Message
}

// Sentinels for errors.Is checks by kind.
var (
	ErrConfiguration = &TableError{Kind: KindConfiguration, Op: "any", Message: "configuration error", sentinel: true}
	ErrConsistency   = &TableError{Kind: KindConsistency, Op: "any", Message: "consistency error", sentinel: true}
	ErrCanceled      = &TableError{Kind: KindCanceled, Op: "any", Message: "operation canceled", sentinel: true}
	ErrIO            = &TableError{Kind: KindIO, Op: "any", Message: "i/o error", sentinel: true}
)

// NewColumnNotFoundError creates an error for criteria or group columns absent from the schema
func NewColumnNotFoundError(op, column string) *TableError {
	return &TableError{
		Kind:    KindConfiguration,
		Op:      op,
		Column:  column,
		Message: "column does not exist",
	}
}

// NewConfigurationError creates an error for invalid settings.
func NewConfigurationError(op, column, message string) *TableError {
	return &TableError{
		Kind:    KindConfiguration,
		Op:      op,
		Column:  column,
		Message: message,
	}
}

// NewInapplicableOperatorError creates an error for an operator used on a target it cannot evaluate.
func NewInapplicableOperatorError(op, column, operator, valueType string) *TableError {
	return &TableError{
		Kind:    KindConfiguration,
		Op:      op,
		Column:  column,
		Message: fmt.Sprintf("operator %s is not applicable to %s values", operator, valueType),
	}
}

// NewConsistencyError creates an error for violated internal invariants.
func NewConsistencyError(op, message string) *TableError {
	return &TableError{
		Kind:    KindConsistency,
		Op:      op,
		Message: message,
	}
}

// NewCanceledError wraps a context error.
func NewCanceledError(op string, cause error) *TableError {
	return &TableError{
		Kind:    KindCanceled,
		Op:      op,
		Message: "operation canceled",
		Cause:   cause,
	}
}

// NewIOError wraps a failure of the underlying row source, sink or file.
func NewIOError(op string, cause error) *TableError {
	return &TableError{
		Kind:    KindIO,
		Op:      op,
		Message: "i/o failure",
		Cause:   cause,
	}
}

// IsCanceled reports whether err stems from a cancellation, either a wrapped
// context error or a KindCanceled TableError.
func IsCanceled(err error) bool {
	return stderrors.Is(err, ErrCanceled) ||
		stderrors.Is(err, context.Canceled) ||
		stderrors.Is(err, context.DeadlineExceeded)
}
