// Package validation checks tables against declared column, type, category and range contracts.
package validation

import (
	"fmt"
	"strings"

	"github.com/jonathan/workforce-capacity/internal/tabular"
)

// Error represents a general validation error
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// MissingColumnError is returned when contract columns are absent from a table
type MissingColumnError struct {
	Table   string
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column error: table %s: missing %s", e.Table, strings.Join(e.Columns, ", "))
}

// TypeMismatchError is returned when a critical column has the wrong kind
type TypeMismatchError struct {
	Table    string
	Column   string
	Expected tabular.Kind
	Actual   tabular.Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch error: table %s: column %s: expected %s, got %s", e.Table, e.Column, e.Expected, e.Actual)
}

// InvalidCategoryError is returned when an enumerated column holds values outside its enumeration
type InvalidCategoryError struct {
	Table   string
	Column  string
	Values  []string
	Allowed []string
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("invalid category error: table %s: column %s: values %s not in %s",
		e.Table, e.Column, quoteAll(e.Values), quoteAll(e.Allowed))
}

// ValidationFailedError is returned by Report.Err when a completed report did not pass
type ValidationFailedError struct {
	Table    string
	Contract string
	Failures []string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("validation failed: table %s against %s: %s", e.Table, e.Contract, strings.Join(e.Failures, "; "))
}

func quoteAll(vs []string) string {
	q := make([]string, len(vs))
	for i, v := range vs {
		q[i] = fmt.Sprintf("%q", v)
	}
	return "[" + strings.Join(q, ", ") + "]"
}
