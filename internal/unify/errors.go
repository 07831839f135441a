// Package unify concatenates same-shaped cleaned tables into one canonical table tagged with provenance.
package unify

import (
	"fmt"
	"strings"
)

// KindConflict describes a column whose kind differs from the reference table
type KindConflict struct {
	Column   string `json:"column"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// SchemaMismatchError is returned when a table does not share the unified schema
type SchemaMismatchError struct {
	Table         string
	Reference     string
	Missing       []string
	Extra         []string
	KindConflicts []KindConflict
}

func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "extra "+strings.Join(e.Extra, ", "))
	}
	for _, c := range e.KindConflicts {
		parts = append(parts, fmt.Sprintf("column %s is %s, expected %s", c.Column, c.Actual, c.Expected))
	}
	return fmt.Sprintf("schema mismatch error: table %s differs from %s: %s", e.Table, e.Reference, strings.Join(parts, "; "))
}

// RowCountError is returned when the unified table does not hold exactly the input rows
type RowCountError struct {
	Expected int
	Actual   int
}

func (e *RowCountError) Error() string {
	return fmt.Sprintf("row count error: expected %d rows, got %d", e.Expected, e.Actual)
}

// Error represents a malformed unify request
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unify error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("unify error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
