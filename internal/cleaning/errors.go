// Package cleaning standardizes raw extracts into canonical, typed, flagged tables.
package cleaning

import (
	"fmt"
	"strings"
)

// Error represents a general cleaning error
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cleaning error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("cleaning error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ColumnMappingError is returned when rules name columns the table does not have
type ColumnMappingError struct {
	Table   string
	Step    string
	Columns []string
}

func (e *ColumnMappingError) Error() string {
	return fmt.Sprintf("column mapping error: table %s: step %s: columns not found: %s",
		e.Table, e.Step, strings.Join(e.Columns, ", "))
}

// RulesError is returned when a rules descriptor is internally inconsistent
type RulesError struct {
	Field   string
	Message string
}

func (e *RulesError) Error() string {
	return fmt.Sprintf("rules error: %s: %s", e.Field, e.Message)
}
