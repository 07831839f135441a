// Package report assembles the data quality report of a pipeline run.
package report

import "fmt"

// Error represents a report generation error
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("report error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("report error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
