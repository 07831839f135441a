// Package metrics computes workforce-to-capacity ratios, growth differentials,
// benchmark comparisons and mismatch summaries from cleaned records.
package metrics

import (
	"fmt"

	"github.com/jonathan/workforce-capacity/internal/types"
)

// Error represents a general metrics error
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("metrics error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("metrics error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// DivisionGuardError reports a ratio whose denominator is zero or missing.
// It is fatal for its (year, sector) only; the row is omitted.
type DivisionGuardError struct {
	Metric      string       `json:"metric"`
	Year        int          `json:"year"`
	Sector      types.Sector `json:"sector"`
	Numerator   float64      `json:"numerator"`
	Denominator *float64     `json:"denominator"`
}

func (e *DivisionGuardError) Error() string {
	if e.Denominator == nil {
		return fmt.Sprintf("division guard: %s for %s %d: denominator is missing", e.Metric, e.Sector, e.Year)
	}
	return fmt.Sprintf("division guard: %s for %s %d: denominator is zero", e.Metric, e.Sector, e.Year)
}

// BaseYearError reports an index base year with no data in a domain
type BaseYearError struct {
	Year   int
	Domain string
}

func (e *BaseYearError) Error() string {
	return fmt.Sprintf("base year %d not found in %s data", e.Year, e.Domain)
}

// InsufficientDataError reports a statistical test that cannot be computed
// from the available records. It is not fatal to a run.
type InsufficientDataError struct {
	Test   string
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: %s", e.Test, e.Reason)
}
