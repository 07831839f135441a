// Package ingestion reads raw tabular extracts into untyped tables.
package ingestion

import "fmt"

// ReadError represents a failure opening or decoding a raw extract
type ReadError struct {
	Message string
	Cause   error
}

func (e *ReadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ingestion error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("ingestion error: %s", e.Message)
}

func (e *ReadError) Unwrap() error {
	return e.Cause
}

// HeaderError represents an unusable header row
type HeaderError struct {
	Table   string
	Message string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("header error: table %s: %s", e.Table, e.Message)
}
