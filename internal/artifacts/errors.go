// Package artifacts encodes pipeline outputs and publishes them to a sink.
package artifacts

import "fmt"

// Error represents an artifact encoding or publication error
type Error struct {
	Artifact string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("artifact error: %s: %s: %v", e.Artifact, e.Message, e.Cause)
	}
	return fmt.Sprintf("artifact error: %s: %s", e.Artifact, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
