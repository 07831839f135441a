package benchmarks

import (
	"fmt"
	"strings"
)

// UnknownBenchmarkError is returned when a benchmark name is not registered
type UnknownBenchmarkError struct {
	Name      string
	Available []string
}

func (e *UnknownBenchmarkError) Error() string {
	return fmt.Sprintf("unknown benchmark %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// InvalidBenchmarkError is returned when a benchmark entry is malformed
type InvalidBenchmarkError struct {
	Name    string
	Message string
}

func (e *InvalidBenchmarkError) Error() string {
	return fmt.Sprintf("invalid benchmark %q: %s", e.Name, e.Message)
}
