package types

import "time"

// Outcome is the tagged result of a single attempt: either a value or an error
type Outcome[R any] struct {
	// Attempt is the 1-based attempt number that produced the outcome
	Attempt int

	// Value is the attempt result, meaningful only when Err is nil
	Value R

	// Err is the attempt error
	Err error
}

// Failed reports whether the attempt failed
func (o Outcome[R]) Failed() bool {
	return o.Err != nil
}

// Result defines the result of asynchronous execution
type Result[R any] struct {
	// Value is the execution result
	Value R

	// Error is the execution error
	Error error

	// Attempts is the number of attempts made
	Attempts int

	// Duration is the execution time
	Duration time.Duration
}
