// Package types defines error types
package types

import (
	"errors"
	"fmt"
	"time"
)

// Predefined errors
var (
	// ErrNilOperation indicates an engine was invoked without an operation
	ErrNilOperation = errors.New("retry: nil operation")

	// ErrNilPolicy indicates an engine was invoked without a policy
	ErrNilPolicy = errors.New("retry: nil policy")

	// ErrPolicyFailed indicates the policy itself failed and the session was aborted
	ErrPolicyFailed = errors.New("retry: policy failed")

	// ErrNilResponse indicates a transport returned neither a response nor an error
	ErrNilResponse = errors.New("retry: transport returned nil response")

	// ErrBodyNotReplayable indicates a request body cannot be re-sent on retry
	ErrBodyNotReplayable = errors.New("retry: request body is not replayable (GetBody is nil)")
)

// PolicyError reports a policy that returned an error or panicked while being consulted.
// The session that owned the policy is aborted; no further attempts are made.
type PolicyError struct {
	// SessionID identifies the aborted session
	SessionID string

	// Attempt is the attempt whose outcome was being evaluated
	Attempt int

	// Cause is the error returned by the policy, or a panic converted to an error
	Cause error
}

// Error implements the error interface
func (e *PolicyError) Error() string {
	return fmt.Sprintf("retry: policy failed in session %s at attempt %d: %v", e.SessionID, e.Attempt, e.Cause)
}

// Unwrap returns the underlying error
func (e *PolicyError) Unwrap() error {
	return e.Cause
}

// Is reports ErrPolicyFailed as a match in addition to the cause chain
func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicyFailed
}

// NewPolicyError creates a new policy error
func NewPolicyError(sessionID string, attempt int, cause error) *PolicyError {
	return &PolicyError{
		SessionID: sessionID,
		Attempt:   attempt,
		Cause:     cause,
	}
}

// RetryableError represents a retryable error
type RetryableError struct {
	// Err is the underlying error
	Err error

	// Retryable indicates whether the error is retryable
	Retryable bool

	// RetryAfter is the suggested retry delay
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable marks err as retryable
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err, Retryable: true}
}

// Permanent marks err as never retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err, Retryable: false}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}
	return false
}

// GetRetryDelay returns the suggested retry delay
func GetRetryDelay(err error) time.Duration {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.RetryAfter
	}
	return 0
}
