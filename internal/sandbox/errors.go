package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking. Snippet failures and timeouts are
// outcomes, not errors; these describe the request or the infrastructure.
var (
	ErrTimeout            = errors.New("execution timed out")
	ErrInvalidRequest     = errors.New("invalid execution request")
	ErrBackendUnavailable = errors.New("sandbox backend unavailable")
	ErrHarness            = errors.New("execution harness failed")
	ErrShuttingDown       = errors.New("supervisor is shutting down")
)

// ExecutionError wraps errors with execution context.
type ExecutionError struct {
	ExecID string
	Op     string // The operation that failed
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.ExecID != "" {
		return fmt.Sprintf("execution %s: %s: %s", e.ExecID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error is a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsInvalidRequest returns true if the request was rejected before running.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsUnavailable returns true if no worker could be started.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrShuttingDown)
}
