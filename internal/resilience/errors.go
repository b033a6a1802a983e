// Package resilience classifies delivery failures, computes retry schedules
// and guards the outbound transport with a circuit breaker.
package resilience

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is matched by CircuitOpenError via errors.Is.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitOpenError is returned while the breaker rejects calls.
type CircuitOpenError struct {
	Failures int
	RetryAt  time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open after %d consecutive failures, retry at %s",
		e.Failures, e.RetryAt.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrCircuitOpen) succeed.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// TransportError is a classified delivery failure.
type TransportError struct {
	Failure Failure
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Failure.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryable returns whether the failure may be retried.
func (e *TransportError) IsRetryable() bool {
	return e.Failure.Retriable
}
