package reliability

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownState is returned when the breaker is in an unexpected state
	ErrUnknownState = errors.New("circuit breaker: unknown state")

	// ErrNonRetryable marks errors that must not be retried
	ErrNonRetryable = errors.New("retry: error is not retryable")
)

// CircuitBreakerError represents a rejected execution
type CircuitBreakerError struct {
	Name             string
	State            State
	Failures         int
	FailureThreshold int
	LastFailure      time.Time
	NextRetry        time.Time
}

func (e *CircuitBreakerError) Error() string {
	switch e.State {
	case StateOpen:
		retryIn := time.Until(e.NextRetry).Round(time.Millisecond)
		return fmt.Sprintf("circuit breaker %s open: call blocked (failures=%d/%d, retry in %v)",
			e.Name, e.Failures, e.FailureThreshold, retryIn)
	case StateHalfOpen:
		return fmt.Sprintf("circuit breaker %s half-open: call limited", e.Name)
	default:
		return fmt.Sprintf("circuit breaker %s error in state %v", e.Name, e.State)
	}
}
