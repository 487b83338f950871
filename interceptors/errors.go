package interceptors

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownMethod is returned when a call names a method outside the registry
	ErrUnknownMethod = errors.New("unknown method")

	// ErrInvalidArguments is returned when arguments do not fit a bound method
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrInvocationTimeout is returned by TimeoutHandler when the deadline passes
	ErrInvocationTimeout = errors.New("invocation timeout")

	// ErrRateLimited is returned by a non-waiting TokenBucketLimiter
	ErrRateLimited = errors.New("rate limited")
)

// UnknownMethodError reports a call to a method the base target does not have
type UnknownMethodError struct {
	Method string
	Target string
}

// Error implements the error interface
func (e *UnknownMethodError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("call attempt on undefined method: %s", e.Method)
	}
	return fmt.Sprintf("call attempt on undefined method: %s.%s", e.Target, e.Method)
}

// Is matches ErrUnknownMethod
func (e *UnknownMethodError) Is(target error) bool {
	return target == ErrUnknownMethod
}

// IsRetryable reports false; retrying a missing method never helps.
func (e *UnknownMethodError) IsRetryable() bool {
	return false
}

// IsUnknownMethod checks if an error is an unknown method error
func IsUnknownMethod(err error) bool {
	return errors.Is(err, ErrUnknownMethod)
}
// InvocationTimeoutError reports a call abandoned by TimeoutHandler. The
// abandoned call may still be running, so the error is not retryable:
// a retry would run the method body twice at once.
type InvocationTimeoutError struct {
	Method       string
	InvocationID string
	Timeout      time.Duration
}

// Error implements the error interface
func (e *InvocationTimeoutError) Error() string {
	return fmt.Sprintf("%s: %s after %v (invocation %s)", ErrInvocationTimeout, e.Method, e.Timeout, e.InvocationID)
}

// Is matches ErrInvocationTimeout
func (e *InvocationTimeoutError) Is(target error) bool {
	return target == ErrInvocationTimeout
}

// IsRetryable reports false
func (e *InvocationTimeoutError) IsRetryable() bool {
	return false
}
