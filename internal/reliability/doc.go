// Package reliability provides the retry and circuit breaker primitives
// used by the retrying and circuit breaking handlers.
//
//   - Retry Policies: exponential backoff, linear and fixed delay
//   - Circuit Breaker: stops calling a failing method until it recovers
//
// Errors may opt out of retries by implementing IsRetryable() bool.
//
// Example usage:
//
//	cb := NewCircuitBreaker(
//	    WithFailureThreshold(5),
//	    WithSuccessThreshold(3),
//	    WithTimeout(30 * time.Second),
//	)
//
//	err := cb.Execute(ctx, func() error {
//	    return riskyOperation()
//	})
package reliability
