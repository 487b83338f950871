package reliability

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines the interface for retry policies
type RetryPolicy interface {
	// ShouldRetry determines if a retry should be attempted
	ShouldRetry(attempt int, err error) (bool, time.Duration)
	// MaxRetries returns the maximum number of retries
	MaxRetries() int
	// NextDelay calculates the next retry delay
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff retry policy
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	Jitter          bool
}

// NewExponentialBackoff creates a new exponential backoff policy
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxRetries int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		MaxAttempts:     maxRetries,
		Jitter:          true,
	}
}

// ShouldRetry implements RetryPolicy
func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= e.MaxAttempts || !IsRetryableError(err) {
		return false, 0
	}
	return true, e.NextDelay(attempt)
}

// MaxRetries implements RetryPolicy
func (e *ExponentialBackoff) MaxRetries() int {
	return e.MaxAttempts
}

// NextDelay implements RetryPolicy
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempt))
	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}

	// ±15% jitter
	if e.Jitter {
		delay = delay + rand.Float64()*0.3*delay - 0.15*delay
	}

	return time.Duration(delay)
}

// LinearBackoff retries at a constant interval with optional jitter
type LinearBackoff struct {
	Interval    time.Duration
	MaxAttempts int
	Jitter      bool
}

// NewLinearBackoff creates a new linear backoff policy
func NewLinearBackoff(interval time.Duration, maxRetries int) *LinearBackoff {
	return &LinearBackoff{
		Interval:    interval,
		MaxAttempts: maxRetries,
		Jitter:      true,
	}
}

// ShouldRetry implements RetryPolicy
func (l *LinearBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= l.MaxAttempts || !IsRetryableError(err) {
		return false, 0
	}
	return true, l.NextDelay(attempt)
}

// MaxRetries implements RetryPolicy
func (l *LinearBackoff) MaxRetries() int {
	return l.MaxAttempts
}

// NextDelay implements RetryPolicy
func (l *LinearBackoff) NextDelay(attempt int) time.Duration {
	delay := l.Interval
	if l.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - (delay * 15 / 100)
	}
	return delay
}

// FixedDelay implements a fixed delay retry policy
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts int
}

// NewFixedDelay creates a new fixed delay policy
func NewFixedDelay(delay time.Duration, maxRetries int) *FixedDelay {
	return &FixedDelay{
		Delay:       delay,
		MaxAttempts: maxRetries,
	}
}

// ShouldRetry implements RetryPolicy
func (f *FixedDelay) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= f.MaxAttempts || !IsRetryableError(err) {
		return false, 0
	}
	return true, f.Delay
}

// MaxRetries implements RetryPolicy
func (f *FixedDelay) MaxRetries() int {
	return f.MaxAttempts
}

// NextDelay implements RetryPolicy
func (f *FixedDelay) NextDelay(attempt int) time.Duration {
	return f.Delay
}

// RetryNotifyFunc is called before each retry
type RetryNotifyFunc func(attempt int, err error, delay time.Duration)

// Retry executes fn until it succeeds or the policy gives up.
// The last error is returned unchanged.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	return RetryNotify(ctx, policy, fn, nil)
}

// RetryNotify is Retry with a callback before each retry
func RetryNotify(ctx context.Context, policy RetryPolicy, fn func() error, notify RetryNotifyFunc) error {
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}

		shouldRetry, delay := policy.ShouldRetry(attempt, err)
		if !shouldRetry {
			return err
		}

		if notify != nil {
			notify(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// RetryableError wraps an error to mark whether it may be retried
type RetryableError struct {
	Err       error
	Retryable bool
}

// Error implements error interface
func (r RetryableError) Error() string {
	return r.Err.Error()
}

// IsRetryable indicates if the error is retryable
func (r RetryableError) IsRetryable() bool {
	return r.Retryable
}

// Unwrap returns the wrapped error
func (r RetryableError) Unwrap() error {
	return r.Err
}

// Permanent marks err as not retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return RetryableError{Err: err, Retryable: false}
}

// IsRetryableError determines if an error is retryable.
// Unknown errors are retryable unless something in the chain says otherwise.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	type retryable interface {
		IsRetryable() bool
	}

	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	if errors.Is(err, ErrNonRetryable) {
		return false
	}

	// An open circuit is worth retrying only once its timeout has passed
	var cbErr *CircuitBreakerError
	if errors.As(err, &cbErr) {
		return cbErr.State != StateOpen || time.Now().After(cbErr.NextRetry)
	}

	return true
}
