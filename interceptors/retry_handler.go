package interceptors

import (
	"context"
	"log/slog"
	"time"

	"github.com/Rizky-Iqbal36/raw-blogs/internal/reliability"
)

// RetryHandler runs the original call again while the policy allows it.
// Errors that report IsRetryable() == false, UnknownMethodError among
// them, are returned after the first attempt.
type RetryHandler struct {
	retryPolicy reliability.RetryPolicy
	logger      *slog.Logger
}

// NewRetryHandler creates a new retry handler
func NewRetryHandler(retryPolicy reliability.RetryPolicy) *RetryHandler {
	return &RetryHandler{
		retryPolicy: retryPolicy,
		logger:      slog.Default(),
	}
}

// NewFixedRetryHandler retries up to maxRetries times with a fixed delay
func NewFixedRetryHandler(delay time.Duration, maxRetries int) *RetryHandler {
	return NewRetryHandler(reliability.NewFixedDelay(delay, maxRetries))
}

// WithLogger sets the logger for the retry handler
func (r *RetryHandler) WithLogger(logger *slog.Logger) *RetryHandler {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Handle implements Handler
func (r *RetryHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	var result any
	err := reliability.RetryNotify(ctx, r.retryPolicy, func() error {
		var err error
		result, err = proceed(ctx)
		return err
	}, func(attempt int, err error, delay time.Duration) {
		r.logger.Warn("retrying method",
			"invocationId", inv.ID,
			"method", inv.Method,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// Name returns the handler name
func (r *RetryHandler) Name() string {
	return "RetryHandler"
}
