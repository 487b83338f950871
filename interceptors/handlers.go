package interceptors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Built-in handlers

// LoggingHandler logs intercepted calls
type LoggingHandler struct {
	logger *slog.Logger
}

// NewLoggingHandler creates a new logging handler
func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &LoggingHandler{logger: logger}
}

// Handle implements Handler
func (h *LoggingHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	start := time.Now()

	h.logger.Info("invoking method",
		"invocationId", inv.ID,
		"target", inv.Target,
		"method", inv.Method,
		"depth", inv.Depth,
	)

	result, err := proceed(ctx)
	duration := time.Since(start)

	if err != nil {
		h.logger.Error("method invocation failed",
			"invocationId", inv.ID,
			"method", inv.Method,
			"duration", duration,
			"error", err,
		)
	} else {
		h.logger.Info("method invocation completed",
			"invocationId", inv.ID,
			"method", inv.Method,
			"duration", duration,
		)
	}

	return result, err
}

// Name implements Handler
func (h *LoggingHandler) Name() string {
	return "LoggingHandler"
}

// MetricsHandler collects call metrics
type MetricsHandler struct {
	collector MetricsCollector
}

// MetricsCollector defines the interface for collecting metrics
type MetricsCollector interface {
	IncrementCallCount(method string)
	RecordDuration(method string, duration time.Duration)
	IncrementErrorCount(method string, errorType string)
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(collector MetricsCollector) *MetricsHandler {
	return &MetricsHandler{collector: collector}
}

// Handle implements Handler
func (h *MetricsHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	start := time.Now()
	h.collector.IncrementCallCount(inv.Method)

	result, err := proceed(ctx)
	h.collector.RecordDuration(inv.Method, time.Since(start))

	if err != nil {
		h.collector.IncrementErrorCount(inv.Method, fmt.Sprintf("%T", err))
	}

	return result, err
}

// Name implements Handler
func (h *MetricsHandler) Name() string {
	return "MetricsHandler"
}

// MethodStats is a snapshot of the metrics of one method
type MethodStats struct {
	Calls         int64
	Errors        int64
	TotalDuration time.Duration
	MaxDuration   time.Duration
	ErrorsByType  map[string]int64
}

// InMemoryMetrics is a MetricsCollector that keeps counters in memory
type InMemoryMetrics struct {
	mu    sync.RWMutex
	stats map[string]*MethodStats
}

// NewInMemoryMetrics creates an empty collector
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{stats: make(map[string]*MethodStats)}
}

func (m *InMemoryMetrics) entry(method string) *MethodStats {
	s, ok := m.stats[method]
	if !ok {
		s = &MethodStats{ErrorsByType: make(map[string]int64)}
		m.stats[method] = s
	}
	return s
}

// IncrementCallCount implements MetricsCollector
func (m *InMemoryMetrics) IncrementCallCount(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(method).Calls++
}

// RecordDuration implements MetricsCollector
func (m *InMemoryMetrics) RecordDuration(method string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.entry(method)
	s.TotalDuration += duration
	if duration > s.MaxDuration {
		s.MaxDuration = duration
	}
}

// IncrementErrorCount implements MetricsCollector
func (m *InMemoryMetrics) IncrementErrorCount(method string, errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.entry(method)
	s.Errors++
	s.ErrorsByType[errorType]++
}

// Snapshot returns a copy of the collected stats
func (m *InMemoryMetrics) Snapshot() map[string]MethodStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]MethodStats, len(m.stats))
	for method, s := range m.stats {
		cp := *s
		cp.ErrorsByType = make(map[string]int64, len(s.ErrorsByType))
		for k, v := range s.ErrorsByType {
			cp.ErrorsByType[k] = v
		}
		out[method] = cp
	}
	return out
}

// Methods returns the observed method names in sorted order
func (m *InMemoryMetrics) Methods() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.stats))
	for name := range m.stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TracingHandler adds tracing spans around calls
type TracingHandler struct {
	tracer Tracer
}

// Tracer defines the interface for tracing
type Tracer interface {
	StartSpan(ctx context.Context, operationName string, inv *Invocation) (context.Context, Span)
}

// Span represents a tracing span
type Span interface {
	SetTag(key string, value any)
	SetError(err error)
	Finish()
}

// NewTracingHandler creates a new tracing handler
func NewTracingHandler(tracer Tracer) *TracingHandler {
	return &TracingHandler{tracer: tracer}
}

// Handle implements Handler
func (h *TracingHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	spanCtx, span := h.tracer.StartSpan(ctx, inv.Target+"."+inv.Method, inv)
	defer span.Finish()

	span.SetTag("invocation.id", inv.ID)
	span.SetTag("invocation.method", inv.Method)
	span.SetTag("invocation.depth", inv.Depth)

	result, err := proceed(spanCtx)
	if err != nil {
		span.SetError(err)
	}

	return result, err
}

// Name implements Handler
func (h *TracingHandler) Name() string {
	return "TracingHandler"
}

// ValidationHandler validates arguments before the call
type ValidationHandler struct {
	validator ArgumentValidator
}

// ArgumentValidator defines the interface for argument validation
type ArgumentValidator interface {
	Validate(ctx context.Context, inv *Invocation) error
}

// ArgumentValidatorFunc is a function adapter for ArgumentValidator
type ArgumentValidatorFunc func(ctx context.Context, inv *Invocation) error

// Validate implements ArgumentValidator
func (f ArgumentValidatorFunc) Validate(ctx context.Context, inv *Invocation) error {
	return f(ctx, inv)
}

// NewValidationHandler creates a new validation handler
func NewValidationHandler(validator ArgumentValidator) *ValidationHandler {
	return &ValidationHandler{validator: validator}
}

// Handle implements Handler
func (h *ValidationHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	if err := h.validator.Validate(ctx, inv); err != nil {
		return nil, fmt.Errorf("argument validation failed for %s: %w", inv.Method, err)
	}

	return proceed(ctx)
}

// Name implements Handler
func (h *ValidationHandler) Name() string {
	return "ValidationHandler"
}

// TimeoutHandler bounds the duration of a call
type TimeoutHandler struct {
	timeout time.Duration
}

// NewTimeoutHandler creates a new timeout handler
func NewTimeoutHandler(timeout time.Duration) *TimeoutHandler {
	return &TimeoutHandler{timeout: timeout}
}

type callResult struct {
	value any
	err   error
}

// Handle implements Handler. The call keeps running in the background
// after a timeout; it sees a cancelled context. The returned
// InvocationTimeoutError is not retryable.
func (h *TimeoutHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		value, err := proceed(timeoutCtx)
		done <- callResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-timeoutCtx.Done():
		return nil, &InvocationTimeoutError{Method: inv.Method, InvocationID: inv.ID, Timeout: h.timeout}
	}
}

// Name implements Handler
func (h *TimeoutHandler) Name() string {
	return "TimeoutHandler"
}

// ErrorHandlingHandler logs failures and lets an ErrorHandler decide the outcome
type ErrorHandlingHandler struct {
	errorHandler ErrorHandler
	logger       *slog.Logger
}

// ErrorHandler defines the interface for error handling. It may return a
// replacement result with a nil error to recover, or an error to rethrow.
type ErrorHandler interface {
	HandleError(ctx context.Context, inv *Invocation, err error) (any, error)
}

// ErrorHandlerFunc is a function adapter for ErrorHandler
type ErrorHandlerFunc func(ctx context.Context, inv *Invocation, err error) (any, error)

// HandleError implements ErrorHandler
func (f ErrorHandlerFunc) HandleError(ctx context.Context, inv *Invocation, err error) (any, error) {
	return f(ctx, inv, err)
}

// NewErrorHandlingHandler creates a new error handling handler
func NewErrorHandlingHandler(errorHandler ErrorHandler, logger *slog.Logger) *ErrorHandlingHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &ErrorHandlingHandler{
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// Handle implements Handler
func (h *ErrorHandlingHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	result, err := proceed(ctx)
	if err != nil {
		h.logger.Error("method error",
			"invocationId", inv.ID,
			"method", inv.Method,
			"error", err,
		)

		return h.errorHandler.HandleError(ctx, inv, err)
	}

	return result, nil
}

// Name implements Handler
func (h *ErrorHandlingHandler) Name() string {
	return "ErrorHandlingHandler"
}

// CircuitBreakerHandler stops calling a failing method
type CircuitBreakerHandler struct {
	circuitBreaker CircuitBreaker
}

// CircuitBreaker defines the interface for circuit breaker functionality
type CircuitBreaker interface {
	Execute(ctx context.Context, fn func() error) error
}

// NewCircuitBreakerHandler creates a new circuit breaker handler
func NewCircuitBreakerHandler(circuitBreaker CircuitBreaker) *CircuitBreakerHandler {
	return &CircuitBreakerHandler{circuitBreaker: circuitBreaker}
}

// Handle implements Handler
func (h *CircuitBreakerHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	var result any
	err := h.circuitBreaker.Execute(ctx, func() error {
		var err error
		result, err = proceed(ctx)
		return err
	})
	return result, err
}

// Name implements Handler
func (h *CircuitBreakerHandler) Name() string {
	return "CircuitBreakerHandler"
}

// RateLimitHandler limits the call rate per method
type RateLimitHandler struct {
	limiter RateLimiter
}

// RateLimiter defines the interface for rate limiting
type RateLimiter interface {
	Allow(ctx context.Context, key string) error
}

// NewRateLimitHandler creates a new rate limiting handler
func NewRateLimitHandler(limiter RateLimiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

// Handle implements Handler
func (h *RateLimitHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	if err := h.limiter.Allow(ctx, inv.Method); err != nil {
		return nil, fmt.Errorf("rate limit exceeded for method %s: %w", inv.Method, err)
	}

	return proceed(ctx)
}

// Name implements Handler
func (h *RateLimitHandler) Name() string {
	return "RateLimitHandler"
}

// TokenBucketLimiter keeps one token bucket per key
type TokenBucketLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	wait     bool
	limiters map[string]*rate.Limiter
}

// NewTokenBucketLimiter creates a limiter allowing perSecond calls with burst.
// When wait is true Allow blocks until a token is free or ctx is done;
// otherwise it fails immediately.
func NewTokenBucketLimiter(perSecond float64, burst int, wait bool) *TokenBucketLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		wait:     wait,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow implements RateLimiter
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) error {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	if l.wait {
		return lim.Wait(ctx)
	}
	if !lim.Allow() {
		return ErrRateLimited
	}
	return nil
}

// MarkerHandler writes a marker line before and after the call
type MarkerHandler struct {
	name   string
	before string
	after  string
	w      io.Writer
}

// NewMarkerHandler creates a marker handler writing "[name:Before]" and
// "[name:After]" lines to w
func NewMarkerHandler(w io.Writer, name string) *MarkerHandler {
	return NewMarkerHandlerWith(w, name, "["+name+":Before]", "["+name+":After]")
}

// NewMarkerHandlerWith creates a marker handler with explicit markers
func NewMarkerHandlerWith(w io.Writer, name, before, after string) *MarkerHandler {
	return &MarkerHandler{name: name, before: before, after: after, w: w}
}

// Handle implements Handler. The after marker is written only on success.
func (h *MarkerHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	fmt.Fprintln(h.w, h.before)

	result, err := proceed(ctx)
	if err != nil {
		return result, err
	}

	fmt.Fprintln(h.w, h.after)
	return result, nil
}

// Name implements Handler
func (h *MarkerHandler) Name() string {
	return h.name
}

// chainHandler runs several handlers as one layer
type chainHandler struct {
	name     string
	handlers []Handler
}

// ChainHandlers composes handlers into one. handlers[0] runs outermost,
// which gives the same order as stacking them as separate layers.
func ChainHandlers(name string, handlers ...Handler) Handler {
	return &chainHandler{name: name, handlers: handlers}
}

// Handle implements Handler
func (c *chainHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	next := proceed
	for i := len(c.handlers) - 1; i >= 0; i-- {
		h := c.handlers[i]
		inner := next
		next = func(ctx context.Context) (any, error) {
			return h.Handle(ctx, inv, inner)
		}
	}
	return next(ctx)
}

// Name implements Handler
func (c *chainHandler) Name() string {
	return c.name
}
