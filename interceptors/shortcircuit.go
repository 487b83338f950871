package interceptors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrShortCircuit is returned when a handler refuses a call without a result
var ErrShortCircuit = errors.New("invocation short-circuited")

// ShortCircuitResult is what a short-circuited call returns
type ShortCircuitResult struct {
	// Value is returned to the caller in place of the original result
	Value any
	// Reason describes why the call was skipped
	Reason string
	// Fail turns the short circuit into a ShortCircuitError
	Fail bool
}

// ShortCircuitError reports a call that was refused
type ShortCircuitError struct {
	Result *ShortCircuitResult
}

// Error implements the error interface
func (e *ShortCircuitError) Error() string {
	if e.Result != nil && e.Result.Reason != "" {
		return e.Result.Reason
	}
	return ErrShortCircuit.Error()
}

// Is matches ErrShortCircuit
func (e *ShortCircuitError) Is(target error) bool {
	return target == ErrShortCircuit
}

// IsShortCircuit checks if an error is a short-circuit error
func IsShortCircuit(err error) bool {
	return errors.Is(err, ErrShortCircuit)
}

// GetShortCircuitResult extracts the short-circuit result from an error
func GetShortCircuitResult(err error) (*ShortCircuitResult, bool) {
	var scErr *ShortCircuitError
	if errors.As(err, &scErr) && scErr.Result != nil {
		return scErr.Result, true
	}
	return nil, false
}

// ShortCircuitEvaluator determines if a call should be skipped
type ShortCircuitEvaluator interface {
	// ShouldShortCircuit returns true if the original call must not run
	ShouldShortCircuit(ctx context.Context, inv *Invocation) (bool, *ShortCircuitResult, error)
}

// ShortCircuitEvaluatorFunc is a function adapter for ShortCircuitEvaluator
type ShortCircuitEvaluatorFunc func(ctx context.Context, inv *Invocation) (bool, *ShortCircuitResult, error)

// ShouldShortCircuit implements ShortCircuitEvaluator
func (f ShortCircuitEvaluatorFunc) ShouldShortCircuit(ctx context.Context, inv *Invocation) (bool, *ShortCircuitResult, error) {
	return f(ctx, inv)
}

// ShortCircuitHandler skips the original call when the evaluator says so
type ShortCircuitHandler struct {
	evaluator ShortCircuitEvaluator
}

// NewShortCircuitHandler creates a new short-circuit handler
func NewShortCircuitHandler(evaluator ShortCircuitEvaluator) *ShortCircuitHandler {
	return &ShortCircuitHandler{evaluator: evaluator}
}

// Handle implements Handler
func (h *ShortCircuitHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	skip, result, err := h.evaluator.ShouldShortCircuit(ctx, inv)
	if err != nil {
		return nil, err
	}

	if !skip {
		return proceed(ctx)
	}

	if result == nil {
		return nil, nil
	}
	if result.Fail {
		return nil, &ShortCircuitError{Result: result}
	}
	return result.Value, nil
}

// Name implements Handler
func (h *ShortCircuitHandler) Name() string {
	return "ShortCircuitHandler"
}

// ReturnHandler never runs the original call and always returns value
func ReturnHandler(value any) Handler {
	return NewShortCircuitHandler(ShortCircuitEvaluatorFunc(
		func(ctx context.Context, inv *Invocation) (bool, *ShortCircuitResult, error) {
			return true, &ShortCircuitResult{Value: value}, nil
		}))
}

// CachingHandler returns a cached result instead of running the call again
type CachingHandler struct {
	cache ResultCache
	key   func(inv *Invocation) string
}

// ResultCache defines the interface for result caching
type ResultCache interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any) error
}

// NewCachingHandler creates a caching handler. A nil key function uses
// DefaultCacheKey.
func NewCachingHandler(cache ResultCache, key func(inv *Invocation) string) *CachingHandler {
	if key == nil {
		key = DefaultCacheKey
	}
	return &CachingHandler{cache: cache, key: key}
}

// DefaultCacheKey keys on target, method and every argument with its
// dynamic type, so ("a b") and ("a", "b") or (1) and ("1") differ.
func DefaultCacheKey(inv *Invocation) string {
	var b strings.Builder
	b.WriteString(inv.Target)
	b.WriteByte('.')
	b.WriteString(inv.Method)
	b.WriteByte('(')
	for i, arg := range inv.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%T:%#v", arg, arg)
	}
	b.WriteByte(')')
	return b.String()
}

// Handle implements Handler. Failed calls are not cached.
func (h *CachingHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	key := h.key(inv)

	cached, found, err := h.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if found {
		return cached, nil
	}

	result, err := proceed(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.cache.Set(ctx, key, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Name implements Handler
func (h *CachingHandler) Name() string {
	return "CachingHandler"
}

// MemoryCache is a ResultCache backed by a map
type MemoryCache struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMemoryCache creates an empty cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{values: make(map[string]any)}
}

// Get implements ResultCache
func (c *MemoryCache) Get(ctx context.Context, key string) (any, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok, nil
}

// Set implements ResultCache
func (c *MemoryCache) Set(ctx context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

// ShortCircuitOnErrorHandler replaces selected errors with a result
type ShortCircuitOnErrorHandler struct {
	errorEvaluator ErrorEvaluator
}

// ErrorEvaluator determines if an error should be replaced
type ErrorEvaluator interface {
	ShouldShortCircuitOnError(err error) (bool, *ShortCircuitResult)
}

// NewShortCircuitOnErrorHandler creates a new error-based short-circuit handler
func NewShortCircuitOnErrorHandler(errorEvaluator ErrorEvaluator) *ShortCircuitOnErrorHandler {
	return &ShortCircuitOnErrorHandler{errorEvaluator: errorEvaluator}
}

// Handle implements Handler
func (h *ShortCircuitOnErrorHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	result, err := proceed(ctx)
	if err == nil {
		return result, nil
	}

	replace, sc := h.errorEvaluator.ShouldShortCircuitOnError(err)
	if !replace {
		return result, err
	}
	if sc == nil {
		return nil, nil
	}
	if sc.Fail {
		return nil, &ShortCircuitError{Result: sc}
	}
	return sc.Value, nil
}

// Name implements Handler
func (h *ShortCircuitOnErrorHandler) Name() string {
	return "ShortCircuitOnErrorHandler"
}
