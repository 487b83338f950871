package interceptors

import (
	"context"
	"sync"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	// InvocationContextKey is the key for storing the shared invocation context
	InvocationContextKey contextKey = "interceptors:invocation:context"

	invocationKey contextKey = "interceptors:invocation"
)

// InvocationContext holds values shared between the handlers of one call.
// The outermost intercepting layer creates it; inner layers and the
// target see the same one through the context.
type InvocationContext struct {
	values map[string]any
	mu     sync.RWMutex
}

// NewInvocationContext creates a new invocation context
func NewInvocationContext() *InvocationContext {
	return &InvocationContext{
		values: make(map[string]any),
	}
}

// Set stores a value
func (ic *InvocationContext) Set(key string, value any) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.values[key] = value
}

// Get retrieves a value
func (ic *InvocationContext) Get(key string) (any, bool) {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	value, exists := ic.values[key]
	return value, exists
}

// GetString retrieves a string value
func (ic *InvocationContext) GetString(key string) (string, bool) {
	value, exists := ic.Get(key)
	if !exists {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

// Delete removes a value
func (ic *InvocationContext) Delete(key string) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	delete(ic.values, key)
}

// GetInvocationContext retrieves the shared invocation context
func GetInvocationContext(ctx context.Context) (*InvocationContext, bool) {
	ic, ok := ctx.Value(InvocationContextKey).(*InvocationContext)
	return ic, ok
}

// WithInvocationContext attaches ic to ctx
func WithInvocationContext(ctx context.Context, ic *InvocationContext) context.Context {
	return context.WithValue(ctx, InvocationContextKey, ic)
}

// EnsureInvocationContext returns ctx with an invocation context, creating one if absent
func EnsureInvocationContext(ctx context.Context) (context.Context, *InvocationContext) {
	ic, exists := GetInvocationContext(ctx)
	if !exists {
		ic = NewInvocationContext()
		ctx = WithInvocationContext(ctx, ic)
	}
	return ctx, ic
}

// InvocationFromContext returns the invocation of the nearest enclosing handler
func InvocationFromContext(ctx context.Context) (*Invocation, bool) {
	inv, ok := ctx.Value(invocationKey).(*Invocation)
	return inv, ok
}

func withInvocation(ctx context.Context, inv *Invocation) context.Context {
	return context.WithValue(ctx, invocationKey, inv)
}
