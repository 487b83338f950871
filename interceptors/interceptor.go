package interceptors

import (
	"context"

	"github.com/google/uuid"
)

// Invocation describes a single intercepted call as seen by a handler
type Invocation struct {
	// ID uniquely identifies this call at this layer
	ID string
	// Method is the method being called
	Method string
	// Args is a copy of the positional arguments; the thunk always
	// forwards the original arguments regardless of changes here
	Args []any
	// Target is the name of the base target at the bottom of the stack
	Target string
	// Depth is the layer index, 0 for the interceptor closest to the target
	Depth int
}

// Thunk performs the original, unintercepted call when invoked.
// The arguments are fixed; a handler may only vary the context.
type Thunk func(ctx context.Context) (any, error)

// Handler decides whether, when and how many times to run the original call
type Handler interface {
	// Handle is called in place of the original call and returns the
	// value the caller should receive
	Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error)

	// Name returns the handler name for logging and debugging
	Name() string
}

// HandlerFunc is a function adapter for Handler
type HandlerFunc struct {
	name string
	fn   func(ctx context.Context, inv *Invocation, proceed Thunk) (any, error)
}

// NewHandlerFunc creates a new function-based handler
func NewHandlerFunc(name string, fn func(ctx context.Context, inv *Invocation, proceed Thunk) (any, error)) *HandlerFunc {
	return &HandlerFunc{name: name, fn: fn}
}

// Handle implements Handler
func (h *HandlerFunc) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	return h.fn(ctx, inv, proceed)
}

// Name implements Handler
func (h *HandlerFunc) Name() string {
	return h.name
}

// Unwrapper is implemented by targets that wrap another target
type Unwrapper interface {
	Unwrap() Target
}

// Interceptor wraps a target and routes a selected set of its methods
// through a handler. Every other method is forwarded untouched.
//
// An Interceptor is itself a Target, so interceptors stack. The registry
// of the base target is threaded through every layer so that all layers
// agree on which methods exist.
type Interceptor struct {
	target    Target
	handler   Handler
	registry  *Registry
	intercept map[string]struct{}
	depth     int
}

// New creates an interceptor around target. Methods lists the names routed
// through handler; it is not checked against the registry here, unknown
// names are rejected when called. A nil handler forwards every call. A nil
// target has an empty registry, so every call fails with UnknownMethodError.
func New(target Target, handler Handler, methods ...string) *Interceptor {
	intercept := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		intercept[m] = struct{}{}
	}

	var registry *Registry
	if target != nil {
		registry = target.Registry()
	}
	if registry == nil {
		registry = NewRegistry("")
	}

	return &Interceptor{
		target:    target,
		handler:   handler,
		registry:  registry,
		intercept: intercept,
		depth:     Depth(target),
	}
}

// Invoke implements Target
func (i *Interceptor) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	if !i.registry.Has(method) {
		return nil, &UnknownMethodError{Method: method, Target: i.registry.TargetName()}
	}

	if i.handler == nil || !i.Intercepts(method) {
		return i.target.Invoke(ctx, method, args...)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, _ = EnsureInvocationContext(ctx)

	inv := &Invocation{
		ID:     uuid.NewString(),
		Method: method,
		Args:   append([]any(nil), args...),
		Target: i.registry.TargetName(),
		Depth:  i.depth,
	}

	proceed := func(ctx context.Context) (any, error) {
		return i.target.Invoke(ctx, method, args...)
	}

	return i.handler.Handle(withInvocation(ctx, inv), inv, proceed)
}

// Registry implements Target; it is the registry of the base target
func (i *Interceptor) Registry() *Registry {
	return i.registry
}

// Unwrap returns the wrapped target
func (i *Interceptor) Unwrap() Target {
	return i.target
}

// Handler returns the installed handler
func (i *Interceptor) Handler() Handler {
	return i.handler
}

// Intercepts reports whether method is routed through the handler
func (i *Interceptor) Intercepts(method string) bool {
	_, ok := i.intercept[method]
	return ok
}

// Compile-time checks
var (
	_ Target    = (*Object)(nil)
	_ Target    = (*Interceptor)(nil)
	_ Unwrapper = (*Interceptor)(nil)
	_ Handler   = (*HandlerFunc)(nil)
)
