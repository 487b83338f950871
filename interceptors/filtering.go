package interceptors

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

// InvocationFilter decides whether an invocation matches
type InvocationFilter interface {
	// Matches returns true if the invocation should be handled
	Matches(ctx context.Context, inv *Invocation) (bool, error)
}

// InvocationFilterFunc is a function adapter for InvocationFilter
type InvocationFilterFunc func(ctx context.Context, inv *Invocation) (bool, error)

// Matches implements InvocationFilter
func (f InvocationFilterFunc) Matches(ctx context.Context, inv *Invocation) (bool, error) {
	return f(ctx, inv)
}

// SkipBehavior defines what happens when a call is filtered out
type SkipBehavior int

const (
	// SkipSilently skips the call and returns a nil result
	SkipSilently SkipBehavior = iota
	// SkipWithError returns an error when the call is filtered
	SkipWithError
	// SkipWithLog logs that the call was skipped
	SkipWithLog
)

// FilteringHandler runs the original call only when the filter matches
type FilteringHandler struct {
	filter       InvocationFilter
	skipBehavior SkipBehavior
	logger       *slog.Logger
}

// NewFilteringHandler creates a new filtering handler
func NewFilteringHandler(filter InvocationFilter, skipBehavior SkipBehavior, logger *slog.Logger) *FilteringHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &FilteringHandler{
		filter:       filter,
		skipBehavior: skipBehavior,
		logger:       logger,
	}
}

// Handle implements Handler
func (h *FilteringHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	matches, err := h.filter.Matches(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("filter error: %w", err)
	}

	if !matches {
		switch h.skipBehavior {
		case SkipWithError:
			return nil, fmt.Errorf("invocation filtered: %s.%s (%s)", inv.Target, inv.Method, inv.ID)
		case SkipWithLog:
			h.logger.Info("invocation skipped",
				"invocationId", inv.ID,
				"method", inv.Method,
			)
			return nil, nil
		default:
			return nil, nil
		}
	}

	return proceed(ctx)
}

// Name implements Handler
func (h *FilteringHandler) Name() string {
	return "FilteringHandler"
}

// AndFilter matches when every filter matches
type AndFilter struct {
	filters []InvocationFilter
}

// NewAndFilter creates a new AND filter
func NewAndFilter(filters ...InvocationFilter) *AndFilter {
	return &AndFilter{filters: filters}
}

// Matches implements InvocationFilter
func (f *AndFilter) Matches(ctx context.Context, inv *Invocation) (bool, error) {
	for _, filter := range f.filters {
		ok, err := filter.Matches(ctx, inv)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// OrFilter matches when at least one filter matches
type OrFilter struct {
	filters []InvocationFilter
}

// NewOrFilter creates a new OR filter
func NewOrFilter(filters ...InvocationFilter) *OrFilter {
	return &OrFilter{filters: filters}
}

// Matches implements InvocationFilter
func (f *OrFilter) Matches(ctx context.Context, inv *Invocation) (bool, error) {
	for _, filter := range f.filters {
		ok, err := filter.Matches(ctx, inv)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// MethodFilter matches a fixed set of method names
type MethodFilter struct {
	methods map[string]bool
}

// NewMethodFilter creates a filter that matches the given methods
func NewMethodFilter(methods ...string) *MethodFilter {
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[m] = true
	}
	return &MethodFilter{methods: set}
}

// Matches implements InvocationFilter
func (f *MethodFilter) Matches(ctx context.Context, inv *Invocation) (bool, error) {
	return f.methods[inv.Method], nil
}

// ArgFilter matches on the argument at a position
type ArgFilter struct {
	index int
	match func(arg any) bool
}

// NewArgFilter creates a filter applying match to argument index.
// Calls with fewer arguments do not match.
func NewArgFilter(index int, match func(arg any) bool) *ArgFilter {
	return &ArgFilter{index: index, match: match}
}

// Matches implements InvocationFilter
func (f *ArgFilter) Matches(ctx context.Context, inv *Invocation) (bool, error) {
	if f.index < 0 || f.index >= len(inv.Args) {
		return false, nil
	}
	return f.match(inv.Args[f.index]), nil
}

// ContextValueFilter matches on a value of the shared invocation context.
// Values are compared with reflect.DeepEqual, so slices and maps work.
type ContextValueFilter struct {
	key      string
	expected any
}

// NewContextValueFilter creates a filter that checks an invocation context value
func NewContextValueFilter(key string, expected any) *ContextValueFilter {
	return &ContextValueFilter{key: key, expected: expected}
}

// Matches implements InvocationFilter
func (f *ContextValueFilter) Matches(ctx context.Context, inv *Invocation) (bool, error) {
	ic, ok := GetInvocationContext(ctx)
	if !ok {
		return false, nil
	}

	value, ok := ic.Get(f.key)
	if !ok {
		return false, nil
	}
	return reflect.DeepEqual(value, f.expected), nil
}

// ConditionalHandler applies a handler only when a filter matches;
// otherwise the original call runs directly
type ConditionalHandler struct {
	condition InvocationFilter
	handler   Handler
}

// NewConditionalHandler creates a new conditional handler
func NewConditionalHandler(condition InvocationFilter, handler Handler) *ConditionalHandler {
	return &ConditionalHandler{
		condition: condition,
		handler:   handler,
	}
}

// Handle implements Handler
func (h *ConditionalHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	ok, err := h.condition.Matches(ctx, inv)
	if err != nil {
		return nil, err
	}

	if ok {
		return h.handler.Handle(ctx, inv, proceed)
	}
	return proceed(ctx)
}

// Name implements Handler
func (h *ConditionalHandler) Name() string {
	return fmt.Sprintf("ConditionalHandler[%s]", h.handler.Name())
}
