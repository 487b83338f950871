package interceptors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var errBoom = errors.New("boom")

// Mock handler
type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) Handle(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
	args := m.Called(ctx, inv, proceed)
	return args.Get(0), args.Error(1)
}

func (m *mockHandler) Name() string {
	return "mockHandler"
}

func newTestService(out *bytes.Buffer) *Object {
	return NewObject("ServiceA", map[string]Method{
		"methodA": func(ctx context.Context, args ...any) (any, error) {
			fmt.Fprintln(out, "Method Triggered")
			return "A", nil
		},
		"methodB": func(ctx context.Context, args ...any) (any, error) {
			fmt.Fprintln(out, "MethodB Triggered")
			return "B", nil
		},
		"echo": func(ctx context.Context, args ...any) (any, error) {
			return args, nil
		},
		"fail": func(ctx context.Context, args ...any) (any, error) {
			return nil, errBoom
		},
	})
}

func lines(buf *bytes.Buffer) []string {
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestInterceptorPassthrough(t *testing.T) {
	t.Run("methods outside the intercept set are forwarded unchanged", func(t *testing.T) {
		var out bytes.Buffer
		target := newTestService(&out)
		handler := &mockHandler{}

		ic := New(target, handler, "methodA")

		want, wantErr := target.Invoke(context.Background(), "echo", 1, "two")
		got, err := ic.Invoke(context.Background(), "echo", 1, "two")

		assert.Equal(t, wantErr, err)
		assert.Equal(t, want, got)
		handler.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty intercept set behaves like the target", func(t *testing.T) {
		var direct, wrapped bytes.Buffer
		target := newTestService(&direct)
		ic := New(newTestService(&wrapped), NewMarkerHandler(&wrapped, "Decorator"))

		for _, m := range []string{"methodA", "methodB", "echo", "fail"} {
			want, wantErr := target.Invoke(context.Background(), m, "x")
			got, err := ic.Invoke(context.Background(), m, "x")
			assert.Equal(t, want, got, m)
			assert.Equal(t, wantErr, err, m)
		}
		assert.Equal(t, direct.String(), wrapped.String())
	})

	t.Run("nil handler forwards intercepted methods", func(t *testing.T) {
		var out bytes.Buffer
		ic := New(newTestService(&out), nil, "methodA")

		result, err := ic.Invoke(context.Background(), "methodA")

		require.NoError(t, err)
		assert.Equal(t, "A", result)
		assert.Equal(t, []string{"Method Triggered"}, lines(&out))
	})
}

func TestInterceptorHandlerContract(t *testing.T) {
	t.Run("handler runs exactly once per call", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		var out bytes.Buffer
		calls := 0
		handler := NewHandlerFunc("counter", func(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
			calls++
			return proceed(ctx)
		})

		ic := New(newTestService(&out), handler, "methodA")
		_, err := ic.Invoke(context.Background(), "methodA")
		require.NoError(t, err)
		_, err = ic.Invoke(context.Background(), "methodB")
		require.NoError(t, err)

		assert.Equal(t, 1, calls)
	})

	t.Run("thunk forwards the original arguments", func(t *testing.T) {
		handler := NewHandlerFunc("mutator", func(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
			inv.Args[0] = "changed"
			return proceed(ctx)
		})

		ic := New(newTestService(&bytes.Buffer{}), handler, "echo")
		result, err := ic.Invoke(context.Background(), "echo", "original", 2)

		require.NoError(t, err)
		assert.Equal(t, []any{"original", 2}, result)
	})

	t.Run("handler sees the invocation", func(t *testing.T) {
		var seen *Invocation
		handler := NewHandlerFunc("spy", func(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
			seen = inv
			fromCtx, ok := InvocationFromContext(ctx)
			assert.True(t, ok)
			assert.Same(t, inv, fromCtx)
			return proceed(ctx)
		})

		ic := New(newTestService(&bytes.Buffer{}), handler, "echo")
		_, err := ic.Invoke(context.Background(), "echo", 1)
		require.NoError(t, err)

		require.NotNil(t, seen)
		assert.NotEmpty(t, seen.ID)
		assert.Equal(t, "echo", seen.Method)
		assert.Equal(t, "ServiceA", seen.Target)
		assert.Equal(t, []any{1}, seen.Args)
		assert.Equal(t, 0, seen.Depth)
	})

	t.Run("handler may run the thunk several times", func(t *testing.T) {
		var out bytes.Buffer
		twice := NewHandlerFunc("twice", func(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
			if _, err := proceed(ctx); err != nil {
				return nil, err
			}
			return proceed(ctx)
		})

		ic := New(newTestService(&out), twice, "methodA")
		_, err := ic.Invoke(context.Background(), "methodA")

		require.NoError(t, err)
		assert.Equal(t, []string{"Method Triggered", "Method Triggered"}, lines(&out))
	})

	t.Run("handler result replaces the target result", func(t *testing.T) {
		upper := NewHandlerFunc("upper", func(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
			v, err := proceed(ctx)
			if err != nil {
				return nil, err
			}
			return strings.ToLower(v.(string)), nil
		})

		ic := New(newTestService(&bytes.Buffer{}), upper, "methodA")
		result, err := ic.Invoke(context.Background(), "methodA")

		require.NoError(t, err)
		assert.Equal(t, "a", result)
	})

	t.Run("short-circuit skips the method body", func(t *testing.T) {
		var out bytes.Buffer
		ic := New(newTestService(&out), ReturnHandler("cached"), "methodA")

		result, err := ic.Invoke(context.Background(), "methodA")

		require.NoError(t, err)
		assert.Equal(t, "cached", result)
		assert.Empty(t, out.String())
	})
}

func TestInterceptorUnknownMethod(t *testing.T) {
	var out bytes.Buffer
	base := newTestService(&out)
	handler := NewMarkerHandler(&out, "Decorator")

	var target Target = base
	for depth := 0; depth < 4; depth++ {
		_, err := target.Invoke(context.Background(), "doesNotExist", 1)

		require.Error(t, err, "depth %d", depth)
		assert.ErrorIs(t, err, ErrUnknownMethod)
		assert.True(t, IsUnknownMethod(err))

		var umErr *UnknownMethodError
		require.ErrorAs(t, err, &umErr)
		assert.Equal(t, "doesNotExist", umErr.Method)
		assert.Equal(t, "ServiceA", umErr.Target)

		target = New(target, handler, "methodA", "doesNotExist")
	}

	assert.Empty(t, out.String(), "handler must not run for unknown methods")
}

func TestInterceptorStacking(t *testing.T) {
	t.Run("nested before and after order", func(t *testing.T) {
		var out bytes.Buffer
		inner := New(newTestService(&out), NewMarkerHandler(&out, "B"), "methodA")
		outer := New(inner, NewMarkerHandler(&out, "A"), "methodA")

		result, err := outer.Invoke(context.Background(), "methodA")

		require.NoError(t, err)
		assert.Equal(t, "A", result)
		assert.Equal(t, []string{
			"[A:Before]",
			"[B:Before]",
			"Method Triggered",
			"[B:After]",
			"[A:After]",
		}, lines(&out))
	})

	t.Run("registry is the base registry at every layer", func(t *testing.T) {
		base := newTestService(&bytes.Buffer{})
		h := NewMarkerHandler(&bytes.Buffer{}, "h")

		single := New(base, h, "methodA")
		double := New(New(base, h, "methodA"), h, "methodA")

		assert.Same(t, base.Registry(), single.Registry())
		assert.Same(t, base.Registry(), double.Registry())
		assert.Equal(t, single.Registry().Names(), double.Registry().Names())
	})

	t.Run("only the selected layer intercepts", func(t *testing.T) {
		var out bytes.Buffer
		inner := New(newTestService(&out), NewMarkerHandler(&out, "B"), "methodB")
		outer := New(inner, NewMarkerHandler(&out, "A"), "methodA")

		_, err := outer.Invoke(context.Background(), "methodB")

		require.NoError(t, err)
		assert.Equal(t, []string{"[B:Before]", "MethodB Triggered", "[B:After]"}, lines(&out))
	})

	t.Run("depth is reported per layer", func(t *testing.T) {
		var depths []int
		spy := NewHandlerFunc("spy", func(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
			depths = append(depths, inv.Depth)
			return proceed(ctx)
		})

		target := New(New(New(newTestService(&bytes.Buffer{}), spy, "echo"), spy, "echo"), spy, "echo")
		_, err := target.Invoke(context.Background(), "echo")

		require.NoError(t, err)
		assert.Equal(t, []int{2, 1, 0}, depths)
	})
}

func TestInterceptorErrorPassthrough(t *testing.T) {
	t.Run("target errors propagate unmodified through a stack", func(t *testing.T) {
		var out bytes.Buffer
		target := Stack(newTestService(&out),
			Layer{Handler: NewMarkerHandler(&out, "A"), Methods: []string{"fail"}},
			Layer{Handler: NewMarkerHandler(&out, "B"), Methods: []string{"fail"}},
		)

		_, err := target.Invoke(context.Background(), "fail")

		assert.Same(t, errBoom, err)
		assert.Equal(t, []string{"[A:Before]", "[B:Before]"}, lines(&out))
	})

	t.Run("handler errors propagate unmodified", func(t *testing.T) {
		handlerErr := errors.New("handler failed")
		handler := &mockHandler{}
		handler.On("Handle", mock.Anything, mock.Anything, mock.Anything).Return(nil, handlerErr)

		outer := New(New(newTestService(&bytes.Buffer{}), handler, "methodA"), nil)
		_, err := outer.Invoke(context.Background(), "methodA")

		assert.Same(t, handlerErr, err)
		handler.AssertNumberOfCalls(t, "Handle", 1)
	})

	t.Run("catch and rethrow keeps the error", func(t *testing.T) {
		var caught error
		rethrow := NewHandlerFunc("rethrow", func(ctx context.Context, inv *Invocation, proceed Thunk) (any, error) {
			result, err := proceed(ctx)
			caught = err
			return result, err
		})

		ic := New(newTestService(&bytes.Buffer{}), rethrow, "fail")
		_, err := ic.Invoke(context.Background(), "fail")

		assert.Same(t, errBoom, err)
		assert.Same(t, errBoom, caught)
	})
}

func TestInterceptorAccessors(t *testing.T) {
	base := newTestService(&bytes.Buffer{})
	h := NewMarkerHandler(&bytes.Buffer{}, "h")
	ic := New(base, h, "methodA")

	assert.Same(t, base, ic.Unwrap())
	assert.Equal(t, h, ic.Handler())
	assert.True(t, ic.Intercepts("methodA"))
	assert.False(t, ic.Intercepts("methodB"))
}

type nilRegistryTarget struct{}

func (nilRegistryTarget) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	return nil, nil
}

func (nilRegistryTarget) Registry() *Registry { return nil }

func TestInterceptorNilRegistry(t *testing.T) {
	ic := New(nilRegistryTarget{}, nil, "anything")

	_, err := ic.Invoke(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrUnknownMethod)
	assert.Equal(t, 0, ic.Registry().Len())
}

func TestInterceptorNilTarget(t *testing.T) {
	t.Run("nil interface", func(t *testing.T) {
		var ic *Interceptor
		require.NotPanics(t, func() {
			ic = New(nil, NewMarkerHandler(&bytes.Buffer{}, "Decorator"), "methodA")
		})

		_, err := ic.Invoke(context.Background(), "methodA")
		assert.ErrorIs(t, err, ErrUnknownMethod)
		assert.Equal(t, 0, ic.Registry().Len())
		assert.Equal(t, 1, Depth(ic))
	})

	t.Run("nil object", func(t *testing.T) {
		var obj *Object
		ic := New(obj, nil)

		_, err := ic.Invoke(context.Background(), "methodA")
		assert.ErrorIs(t, err, ErrUnknownMethod)
	})
}
