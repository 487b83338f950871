package interceptors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter struct {
	greetings int
}

func (g *greeter) Greet(name string) string {
	g.greetings++
	return "hello " + name
}

func (g *greeter) Count() int { return g.greetings }

func (g *greeter) Fail() error { return errBoom }

func (g *greeter) Divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

func (g *greeter) Join(sep string, parts ...string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

func (g *greeter) WithContext(ctx context.Context) (string, error) {
	v, _ := ctx.Value(testCtxKey{}).(string)
	return v, nil
}

func (g *greeter) Pair() (int, string) { return 1, "one" }

func (g *greeter) Reset() { g.greetings = 0 }

func (g *greeter) hidden() {}

type testCtxKey struct{}

func TestBind(t *testing.T) {
	ctx := context.Background()

	t.Run("registry lists exported methods", func(t *testing.T) {
		obj := Bind(&greeter{})

		assert.Equal(t, "greeter", obj.Name())
		assert.Equal(t, []string{"Count", "Divide", "Fail", "Greet", "Join", "Pair", "Reset", "WithContext"}, obj.Registry().Names())
		assert.False(t, obj.Registry().Has("hidden"))
	})

	t.Run("calls methods on the bound value", func(t *testing.T) {
		g := &greeter{}
		obj := Bind(g)

		result, err := obj.Invoke(ctx, "Greet", "gopher")
		require.NoError(t, err)
		assert.Equal(t, "hello gopher", result)
		assert.Equal(t, 1, g.greetings)

		result, err = obj.Invoke(ctx, "Reset")
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Equal(t, 0, g.greetings)
	})

	t.Run("maps error results", func(t *testing.T) {
		obj := Bind(&greeter{})

		_, err := obj.Invoke(ctx, "Fail")
		assert.Same(t, errBoom, err)

		result, err := obj.Invoke(ctx, "Divide", 9, 3)
		require.NoError(t, err)
		assert.Equal(t, 3.0, result)

		_, err = obj.Invoke(ctx, "Divide", 1.0, 0.0)
		assert.EqualError(t, err, "division by zero")
	})

	t.Run("supports variadic methods", func(t *testing.T) {
		obj := Bind(&greeter{})

		result, err := obj.Invoke(ctx, "Join", "-", "a", "b", "c")
		require.NoError(t, err)
		assert.Equal(t, "a-b-c", result)

		result, err = obj.Invoke(ctx, "Join", ",")
		require.NoError(t, err)
		assert.Equal(t, "", result)
	})

	t.Run("passes the invocation context", func(t *testing.T) {
		obj := Bind(&greeter{})

		result, err := obj.Invoke(context.WithValue(ctx, testCtxKey{}, "value"), "WithContext")
		require.NoError(t, err)
		assert.Equal(t, "value", result)
	})

	t.Run("returns several results as a slice", func(t *testing.T) {
		result, err := Bind(&greeter{}).Invoke(ctx, "Pair")
		require.NoError(t, err)
		assert.Equal(t, []any{1, "one"}, result)
	})

	t.Run("rejects bad arguments", func(t *testing.T) {
		obj := Bind(&greeter{})

		_, err := obj.Invoke(ctx, "Greet")
		assert.ErrorIs(t, err, ErrInvalidArguments)

		_, err = obj.Invoke(ctx, "Greet", 42)
		assert.ErrorIs(t, err, ErrInvalidArguments)

		_, err = obj.Invoke(ctx, "Greet", nil)
		assert.ErrorIs(t, err, ErrInvalidArguments)

		_, err = obj.Invoke(ctx, "Join")
		assert.ErrorIs(t, err, ErrInvalidArguments)
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := Bind(&greeter{}).Invoke(ctx, "Missing")
		assert.ErrorIs(t, err, ErrUnknownMethod)
	})

	t.Run("nil value binds an empty object", func(t *testing.T) {
		obj := Bind(nil)
		assert.Equal(t, 0, obj.Registry().Len())
	})

	t.Run("binding never mutates the value", func(t *testing.T) {
		g := &greeter{greetings: 7}
		target := New(Bind(g), ReturnHandler("intercepted"), "Greet")

		result, err := target.Invoke(ctx, "Greet", "x")
		require.NoError(t, err)
		assert.Equal(t, "intercepted", result)
		assert.Equal(t, "hello y", g.Greet("y"))
		assert.Equal(t, 8, g.greetings)
	})
}

type sizes struct{}

func (sizes) Small(v uint8) uint8 { return v }
func (sizes) Whole(v int) int { return v }
func (sizes) Signed(v int8) int8 { return v }
func (sizes) Wide(v int64) int64 { return v }
func (sizes) Ratio(v float32) float32 { return v }
func (sizes) Unsigned(v uint64) uint64 { return v }

func TestBindNumericArguments(t *testing.T) {
	obj := Bind(sizes{})
	ctx := context.Background()

	tests := []struct {
		name   string
		method string
		arg    any
		want   any
	}{
		{"int fits uint8", "Small", 200, uint8(200)},
		{"whole float to int", "Whole", 3.0, 3},
		{"uint8 widens to int64", "Wide", uint8(7), int64(7)},
		{"exact float32", "Ratio", 0.5, float32(0.5)},
		{"negative int8", "Signed", -128, int8(-128)},
		{"int to uint64", "Unsigned", 42, uint64(42)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := obj.Invoke(ctx, tt.method, tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}

	lossy := []struct {
		name   string
		method string
		arg    any
	}{
		{"overflow", "Small", 300},
		{"negative to unsigned", "Small", -1},
		{"negative int64 to uint64", "Unsigned", int64(-5)},
		{"fractional float to int", "Whole", 3.9},
		{"negative float to unsigned", "Small", -2.0},
		{"int8 overflow", "Signed", 128},
		{"uint64 beyond int64", "Wide", uint64(1 << 63)},
		{"float64 precision loss", "Ratio", 0.1},
	}
	for _, tt := range lossy {
		t.Run(tt.name, func(t *testing.T) {
			_, err := obj.Invoke(ctx, tt.method, tt.arg)
			assert.ErrorIs(t, err, ErrInvalidArguments)
		})
	}
}

func TestNewObject(t *testing.T) {
	table := map[string]Method{
		"ping": func(ctx context.Context, args ...any) (any, error) { return "pong", nil },
		"nil":  nil,
	}
	obj := NewObject("svc", table)
	table["late"] = func(ctx context.Context, args ...any) (any, error) { return nil, nil }

	assert.Equal(t, []string{"ping"}, obj.Registry().Names())
	assert.Equal(t, "svc", obj.Registry().TargetName())

	result, err := obj.Invoke(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", result)

	_, err = obj.Invoke(context.Background(), "late")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry("svc", "b", "a", "b")

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"a", "b"}, r.Names())
	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("c"))

	var nilRegistry *Registry
	assert.False(t, nilRegistry.Has("a"))
	assert.Equal(t, 0, nilRegistry.Len())
	assert.Empty(t, nilRegistry.Names())
	assert.Equal(t, "", nilRegistry.TargetName())
}
