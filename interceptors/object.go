package interceptors

import (
	"context"
	"fmt"
	"math"
	"reflect"
)

// Method is a single entry of a dispatch table
type Method func(ctx context.Context, args ...any) (any, error)

// Target is a value exposing a set of named, callable methods
type Target interface {
	// Invoke calls the named method with positional arguments
	Invoke(ctx context.Context, method string, args ...any) (any, error)

	// Registry returns the methods known to exist on the base target
	Registry() *Registry
}

// Object is a plain Target backed by an explicit dispatch table
type Object struct {
	name     string
	methods  map[string]Method
	registry *Registry
}

// NewObject creates a target from a method table. The table is copied.
func NewObject(name string, methods map[string]Method) *Object {
	table := make(map[string]Method, len(methods))
	names := make([]string, 0, len(methods))
	for m, fn := range methods {
		if fn == nil {
			continue
		}
		table[m] = fn
		names = append(names, m)
	}

	return &Object{
		name:     name,
		methods:  table,
		registry: NewRegistry(name, names...),
	}
}

// Invoke implements Target
func (o *Object) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	fn, ok := o.methods[method]
	if !ok {
		return nil, &UnknownMethodError{Method: method, Target: o.name}
	}
	return fn(ctx, args...)
}

// Registry implements Target
func (o *Object) Registry() *Registry {
	if o == nil {
		return nil
	}
	return o.registry
}

// Name returns the target name
func (o *Object) Name() string {
	return o.name
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// Bind builds an Object from the exported methods of v.
//
// The dispatch table is built once here; v itself is never modified.
// A method may take a context.Context as its first parameter, in which
// case the invocation context is passed through. Results are mapped as:
//
//	()         -> nil, nil
//	(T)        -> T, nil
//	(error)    -> nil, error
//	(T, error) -> T, error
//
// Signatures with more results return them as []any.
func Bind(v any) *Object {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return NewObject("", nil)
	}

	rt := rv.Type()
	methods := make(map[string]Method, rt.NumMethod())
	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		if !m.IsExported() {
			continue
		}
		methods[m.Name] = bindMethod(m.Name, rv.Method(i))
	}

	return NewObject(typeName(rt), methods)
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

func bindMethod(name string, fn reflect.Value) Method {
	ft := fn.Type()
	takesCtx := ft.NumIn() > 0 && ft.In(0) == contextType

	return func(ctx context.Context, args ...any) (any, error) {
		in, err := buildArgs(ft, takesCtx, ctx, args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return mapResults(fn.Call(in))
	}
}

func buildArgs(ft reflect.Type, takesCtx bool, ctx context.Context, args []any) ([]reflect.Value, error) {
	offset := 0
	if takesCtx {
		offset = 1
	}

	fixed := ft.NumIn() - offset
	if ft.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, fmt.Errorf("%w: want at least %d, got %d", ErrInvalidArguments, fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrInvalidArguments, fixed, len(args))
	}

	in := make([]reflect.Value, 0, len(args)+offset)
	if takesCtx {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(ctx))
	}

	for i, arg := range args {
		var want reflect.Type
		if ft.IsVariadic() && i >= fixed {
			want = ft.In(ft.NumIn() - 1).Elem()
		} else {
			want = ft.In(i + offset)
		}

		val, err := convertArg(arg, want)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, val)
	}

	return in, nil
}

func convertArg(arg any, want reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch want.Kind() {
		case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: nil for %s", ErrInvalidArguments, want)
	}

	val := reflect.ValueOf(arg)
	if val.Type().AssignableTo(want) {
		return val, nil
	}
	if numericClass(val.Kind()) != 0 && numericClass(want.Kind()) != 0 {
		conv, ok := convertNumber(val, want)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: %v does not fit in %s", ErrInvalidArguments, arg, want)
		}
		return conv, nil
	}

	return reflect.Value{}, fmt.Errorf("%w: %s is not assignable to %s", ErrInvalidArguments, val.Type(), want)
}

// numericClass returns 'i', 'u' or 'f' for numeric kinds and 0 otherwise
func numericClass(k reflect.Kind) byte {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return 'i'
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return 'u'
	case reflect.Float32, reflect.Float64:
		return 'f'
	}
	return 0
}

// convertNumber converts val to want only when no information is lost:
// the value must keep its sign and survive the conversion back unchanged.
func convertNumber(val reflect.Value, want reflect.Type) (reflect.Value, bool) {
	from, to := numericClass(val.Kind()), numericClass(want.Kind())

	switch {
	case from == 'i' && to == 'u' && val.Int() < 0:
		return reflect.Value{}, false
	case from == 'f' && to != 'f' && (val.Float() != math.Trunc(val.Float()) || math.IsInf(val.Float(), 0)):
		return reflect.Value{}, false
	case from == 'f' && to == 'u' && val.Float() < 0:
		return reflect.Value{}, false
	}

	conv := val.Convert(want)
	if from == 'u' && to == 'i' && conv.Int() < 0 {
		return reflect.Value{}, false
	}
	if conv.Convert(val.Type()).Interface() != val.Interface() {
		return reflect.Value{}, false
	}
	return conv, true
}

func mapResults(out []reflect.Value) (any, error) {
	var err error
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if e := out[n-1].Interface(); e != nil {
			err = e.(error)
		}
		out = out[:n-1]
	}

	switch len(out) {
	case 0:
		return nil, err
	case 1:
		return out[0].Interface(), err
	}

	results := make([]any, len(out))
	for i, v := range out {
		results[i] = v.Interface()
	}
	return results, err
}
