package interceptors

// Layer is one interceptor in a stack
type Layer struct {
	Handler Handler
	Methods []string
}

// Stack wraps target with the given layers. layers[0] is the outermost,
// so its handler runs first and finishes last.
func Stack(target Target, layers ...Layer) Target {
	for i := len(layers) - 1; i >= 0; i-- {
		target = New(target, layers[i].Handler, layers[i].Methods...)
	}
	return target
}

// StackBuilder builds a stack from the inside out
type StackBuilder struct {
	target Target
}

// Wrap starts a stack around target
func Wrap(target Target) *StackBuilder {
	return &StackBuilder{target: target}
}

// With adds a layer outside every layer added so far
func (b *StackBuilder) With(handler Handler, methods ...string) *StackBuilder {
	b.target = New(b.target, handler, methods...)
	return b
}

// Build returns the outermost target
func (b *StackBuilder) Build() Target {
	return b.target
}

// Base returns the target at the bottom of a stack
func Base(target Target) Target {
	for {
		u, ok := target.(Unwrapper)
		if !ok {
			return target
		}
		target = u.Unwrap()
	}
}

// Depth returns the number of wrapping layers above the base target
func Depth(target Target) int {
	depth := 0
	for {
		u, ok := target.(Unwrapper)
		if !ok {
			return depth
		}
		target = u.Unwrap()
		depth++
	}
}
