package interceptors

import "sort"

// Registry is the immutable set of method names a target exposes.
// It is derived once when a target is created and shared, unchanged,
// by every Interceptor stacked on top of that target.
type Registry struct {
	target  string
	methods map[string]struct{}
}

// NewRegistry creates a registry for the named target
func NewRegistry(target string, methods ...string) *Registry {
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
	}
	return &Registry{target: target, methods: set}
}

// Has reports whether the method exists on the base target
func (r *Registry) Has(method string) bool {
	if r == nil {
		return false
	}
	_, ok := r.methods[method]
	return ok
}

// Names returns the method names in sorted order
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.methods))
	for m := range r.methods {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered methods
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.methods)
}

// TargetName returns the name of the base target
func (r *Registry) TargetName() string {
	if r == nil {
		return ""
	}
	return r.target
}
