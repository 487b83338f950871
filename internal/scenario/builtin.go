package scenario

import (
	"fmt"
	"sort"
)

func serviceA() TargetSpec {
	return TargetSpec{
		Name: "ServiceA",
		Methods: []MethodSpec{
			{Name: "methodA", Output: "MethodA Triggered", Result: "A"},
			{Name: "methodB", Output: "MethodB Triggered", Result: "B"},
		},
	}
}

func decorator(name string, methods ...string) LayerSpec {
	return LayerSpec{
		Name:    name,
		Kind:    KindMarker,
		Methods: methods,
		Before:  "[" + name + ":Before] Hello",
		After:   "[" + name + ":After] Hi",
	}
}

var builtins = map[string]func() *Scenario{
	"simple": func() *Scenario {
		return &Scenario{
			Name:        "simple",
			Description: "one interceptor around methodA, methodB passes straight through",
			Target:      serviceA(),
			Layers:      []LayerSpec{decorator("Decorator", "methodA")},
			Calls:       []CallSpec{{Method: "methodA"}, {Method: "methodB"}},
		}
	},
	"stacked": func() *Scenario {
		return &Scenario{
			Name:        "stacked",
			Description: "two interceptors on methodA, the outer one runs first",
			Target:      serviceA(),
			Layers: []LayerSpec{
				decorator("AnotherDecorator", "methodA"),
				decorator("Decorator", "methodA"),
			},
			Calls: []CallSpec{{Method: "methodA"}},
		}
	},
	"selective": func() *Scenario {
		return &Scenario{
			Name:        "selective",
			Description: "layers intercept different methods, unknown methods are rejected",
			Target:      serviceA(),
			Layers: []LayerSpec{
				decorator("Outer", "methodB"),
				decorator("Inner", "methodA"),
			},
			Calls: []CallSpec{{Method: "methodA"}, {Method: "methodB"}, {Method: "methodC"}},
		}
	},
	"shortcircuit": func() *Scenario {
		return &Scenario{
			Name:        "shortcircuit",
			Description: "the outer handler answers methodA without calling the target",
			Target:      serviceA(),
			Layers: []LayerSpec{
				{Name: "Cache", Kind: KindReturn, Methods: []string{"methodA"}, Before: "[Cache] hit", Value: "cached"},
				decorator("Decorator", "methodA", "methodB"),
			},
			Calls: []CallSpec{{Method: "methodA"}, {Method: "methodB"}},
		}
	},
}

// Builtin returns a fresh copy of a named built-in scenario
func Builtin(name string) (*Scenario, error) {
	mk, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q, expected one of %v", name, BuiltinNames())
	}
	return mk(), nil
}

// BuiltinNames lists the built-in scenarios in sorted order
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
