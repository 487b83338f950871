// Package scenario describes interceptor stacks declaratively and runs
// calls through them.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Rizky-Iqbal36/raw-blogs/interceptors"
)

// Layer kinds
const (
	KindMarker  = "marker"
	KindReturn  = "return"
	KindFail    = "fail"
	KindLogging = "logging"
	KindTimeout = "timeout"
)

// Scenario is a target, the layers stacked on it and the calls to make
type Scenario struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Target      TargetSpec `yaml:"target"`
	// Layers are listed outermost first
	Layers []LayerSpec `yaml:"layers,omitempty"`
	Calls  []CallSpec  `yaml:"calls,omitempty"`
}

// TargetSpec describes the base object
type TargetSpec struct {
	Name    string       `yaml:"name"`
	Methods []MethodSpec `yaml:"methods"`
}

// MethodSpec is one method of the base object. Output is written when
// the method runs; Error makes it fail after writing Output.
type MethodSpec struct {
	Name   string `yaml:"name"`
	Output string `yaml:"output,omitempty"`
	Result any    `yaml:"result,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// LayerSpec describes one interceptor
type LayerSpec struct {
	Name    string        `yaml:"name"`
	Kind    string        `yaml:"kind,omitempty"`
	Methods []string      `yaml:"methods,omitempty"`
	Before  string        `yaml:"before,omitempty"`
	After   string        `yaml:"after,omitempty"`
	Value   any           `yaml:"value,omitempty"`
	Message string        `yaml:"message,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// CallSpec is a single invocation on the outermost target
type CallSpec struct {
	Method string `yaml:"method"`
	Args   []any  `yaml:"args,omitempty"`
}

// CallResult is the outcome of one call
type CallResult struct {
	Method string
	Value  any
	Err    error
}

// Load reads a scenario from a YAML file
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML scenario
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that the scenario can be built
func (s *Scenario) Validate() error {
	if s.Target.Name == "" {
		return errors.New("scenario target needs a name")
	}
	if len(s.Target.Methods) == 0 {
		return fmt.Errorf("scenario target %s has no methods", s.Target.Name)
	}

	seen := make(map[string]bool, len(s.Target.Methods))
	for _, m := range s.Target.Methods {
		if m.Name == "" {
			return fmt.Errorf("scenario target %s has an unnamed method", s.Target.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("method %s declared twice", m.Name)
		}
		seen[m.Name] = true
	}

	for i, l := range s.Layers {
		if l.Name == "" {
			return fmt.Errorf("layer %d needs a name", i)
		}
		switch l.Kind {
		case "", KindMarker, KindReturn, KindFail, KindLogging:
		case KindTimeout:
			if l.Timeout <= 0 {
				return fmt.Errorf("timeout layer %s needs a positive timeout", l.Name)
			}
		default:
			return fmt.Errorf("layer %s has unknown kind %q", l.Name, l.Kind)
		}
	}
	return nil
}

// Object builds the base target. Method output goes to w.
func (s *Scenario) Object(w io.Writer) *interceptors.Object {
	methods := make(map[string]interceptors.Method, len(s.Target.Methods))
	for _, m := range s.Target.Methods {
		m := m
		methods[m.Name] = func(ctx context.Context, args ...any) (any, error) {
			if m.Output != "" {
				fmt.Fprintln(w, m.Output)
			}
			if m.Error != "" {
				return nil, errors.New(m.Error)
			}
			return m.Result, nil
		}
	}
	return interceptors.NewObject(s.Target.Name, methods)
}

// Build stacks the scenario's layers on its base object
func (s *Scenario) Build(w io.Writer, logger *slog.Logger) interceptors.Target {
	layers := make([]interceptors.Layer, 0, len(s.Layers))
	for _, l := range s.Layers {
		layers = append(layers, interceptors.Layer{
			Handler: l.handler(w, logger),
			Methods: l.Methods,
		})
	}
	return interceptors.Stack(s.Object(w), layers...)
}

func (l LayerSpec) handler(w io.Writer, logger *slog.Logger) interceptors.Handler {
	switch l.Kind {
	case KindReturn:
		return interceptors.NewHandlerFunc(l.Name, func(ctx context.Context, inv *interceptors.Invocation, proceed interceptors.Thunk) (any, error) {
			if l.Before != "" {
				fmt.Fprintln(w, l.Before)
			}
			return l.Value, nil
		})
	case KindFail:
		msg := l.Message
		if msg == "" {
			msg = l.Name + " refused the call"
		}
		return interceptors.NewHandlerFunc(l.Name, func(ctx context.Context, inv *interceptors.Invocation, proceed interceptors.Thunk) (any, error) {
			return nil, errors.New(msg)
		})
	case KindLogging:
		return interceptors.NewLoggingHandler(logger)
	case KindTimeout:
		return interceptors.NewTimeoutHandler(l.Timeout)
	default:
		if l.Before == "" && l.After == "" {
			return interceptors.NewMarkerHandler(w, l.Name)
		}
		return interceptors.NewMarkerHandlerWith(w, l.Name, l.Before, l.After)
	}
}

// Run makes every call of the scenario on target. A failing call does
// not stop the ones after it.
func (s *Scenario) Run(ctx context.Context, target interceptors.Target) []CallResult {
	results := make([]CallResult, 0, len(s.Calls))
	for _, c := range s.Calls {
		if ctx.Err() != nil {
			results = append(results, CallResult{Method: c.Method, Err: ctx.Err()})
			continue
		}
		v, err := target.Invoke(ctx, c.Method, c.Args...)
		results = append(results, CallResult{Method: c.Method, Value: v, Err: err})
	}
	return results
}
