// Package interceptors wraps arbitrary targets and routes selected methods
// through handlers.
//
// A Target exposes named methods through an explicit dispatch table. An
// Interceptor wraps a Target, forwards every method untouched except the
// ones it was asked to intercept, and for those calls its Handler with a
// Thunk of the original call. The handler decides whether to run the
// thunk, how many times, and what to return.
//
// Interceptors are Targets themselves, so they stack:
//
//	target := interceptors.Wrap(interceptors.Bind(&Service{})).
//		With(interceptors.NewMarkerHandler(os.Stdout, "B"), "MethodA").
//		With(interceptors.NewMarkerHandler(os.Stdout, "A"), "MethodA").
//		Build()
//
//	_, err := target.Invoke(ctx, "MethodA")
//	// [A:Before]
//	// [B:Before]
//	// ...method body...
//	// [B:After]
//	// [A:After]
//
// Every layer shares the registry of the base target, so a name that does
// not exist on the base fails with ErrUnknownMethod at any depth.
//
// Built-in handlers:
//   - LoggingHandler: Logs calls with timing information
//   - MetricsHandler: Collects per-method call metrics
//   - TracingHandler: Adds tracing spans
//   - ValidationHandler: Validates arguments before the call
//   - TimeoutHandler: Bounds call duration
//   - ErrorHandlingHandler: Lets an ErrorHandler recover or rethrow
//   - CircuitBreakerHandler: Stops calling a failing method
//   - RetryHandler: Runs the call again per a retry policy
//   - RateLimitHandler: Limits call rate per method
//   - ShortCircuitHandler, CachingHandler: Return without running the call
//   - FilteringHandler, ConditionalHandler: Apply behaviour selectively
//   - AuditHandler: Publishes an audit record per call
//   - MarkerHandler: Writes before/after markers
//
// Handlers never swallow errors unless that is their purpose; the
// interceptor itself never catches, logs or wraps them.
package interceptors
