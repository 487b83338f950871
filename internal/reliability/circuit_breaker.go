package reliability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StateChangeListener receives circuit breaker state change notifications
type StateChangeListener interface {
	OnStateChange(name string, from, to State, reason string)
}

// StateChangeFunc adapts a function to StateChangeListener
type StateChangeFunc func(name string, from, to State, reason string)

// OnStateChange implements StateChangeListener
func (f StateChangeFunc) OnStateChange(name string, from, to State, reason string) {
	f(name, from, to, reason)
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	lastFailureTime time.Time
	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	// currentHalfOpen counts half-open trial calls in flight
	currentHalfOpen int
	// generation changes on every state transition
	generation uint64

	failureThreshold int
	successThreshold int
	timeout          time.Duration
	halfOpenRequests int
	name             string

	listeners []StateChangeListener
	now       func() time.Time
}

// CircuitBreakerOption configures the circuit breaker
type CircuitBreakerOption func(*CircuitBreaker)

// WithFailureThreshold sets the failure threshold
func WithFailureThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.failureThreshold = threshold
	}
}

// WithSuccessThreshold sets the success threshold for half-open state
func WithSuccessThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.successThreshold = threshold
	}
}

// WithTimeout sets how long the breaker stays open
func WithTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.timeout = timeout
	}
}

// WithHalfOpenRequests sets the max concurrent trial calls in half-open state
func WithHalfOpenRequests(requests int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.halfOpenRequests = requests
	}
}

// WithName sets the circuit breaker name for identification
func WithName(name string) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.name = name
	}
}

// WithListener registers a state change listener
func WithListener(listener StateChangeListener) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.listeners = append(cb.listeners, listener)
	}
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(options ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 3,
		timeout:          30 * time.Second,
		halfOpenRequests: 3,
		name:             "default",
		now:              time.Now,
	}

	for _, opt := range options {
		opt(cb)
	}

	return cb
}

// Execute runs fn unless the circuit is open
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	slot, err := cb.canExecute()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		cb.mu.Lock()
		cb.release(slot)
		cb.mu.Unlock()
		return ctx.Err()
	default:
	}

	err = fn()
	cb.recordResult(slot, err)
	return err
}

// halfOpenSlot identifies a half-open trial call by the generation it was
// admitted in
type halfOpenSlot struct {
	held       bool
	generation uint64
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset closes the circuit and clears the counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.currentHalfOpen = 0
	cb.generation++
}

func (cb *CircuitBreaker) canExecute() (halfOpenSlot, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	switch cb.state {
	case StateClosed:
		return halfOpenSlot{}, nil

	case StateOpen:
		nextRetry := cb.lastFailureTime.Add(cb.timeout)
		if !cb.now().After(nextRetry) {
			return halfOpenSlot{}, cb.rejection(nextRetry)
		}
		cb.transition(StateHalfOpen, "timeout expired")
		return cb.acquire(), nil

	case StateHalfOpen:
		if cb.currentHalfOpen >= cb.halfOpenRequests {
			return halfOpenSlot{}, cb.rejection(cb.now().Add(cb.timeout))
		}
		return cb.acquire(), nil

	default:
		return halfOpenSlot{}, ErrUnknownState
	}
}

// acquire must be called with cb.mu held in half-open state
func (cb *CircuitBreaker) acquire() halfOpenSlot {
	cb.currentHalfOpen++
	return halfOpenSlot{held: true, generation: cb.generation}
}

// release must be called with cb.mu held. Slots from an earlier
// half-open period are dropped, the transition already cleared them.
func (cb *CircuitBreaker) release(slot halfOpenSlot) {
	if slot.held && slot.generation == cb.generation && cb.currentHalfOpen > 0 {
		cb.currentHalfOpen--
	}
}

func (cb *CircuitBreaker) rejection(nextRetry time.Time) *CircuitBreakerError {
	return &CircuitBreakerError{
		Name:             cb.name,
		State:            cb.state,
		Failures:         cb.failures,
		FailureThreshold: cb.failureThreshold,
		LastFailure:      cb.lastFailureTime,
		NextRetry:        nextRetry,
	}
}

func (cb *CircuitBreaker) recordResult(slot halfOpenSlot, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.release(slot)

	if err != nil {
		cb.failures++
		cb.totalFailures++
		cb.lastFailureTime = cb.now()

		switch cb.state {
		case StateClosed:
			if cb.failures >= cb.failureThreshold {
				cb.transition(StateOpen,
					fmt.Sprintf("failure threshold reached (%d/%d)", cb.failures, cb.failureThreshold))
			}
		case StateHalfOpen:
			cb.transition(StateOpen, "failure in half-open state")
		}

		if cb.state != StateClosed {
			cb.successes = 0
		}
		return
	}

	cb.successes++
	cb.totalSuccesses++

	switch cb.state {
	case StateHalfOpen:
		if cb.successes >= cb.successThreshold {
			cb.transition(StateClosed,
				fmt.Sprintf("success threshold reached (%d/%d)", cb.successes, cb.successThreshold))
			cb.failures = 0
		}
	case StateClosed:
		cb.failures = 0
	}
}

// transition must be called with cb.mu held. Listeners run synchronously
// and must not call back into the breaker.
func (cb *CircuitBreaker) transition(to State, reason string) {
	from := cb.state
	cb.state = to
	cb.generation++
	cb.currentHalfOpen = 0
	if to == StateHalfOpen {
		cb.successes = 0
	}
	for _, l := range cb.listeners {
		l.OnStateChange(cb.name, from, to, reason)
	}
}

// Metrics returns circuit breaker metrics
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerMetrics{
		Name:             cb.name,
		State:            cb.state,
		TotalRequests:    cb.totalRequests,
		TotalFailures:    cb.totalFailures,
		TotalSuccesses:   cb.totalSuccesses,
		CurrentFailures:  cb.failures,
		CurrentSuccesses: cb.successes,
		LastFailureTime:  cb.lastFailureTime,
	}
}

// CircuitBreakerMetrics represents circuit breaker metrics
type CircuitBreakerMetrics struct {
	Name             string
	State            State
	TotalRequests    int64
	TotalFailures    int64
	TotalSuccesses   int64
	CurrentFailures  int
	CurrentSuccesses int
	LastFailureTime  time.Time
}
