package redis

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // normal operation, calls pass through
	StateOpen                  // tripped, calls rejected until cooldown elapses
	StateHalfOpen              // probing, a single call allowed through
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

// CircuitBreaker guards Redis writes so a dead cache cannot stall the
// trading loop. It trips after maxFailures consecutive errors, rejects
// everything for cooldown, then lets a single probe through; the probe's
// outcome decides whether the breaker closes again or reopens.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool

	now func() time.Time // injectable for tests

	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a breaker that trips after maxFailures
// consecutive failures and probes again after cooldown.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       StateClosed,
		now:         time.Now,
	}
}

// Execute runs fn unless the breaker is open. While half-open, only one
// probe call is admitted at a time; concurrent callers get ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
		return nil

	case StateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	probe := cb.state == StateHalfOpen
	cb.probing = false

	if err != nil {
		cb.failures++
		cb.openedAt = cb.now()
		if probe || cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
		return
	}

	if probe {
		cb.transition(StateClosed)
	}
	cb.failures = 0
}

// CurrentState returns the breaker's state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
