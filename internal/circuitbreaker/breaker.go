// Package circuitbreaker stops the recorder from hammering a write target
// (database, redis) that keeps failing. Each target trips independently.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type targetState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

// CircuitBreaker is safe for concurrent use. A nil *CircuitBreaker allows everything.
type CircuitBreaker struct {
	mu        sync.Mutex
	targets   map[string]*targetState
	threshold int
	cooldown  time.Duration
	clock     func() time.Time
}

// New returns a breaker that opens after threshold consecutive failures and
// lets a single probe through once cooldown has elapsed. A non-positive
// threshold returns nil, which disables breaking.
func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		return nil
	}
	return &CircuitBreaker{
		targets:   make(map[string]*targetState),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// WithClock sets the time source used for cooldowns.
func (cb *CircuitBreaker) WithClock(clock func() time.Time) *CircuitBreaker {
	if cb != nil {
		cb.clock = clock
	}
	return cb
}

// Allow reports whether a write to target may be attempted.
func (cb *CircuitBreaker) Allow(target string) error {
	if cb == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.targets[target]
	if !ok {
		return nil
	}

	switch s.state {
	case stateOpen:
		if cb.clock().Sub(s.openedAt) >= cb.cooldown {
			s.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		// probe in flight
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) RecordSuccess(target string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if s, ok := cb.targets[target]; ok {
		s.state = stateClosed
		s.consecutiveFailures = 0
	}
}

// RecordFailure counts a failed write. A failed half-open probe reopens the
// circuit immediately.
func (cb *CircuitBreaker) RecordFailure(target string) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.targets[target]
	if !ok {
		s = &targetState{}
		cb.targets[target] = s
	}

	s.consecutiveFailures++
	if s.state == stateHalfOpen || s.consecutiveFailures >= cb.threshold {
		s.state = stateOpen
		s.openedAt = cb.clock()
	}
}

// State returns "closed", "open" or "half-open" for target.
func (cb *CircuitBreaker) State(target string) string {
	if cb == nil {
		return stateClosed.String()
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if s, ok := cb.targets[target]; ok {
		return s.state.String()
	}
	return stateClosed.String()
}
