// internal/transfer/breaker.go
package transfer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState is the state of one circuit breaker.
type CircuitState int

const (
	StateClosed   CircuitState = iota // normal operation
	StateOpen                         // failing, calls blocked
	StateHalfOpen                     // cooldown elapsed, one trial allowed
)

// CircuitBreaker guards one destination/strategy pair. It opens after a
// run of consecutive failures and fails fast until the cooldown elapses,
// then allows a single trial call in the half-open state.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	cooldown         time.Duration

	state    CircuitState
	failures int
	openedAt time.Time
	trialing bool

	logger *zap.Logger
}

// BreakerOption configures a circuit breaker.
type BreakerOption func(*CircuitBreaker)

// WithFailureThreshold sets consecutive failures before opening.
func WithFailureThreshold(n int) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.failureThreshold = n
	}
}

// WithCooldown sets how long the circuit stays open.
func WithCooldown(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.cooldown = d
	}
}

// WithBreakerLogger adds logging to state transitions.
func WithBreakerLogger(logger *zap.Logger) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// NewCircuitBreaker creates a circuit breaker.
func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		failureThreshold: 5,
		cooldown:         60 * time.Second,
		state:            StateClosed,
		logger:           zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cb)
	}

	return cb
}

// Allow reports whether a call may proceed. While open it returns
// ErrCircuitOpen; after the cooldown it admits exactly one trial call.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.trialing = true
		cb.logger.Info("circuit breaker half-open")
		return nil
	case StateHalfOpen:
		if cb.trialing {
			return ErrCircuitOpen
		}
		cb.trialing = true
		return nil
	}
	return nil
}

// RecordSuccess notes a successful call and closes a half-open circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.trialing = false
	if cb.state != StateClosed {
		cb.state = StateClosed
		cb.logger.Info("circuit breaker closed")
	}
}

// RecordFailure notes a failed call. A failed half-open trial reopens
// the circuit and restarts the cooldown.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trialing = false

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.logger.Warn("circuit breaker reopened after failed trial")
		return
	}

	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.failureThreshold {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.logger.Warn("circuit breaker opened",
			zap.Int("consecutiveFailures", cb.failures))
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerTable holds one circuit breaker per destination/strategy key.
// It is the only cross-batch shared state besides the metrics collector.
type BreakerTable struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	opts     []BreakerOption
}

// NewBreakerTable creates a table whose breakers share the given options.
func NewBreakerTable(opts ...BreakerOption) *BreakerTable {
	return &BreakerTable{
		breakers: make(map[string]*CircuitBreaker),
		opts:     opts,
	}
}

// Get returns the breaker for a destination/strategy pair, creating it
// on first use.
func (t *BreakerTable) Get(destination, strategy string) *CircuitBreaker {
	key := destination + "|" + strategy

	t.mu.Lock()
	defer t.mu.Unlock()

	cb, ok := t.breakers[key]
	if !ok {
		cb = NewCircuitBreaker(t.opts...)
		t.breakers[key] = cb
	}
	return cb
}
