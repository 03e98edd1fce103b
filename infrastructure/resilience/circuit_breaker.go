// Package resilience provides the fault-tolerance primitives the keeper
// puts in front of its upstreams: retry with jittered exponential
// backoff for chain RPC calls, and a circuit breaker for the payment
// facilitator, whose outages would otherwise turn every purchase request
// into a slow failure.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/logging"
)

// State is the breaker's position: closed (requests flow), open
// (requests are refused until the cool-off elapses), or half-open (a
// bounded number of probes decide which way to settle).
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

var (
	// ErrCircuitOpen is returned while the breaker refuses requests.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open probe budget is
	// already spent.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config tunes one breaker instance.
type Config struct {
	MaxFailures   int           // consecutive failures before opening
	Timeout       time.Duration // cool-off spent in the open state
	HalfOpenMax   int           // probe budget in the half-open state
	OnStateChange func(from, to State)
}

// DefaultConfig is the baseline tuning; upstream-specific presets adjust
// it per dependency.
func DefaultConfig() Config {
	return Config{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		HalfOpenMax: 3,
	}
}

// FacilitatorConfig is the breaker preset for the payment facilitator:
// fail fast after a short streak and hold the circuit open for a full
// minute, since a flapping facilitator burns the caller's signed
// authorization on every failed settlement attempt. State changes are
// logged when a logger is supplied.
func FacilitatorConfig(logger *logging.Logger) Config {
	cfg := Config{
		MaxFailures: 3,
		Timeout:     60 * time.Second,
		HalfOpenMax: 1,
	}
	if logger != nil {
		cfg.OnStateChange = func(from, to State) {
			logger.WithFields(map[string]interface{}{
				"upstream":   "facilitator",
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("circuit breaker state changed")
		}
	}
	return cfg
}

// CircuitBreaker tracks an upstream's failure streak and short-circuits
// calls while it is considered down.
type CircuitBreaker struct {
	mu           sync.RWMutex
	config       Config
	state        State
	failures     int
	successes    int
	halfOpenReqs int
	lastFailure  time.Time
}

// New builds a breaker, clamping non-positive config fields to the
// defaults so a zero-valued Config still behaves sanely.
func New(cfg Config) *CircuitBreaker {
	def := DefaultConfig()
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = def.HalfOpenMax
	}
	return &CircuitBreaker{config: cfg, state: StateClosed}
}

// State returns the breaker's current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Execute runs fn unless the breaker is refusing requests, and feeds the
// outcome back into the state machine.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err == nil)
	return err
}

// admit decides whether one request may pass right now.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenReqs = 1
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenReqs >= cb.config.HalfOpenMax {
			return ErrTooManyRequests
		}
		cb.halfOpenReqs++
	}
	return nil
}

// record applies one request outcome.
func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !success {
		cb.failures++
		cb.lastFailure = time.Now()
		switch cb.state {
		case StateHalfOpen:
			cb.setState(StateOpen)
		case StateClosed:
			if cb.failures >= cb.config.MaxFailures {
				cb.setState(StateOpen)
			}
		}
		return
	}

	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenMax {
			cb.setState(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}
	old := cb.state
	cb.state = newState
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenReqs = 0

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(old, newState)
	}
}
