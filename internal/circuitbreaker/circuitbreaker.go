// Package circuitbreaker implements the circuit breaker pattern used to
// guard blockchain RPC calls.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/pagent-credits/backend/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means the circuit is closed and requests are allowed
	StateClosed State = "closed"
	// StateOpen means the circuit is open and requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means the circuit is testing if the service has recovered
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a circuit breaker
type Config struct {
	Name             string
	MaxFailures      int
	Timeout          time.Duration
	HalfOpenMaxCalls int
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

// CircuitBreaker trips after consecutive failures and blocks calls until the
// cool-down elapses, then probes with a limited number of half-open calls.
type CircuitBreaker struct {
	name             string
	maxFailures      int
	timeout          time.Duration
	halfOpenMaxCalls int

	mu               sync.Mutex
	state            State
	consecutiveFails int
	halfOpenCalls    int
	lastStateChange  time.Time
}

// New creates a new circuit breaker
func New(config *Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:             config.Name,
		maxFailures:      config.MaxFailures,
		timeout:          config.Timeout,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
		state:            StateClosed,
		lastStateChange:  time.Now(),
	}
}

// Execute runs fn with circuit breaker protection
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(err)
	return err
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(cb.lastStateChange) > cb.timeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenCalls = 1
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return ErrCircuitOpen
		}
		cb.halfOpenCalls++
		return nil
	}

	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.consecutiveFails++
		if cb.state == StateHalfOpen || cb.consecutiveFails >= cb.maxFailures {
			if cb.state != StateOpen {
				cb.setState(StateOpen)
			}
		}
		return
	}

	cb.consecutiveFails = 0
	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) setState(state State) {
	cb.state = state
	cb.lastStateChange = time.Now()
	logging.WithFields(map[string]interface{}{
		"circuitBreaker": cb.name,
		"state":          state,
	}).Info("Circuit breaker state change")
}
