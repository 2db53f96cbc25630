package controlplane

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stackguardian/runner-autoscaler/internal/audit"
	"github.com/stackguardian/runner-autoscaler/internal/metrics"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState string

const (
	StateClosed   CircuitBreakerState = "closed"
	StateOpen     CircuitBreakerState = "open"
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes to close from half-open.
	SuccessThreshold int

	// Timeout is how long to wait in open state before trying half-open.
	Timeout time.Duration

	// MaxHalfOpenRequests is the max concurrent requests allowed in half-open state.
	MaxHalfOpenRequests int
}

// DefaultCircuitBreakerConfig returns the default circuit breaker configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// CircuitBreaker implements the circuit breaker pattern around control-plane calls.
type CircuitBreaker struct {
	config           CircuitBreakerConfig
	state            CircuitBreakerState
	failureCount     int
	successCount     int
	lastStateChange  time.Time
	halfOpenRequests int
	logger           *zap.Logger
	audit            *audit.Logger
	mu               sync.RWMutex
}

// NewCircuitBreaker creates a new circuit breaker in the closed state.
// Transitions to open and to closed are reported to the process-wide
// audit logger.
func NewCircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	cb := &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
		logger:          logger,
		audit:           audit.Global(),
	}

	metrics.CircuitBreakerState.WithLabelValues(string(StateClosed)).Set(1)
	metrics.CircuitBreakerState.WithLabelValues(string(StateOpen)).Set(0)
	metrics.CircuitBreakerState.WithLabelValues(string(StateHalfOpen)).Set(0)

	return cb
}

// Call executes fn with circuit breaker protection.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if now.Sub(cb.lastStateChange) >= cb.config.Timeout {
			cb.transitionTo(StateHalfOpen, "timeout elapsed")
			cb.halfOpenRequests++
			metrics.CircuitBreakerHalfOpenAttempts.Inc()
			return nil
		}
		metrics.CircuitBreakerOpenRejections.Inc()
		return ErrCircuitOpen

	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.MaxHalfOpenRequests {
			metrics.CircuitBreakerHalfOpenRejections.Inc()
			return ErrCircuitOpen
		}
		cb.halfOpenRequests++
		metrics.CircuitBreakerHalfOpenAttempts.Inc()
		return nil

	default:
		return fmt.Errorf("unknown circuit breaker state: %s", cb.state)
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		if err != nil {
			cb.failureCount++
			cb.successCount = 0
			if cb.failureCount >= cb.config.FailureThreshold {
				cb.transitionTo(StateOpen, fmt.Sprintf("failure threshold reached (%d failures)", cb.failureCount))
			}
		} else {
			cb.failureCount = 0
			cb.successCount++
		}

	case StateHalfOpen:
		cb.halfOpenRequests--
		if err != nil {
			cb.failureCount++
			cb.successCount = 0
			metrics.CircuitBreakerHalfOpenFailures.Inc()
			cb.transitionTo(StateOpen, "failure in half-open state")
		} else {
			cb.failureCount = 0
			cb.successCount++
			metrics.CircuitBreakerHalfOpenSuccesses.Inc()
			if cb.successCount >= cb.config.SuccessThreshold {
				cb.transitionTo(StateClosed, fmt.Sprintf("success threshold reached (%d successes)", cb.successCount))
			}
		}

	case StateOpen:
		cb.logger.Warn("afterCall called in open state (should not happen)")
	}
}

// transitionTo changes the circuit breaker state. Caller must hold cb.mu.
func (cb *CircuitBreaker) transitionTo(newState CircuitBreakerState, reason string) {
	oldState := cb.state
	if newState == oldState {
		return
	}

	cb.state = newState
	cb.lastStateChange = time.Now()
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenRequests = 0

	metrics.CircuitBreakerState.WithLabelValues(string(oldState)).Set(0)
	metrics.CircuitBreakerState.WithLabelValues(string(newState)).Set(1)
	metrics.CircuitBreakerStateChanges.WithLabelValues(string(oldState), string(newState)).Inc()

	cb.logger.Info("circuit breaker state changed",
		zap.String("from", string(oldState)),
		zap.String("to", string(newState)),
		zap.String("reason", reason))

	switch newState {
	case StateOpen:
		cb.audit.LogCircuitBreakerOpened(context.Background())
	case StateClosed:
		cb.audit.LogCircuitBreakerClosed(context.Background())
	}
}

// GetState returns the current circuit breaker state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset resets the circuit breaker to the closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenRequests = 0
	cb.lastStateChange = time.Now()

	if oldState != StateClosed {
		metrics.CircuitBreakerState.WithLabelValues(string(oldState)).Set(0)
		metrics.CircuitBreakerState.WithLabelValues(string(StateClosed)).Set(1)
	}
}
