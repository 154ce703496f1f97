package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitState is the current state of a CircuitBreaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateHalfOpen
	StateOpen
)

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	FailureThreshold       int
	RecoveryTimeout        time.Duration
	RequestVolumeThreshold int
	ErrorPercentThreshold  int
	SuccessThreshold       int
	Timeout                time.Duration
}

// DefaultCircuitBreakerConfig provides sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:       5,
		RecoveryTimeout:        30 * time.Second,
		RequestVolumeThreshold: 10,
		ErrorPercentThreshold:  50,
		SuccessThreshold:       3,
		Timeout:                10 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	config       CircuitBreakerConfig
	state        CircuitState
	failures     int
	successes    int
	requests     int
	errors       int
	lastFailTime time.Time
	mutex        sync.RWMutex
}

// NewCircuitBreaker creates a CircuitBreaker with the given config.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config, state: StateClosed}
}

// Execute runs operation with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, operation func() (interface{}, error)) (interface{}, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.allowRequest() {
		return nil, errors.New("circuit breaker is open")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, cb.config.Timeout)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}
	resultChan := make(chan outcome, 1)

	go func() {
		result, err := operation()
		resultChan <- outcome{result, err}
	}()

	select {
	case res := <-resultChan:
		cb.onResult(res.err == nil)
		return res.result, res.err
	case <-timeoutCtx.Done():
		cb.onResult(false)
		return nil, errors.New("operation timed out")
	}
}

func (cb *CircuitBreaker) allowRequest() bool {
	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailTime) >= cb.config.RecoveryTimeout {
			cb.state = StateHalfOpen
			cb.successes = 0
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) onResult(success bool) {
	cb.requests++
	if success {
		cb.successes++
		if cb.state == StateHalfOpen && cb.successes >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.errors = 0
		}
		return
	}

	cb.failures++
	cb.errors++
	cb.lastFailTime = time.Now()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
	} else if cb.shouldTripCircuit() {
		cb.state = StateOpen
	}
}

func (cb *CircuitBreaker) shouldTripCircuit() bool {
	if cb.requests < cb.config.RequestVolumeThreshold {
		return false
	}
	errorPercentage := (cb.errors * 100) / cb.requests
	return errorPercentage >= cb.config.ErrorPercentThreshold || cb.failures >= cb.config.FailureThreshold
}

// GetState returns the current circuit state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.requests = 0
	cb.errors = 0
	cb.lastFailTime = time.Time{}
}
