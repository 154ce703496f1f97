package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config combines the resilience patterns a Manager applies.
type Config struct {
	CircuitBreaker *CircuitBreakerConfig
	Retry          *RetryConfig
	Timeout        time.Duration
	BulkheadSize   int
}

// DefaultConfig provides comprehensive defaults.
func DefaultConfig() Config {
	cb := DefaultCircuitBreakerConfig()
	retry := DefaultRetryConfig()
	return Config{
		CircuitBreaker: &cb,
		Retry:          &retry,
		Timeout:        30 * time.Second,
		BulkheadSize:   100,
	}
}

// Manager layers bulkhead, timeout, circuit breaker and retry around an
// Operation.
type Manager struct {
	circuitBreaker *CircuitBreaker
	config         Config
	semaphore      chan struct{}
	metrics        *Metrics
}

// Metrics tracks resilience pattern usage.
type Metrics struct {
	mutex               sync.RWMutex
	TotalRequests       int64
	SuccessfulRequests  int64
	FailedRequests      int64
	RejectedRequests    int64
	TimeoutRequests     int64
	CircuitBreakerTrips int64
	RetryAttempts       int64
	BulkheadRejections  int64
}

// NewManager creates a Manager from config.
func NewManager(config Config) *Manager {
	var cb *CircuitBreaker
	if config.CircuitBreaker != nil {
		cb = NewCircuitBreaker(*config.CircuitBreaker)
	}
	return &Manager{
		circuitBreaker: cb,
		config:         config,
		semaphore:      make(chan struct{}, config.BulkheadSize),
		metrics:        &Metrics{},
	}
}

// Execute runs operation under bulkhead, timeout, circuit breaker and retry.
func (m *Manager) Execute(ctx context.Context, operation Operation) (interface{}, error) {
	m.metrics.inc(&m.metrics.TotalRequests)

	if !m.acquireBulkhead() {
		m.metrics.inc(&m.metrics.BulkheadRejections)
		m.metrics.inc(&m.metrics.RejectedRequests)
		return nil, fmt.Errorf("bulkhead limit exceeded, request rejected")
	}
	defer m.releaseBulkhead()

	timeoutCtx := ctx
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		timeoutCtx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	run := func() (interface{}, error) {
		switch {
		case m.circuitBreaker != nil:
			return m.executeWithCircuitBreakerAndRetry(timeoutCtx, operation)
		case m.config.Retry != nil:
			return WithContext(timeoutCtx, *m.config.Retry, operation)
		default:
			return operation()
		}
	}

	type outcome struct {
		result interface{}
		err    error
	}
	resultChan := make(chan outcome, 1)
	go func() {
		result, err := run()
		resultChan <- outcome{result, err}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil {
			m.metrics.inc(&m.metrics.FailedRequests)
		} else {
			m.metrics.inc(&m.metrics.SuccessfulRequests)
		}
		return res.result, res.err
	case <-timeoutCtx.Done():
		m.metrics.inc(&m.metrics.TimeoutRequests)
		m.metrics.inc(&m.metrics.FailedRequests)
		return nil, fmt.Errorf("operation timed out after %v", m.config.Timeout)
	}
}

func (m *Manager) executeWithCircuitBreakerAndRetry(ctx context.Context, operation Operation) (interface{}, error) {
	retryable := func() (interface{}, error) {
		result, err := m.circuitBreaker.Execute(ctx, operation)
		if err != nil && err.Error() == "circuit breaker is open" {
			m.metrics.inc(&m.metrics.CircuitBreakerTrips)
			return nil, err
		}
		return result, err
	}

	if m.config.Retry == nil {
		return retryable()
	}

	var lastErr error
	for attempt := 0; attempt <= m.config.Retry.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := retryable()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt > 0 {
			m.metrics.inc(&m.metrics.RetryAttempts)
		}

		if !isRetryableError(err, m.config.Retry.RetryableErrors) {
			return nil, fmt.Errorf("non-retryable error: %w", err)
		}
		if attempt == m.config.Retry.MaxRetries {
			break
		}

		delay := calculateDelay(attempt, *m.config.Retry)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("operation failed after %d attempts: %w", m.config.Retry.MaxRetries+1, lastErr)
}

func (m *Manager) acquireBulkhead() bool {
	select {
	case m.semaphore <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Manager) releaseBulkhead() {
	<-m.semaphore
}

// Snapshot returns a copy of the current metrics.
func (m *Manager) Snapshot() Metrics {
	m.metrics.mutex.RLock()
	defer m.metrics.mutex.RUnlock()
	return *m.metrics
}

func (met *Metrics) inc(counter *int64) {
	met.mutex.Lock()
	defer met.mutex.Unlock()
	*counter++
}
