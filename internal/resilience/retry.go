// Package resilience provides retry, circuit-breaker and bulkhead patterns.
// No other package in this module calls it: the model cache's download path
// and the store write paths run without it.
package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig contains configuration for retry logic.
type RetryConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	Jitter          bool
	RetryableErrors []string
}

// DefaultRetryConfig provides sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		RetryableErrors: []string{
			"connection refused",
			"connection reset",
			"timeout",
			"context deadline exceeded",
			"network is unreachable",
		},
	}
}

// Operation is a function that can be retried.
type Operation func() (interface{}, error)

// WithContext executes an operation with retry logic, honoring ctx
// cancellation between attempts.
func WithContext(ctx context.Context, config RetryConfig, operation Operation) (interface{}, error) {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryableError(err, config.RetryableErrors) {
			return nil, fmt.Errorf("non-retryable error: %w", err)
		}

		if attempt == config.MaxRetries {
			break
		}

		delay := calculateDelay(attempt, config)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}

func calculateDelay(attempt int, config RetryConfig) time.Duration {
	delay := time.Duration(float64(config.BaseDelay) * math.Pow(config.BackoffFactor, float64(attempt)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if config.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)
		delay += jitter
	}
	return delay
}

func isRetryableError(err error, retryableErrors []string) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}

// WithCircuitBreaker combines retry logic with circuit breaker protection.
func WithCircuitBreaker(ctx context.Context, retryConfig RetryConfig, cb *CircuitBreaker, operation Operation) (interface{}, error) {
	retryable := func() (interface{}, error) {
		return cb.Execute(ctx, operation)
	}
	return WithContext(ctx, retryConfig, retryable)
}
