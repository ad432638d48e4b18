package graph

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior for nodes
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors func(error) bool // Determines if an error should trigger retry
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: func(_ error) bool {
			// By default, retry all errors
			return true
		},
	}
}

// RetryNode wraps a named unit of work with retry logic. It is
// graph-agnostic so it can wrap a StateGraph[S] node function, a tool
// invocation, or an extraction step indifferently.
type RetryNode struct {
	name   string
	fn     func(context.Context, any) (any, error)
	config *RetryConfig
}

// NewRetryNode creates a new retry node
func NewRetryNode(name string, fn func(context.Context, any) (any, error), config *RetryConfig) *RetryNode {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryNode{
		name:   name,
		fn:     fn,
		config: config,
	}
}

// Execute runs the wrapped function with retry logic
func (rn *RetryNode) Execute(ctx context.Context, state any) (any, error) {
	var lastErr error
	delay := rn.config.InitialDelay

	for attempt := 1; attempt <= rn.config.MaxAttempts; attempt++ {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("retry cancelled: %w", ctx.Err())
		default:
		}

		// Execute the wrapped function
		result, err := rn.fn(ctx, state)
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Check if error is retryable
		if rn.config.RetryableErrors != nil && !rn.config.RetryableErrors(err) {
			return nil, fmt.Errorf("non-retryable error in %s: %w", rn.name, err)
		}

		// Don't sleep after the last attempt
		if attempt < rn.config.MaxAttempts {
			// Sleep with exponential backoff
			select {
			case <-time.After(delay):
				// Calculate next delay with backoff
				delay = min(time.Duration(float64(delay)*rn.config.BackoffFactor), rn.config.MaxDelay)
			case <-ctx.Done():
				return nil, fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded for %s: %w",
		rn.config.MaxAttempts, rn.name, lastErr)
}

// TimeoutNode wraps a named unit of work with timeout logic
type TimeoutNode struct {
	name    string
	fn      func(context.Context, any) (any, error)
	timeout time.Duration
}

// NewTimeoutNode creates a new timeout node
func NewTimeoutNode(name string, fn func(context.Context, any) (any, error), timeout time.Duration) *TimeoutNode {
	return &TimeoutNode{
		name:    name,
		fn:      fn,
		timeout: timeout,
	}
}

// Execute runs the wrapped function with timeout
func (tn *TimeoutNode) Execute(ctx context.Context, state any) (any, error) {
	// Create a timeout context
	timeoutCtx, cancel := context.WithTimeout(ctx, tn.timeout)
	defer cancel()

	// Channel for result
	type result struct {
		value any
		err   error
	}
	resultChan := make(chan result, 1)

	// Execute in goroutine
	go func() {
		value, err := tn.fn(timeoutCtx, state)
		resultChan <- result{value: value, err: err}
	}()

	// Wait for result or timeout
	select {
	case res := <-resultChan:
		return res.value, res.err
	case <-timeoutCtx.Done():
		return nil, fmt.Errorf("node %s timed out after %v", tn.name, tn.timeout)
	}
}

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	FailureThreshold int           // Number of failures before opening
	SuccessThreshold int           // Number of successes before closing
	Timeout          time.Duration // Time before attempting to close
	HalfOpenMaxCalls int           // Max calls in half-open state
}

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	CircuitClosed CircuitBreakerState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker implements the circuit breaker pattern around a named
// unit of work (an external collaborator call: canvas CRUD, model
// provider, graph-DB backend).
type CircuitBreaker struct {
	name            string
	fn              func(context.Context, any) (any, error)
	config          CircuitBreakerConfig
	state           CircuitBreakerState
	failures        int
	successes       int
	lastFailureTime time.Time
	halfOpenCalls   int
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, fn func(context.Context, any) (any, error), config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		fn:     fn,
		config: config,
		state:  CircuitClosed,
	}
}

// Execute runs the wrapped function with circuit breaker logic
func (cb *CircuitBreaker) Execute(ctx context.Context, state any) (any, error) {
	// Check circuit state
	switch cb.state {
	case CircuitClosed:
		// Circuit is closed, proceed normally
	case CircuitOpen:
		// Check if enough time has passed to try again
		if time.Since(cb.lastFailureTime) > cb.config.Timeout {
			cb.state = CircuitHalfOpen
			cb.halfOpenCalls = 0
		} else {
			return nil, fmt.Errorf("circuit breaker open for %s", cb.name)
		}
	case CircuitHalfOpen:
		// Check if we've made too many calls in half-open state
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			cb.state = CircuitOpen
			return nil, fmt.Errorf("circuit breaker half-open limit reached for %s", cb.name)
		}
		cb.halfOpenCalls++
	}

	// Execute the wrapped function
	result, err := cb.fn(ctx, state)

	// Update circuit breaker state based on result
	if err != nil {
		cb.failures++
		cb.successes = 0
		cb.lastFailureTime = time.Now()

		if cb.failures >= cb.config.FailureThreshold {
			cb.state = CircuitOpen
		}

		return nil, fmt.Errorf("circuit breaker error in %s: %w", cb.name, err)
	}

	// Success
	cb.successes++
	cb.failures = 0

	if cb.state == CircuitHalfOpen && cb.successes >= cb.config.SuccessThreshold {
		cb.state = CircuitClosed
	}

	return result, nil
}

// RateLimiter implements a sliding-window rate limiter around a named
// unit of work. Used directly by extract's per-host token-bucket gate and
// by any future node that needs local rate limiting without a shared
// backing store.
type RateLimiter struct {
	name     string
	maxCalls int
	window   time.Duration
	calls    []time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(name string, maxCalls int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		name:     name,
		maxCalls: maxCalls,
		window:   window,
		calls:    make([]time.Time, 0, maxCalls),
	}
}

// Allow reports whether a call may proceed now, recording it if so.
func (rl *RateLimiter) Allow() (bool, time.Duration) {
	now := time.Now()

	// Remove old calls outside the window
	validCalls := make([]time.Time, 0, rl.maxCalls)
	for _, callTime := range rl.calls {
		if now.Sub(callTime) < rl.window {
			validCalls = append(validCalls, callTime)
		}
	}
	rl.calls = validCalls

	// Check if we're at the limit
	if len(rl.calls) >= rl.maxCalls {
		oldestCall := rl.calls[0]
		return false, rl.window - now.Sub(oldestCall)
	}

	rl.calls = append(rl.calls, now)
	return true, 0
}

// ExponentialBackoffRetry implements exponential backoff with jitter
func ExponentialBackoffRetry(
	ctx context.Context,
	fn func() (any, error),
	maxAttempts int,
	baseDelay time.Duration,
) (any, error) {
	for attempt := range maxAttempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if attempt == maxAttempts-1 {
			return nil, err
		}

		// Calculate delay with exponential backoff and jitter
		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))

		// Add jitter (±25%)
		//nolint:gosec // Using weak RNG for jitter is acceptable, not security-critical
		jitter := time.Duration(float64(delay) * 0.25 * (2*rand.Float64() - 1))
		delay += jitter

		select {
		case <-time.After(delay):
			// Continue to next attempt
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("max attempts reached")
}
