package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"
)

// BackoffStrategy selects how the delay grows between attempts.
type BackoffStrategy int

const (
	BackoffLinear      BackoffStrategy = iota // base, 2*base, 3*base, ...
	BackoffExponential                        // base, base*m, base*m^2, ...
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxAttempts       int             // Total attempts, including the first
	InitialBackoff    time.Duration   // Delay before the first retry
	MaxBackoff        time.Duration   // Upper bound for a single delay; zero means unbounded
	BackoffMultiplier float64         // Growth factor for exponential backoff
	Strategy          BackoffStrategy // Linear or exponential
	Jitter            bool            // Add up to 25% random jitter to each delay

	// OnRetry, if set, is called before sleeping ahead of retry number n (1-based).
	OnRetry func(n int, err error, delay time.Duration)
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Strategy:          BackoffExponential,
		Jitter:            true,
	}
}

// LinearRetryConfig returns a config that makes maxAttempts attempts and waits
// base*n before retry n, without jitter.
func LinearRetryConfig(maxAttempts int, base time.Duration) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: base,
		Strategy:       BackoffLinear,
	}
}

// RetryableFunc is a function that can be retried. attempt starts at 1.
type RetryableFunc func(attempt int) error

// IsRetryableError checks if an error is retryable
type IsRetryableError func(error) bool

// Backoff returns the delay before retry n (1-based), without jitter.
func (c *RetryConfig) Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}

	var d time.Duration
	switch c.Strategy {
	case BackoffLinear:
		d = c.InitialBackoff * time.Duration(n)
	default:
		mult := c.BackoffMultiplier
		if mult <= 0 {
			mult = 2.0
		}
		d = time.Duration(float64(c.InitialBackoff) * math.Pow(mult, float64(n-1)))
	}

	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

// Schedule returns every delay the config will wait for, in order.
func (c *RetryConfig) Schedule() []time.Duration {
	if c.MaxAttempts <= 1 {
		return nil
	}
	delays := make([]time.Duration, 0, c.MaxAttempts-1)
	for n := 1; n < c.MaxAttempts; n++ {
		delays = append(delays, c.Backoff(n))
	}
	return delays
}

func (c *RetryConfig) delay(n int) time.Duration {
	d := c.Backoff(n)
	if c.Jitter && d > 0 {
		d += time.Duration(rand.Int63n(int64(d)/4 + 1))
	}
	return d
}

// Retry runs fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted, or ctx is done. It returns the last error from fn, or the
// context error if ctx ended while waiting.
func Retry(ctx context.Context, fn RetryableFunc, config *RetryConfig, isRetryable IsRetryableError) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		d := config.delay(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, d)
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}

	return lastErr
}

// IsRetryableNetworkError checks if an error is a retryable network error
func IsRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// Connection errors
	if containsAny(errStr, []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"broken pipe",
		"eof",
		"network is unreachable",
		"no route to host",
		"no such host",
	}) {
		return true
	}

	// Timeout errors
	return containsAny(errStr, []string{
		"deadline exceeded",
		"timeout",
	})
}

func containsAny(s string, substrings []string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// RetryableError wraps an error to indicate it's retryable
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable checks if an error is a RetryableError
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
