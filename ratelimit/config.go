// Package ratelimit provides a token-bucket rate limiter with a
// priority queue and retry/backoff for outbound provider calls.
//
// The bucket refills lazily from elapsed wall-clock time at consumption
// time, so there is no scheduled tick to drift. Pending work queues in
// strict priority order (stable FIFO within a priority) when no token or
// concurrency slot is available.
package ratelimit

import (
	"fmt"
	"math"
	"time"
)

// Backoff strategies.
const (
	BackoffExponential = "exponential"
	BackoffLinear      = "linear"
)

const (
	defaultConcurrentRequests = 5
	defaultMaxRetries         = 3
	maxBackoff                = 30 * time.Second
)

// Config holds rate limiter settings for one provider.
type Config struct {
	// RequestsPerSecond is the sustained refill rate. Must be positive.
	RequestsPerSecond float64

	// BurstLimit is the bucket capacity. Defaults to
	// ceil(RequestsPerSecond), at least 1.
	BurstLimit int

	// ConcurrentRequests caps in-flight work. Defaults to 5.
	ConcurrentRequests int

	// MaxRetries is the number of retries after the first attempt for
	// retryable errors. Defaults to 3.
	MaxRetries int

	// BackoffStrategy is "exponential" (min(30s, 2^attempt*1s)) or
	// "linear" (min(30s, attempt*2s)). Defaults to exponential.
	BackoffStrategy string
}

// ValidateAndPrepare validates the config and fills in defaults.
func (c *Config) ValidateAndPrepare() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("ratelimit: requests per second must be positive, got %f", c.RequestsPerSecond)
	}
	if c.BurstLimit < 0 {
		return fmt.Errorf("ratelimit: burst limit must not be negative, got %d", c.BurstLimit)
	}
	if c.BurstLimit == 0 {
		c.BurstLimit = int(math.Ceil(c.RequestsPerSecond))
		if c.BurstLimit < 1 {
			c.BurstLimit = 1
		}
	}
	if c.ConcurrentRequests < 0 {
		return fmt.Errorf("ratelimit: concurrent requests must not be negative, got %d", c.ConcurrentRequests)
	}
	if c.ConcurrentRequests == 0 {
		c.ConcurrentRequests = defaultConcurrentRequests
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("ratelimit: max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	switch c.BackoffStrategy {
	case "":
		c.BackoffStrategy = BackoffExponential
	case BackoffExponential, BackoffLinear:
	default:
		return fmt.Errorf("ratelimit: invalid backoff strategy %q, must be %q or %q",
			c.BackoffStrategy, BackoffExponential, BackoffLinear)
	}
	return nil
}

// backoffDelay computes the delay before retry number attempt (1-based).
func backoffDelay(strategy string, attempt int) time.Duration {
	var d time.Duration
	switch strategy {
	case BackoffLinear:
		d = time.Duration(attempt) * 2 * time.Second
	default:
		d = time.Duration(1<<uint(attempt)) * time.Second
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
