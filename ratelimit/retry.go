package ratelimit

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// retryableError lets error types declare their own retry classification.
// The gateway's ProviderError implements it: HTTP 5xx and 429 are
// retryable, other 4xx and malformed responses are not.
type retryableError interface {
	Retryable() bool
}

// IsRetryable classifies an error for retry with backoff. Retryable:
// connection reset/refused, timeouts, and errors that declare themselves
// retryable. Context cancellation and everything else reject immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r retryableError
	if errors.As(err, &r) {
		return r.Retryable()
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}
