package gateway

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"syscall"

	"github.com/serplens/lens/alert"
)

// ErrNoProviders is returned when no enabled provider is configured (or
// a pinned provider does not exist).
var ErrNoProviders = errors.New("gateway: no enabled providers")

// BudgetExceededError rejects a search before any network call when no
// candidate provider is affordable. Period names the tightest breached
// window for the cheapest candidate.
type BudgetExceededError struct {
	Period alert.Period
	Spend  float64
	Limit  float64
	Cost   float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("gateway: %s budget exceeded: spent $%.2f of $%.2f, next query costs $%.2f",
		e.Period, e.Spend, e.Limit, e.Cost)
}

// ProviderError is a failed call to one provider. StatusCode is zero for
// transport-level failures; Err carries the underlying cause.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway: provider %s returned status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway: provider %s call failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable classifies the failure for the rate limiter's backoff:
// HTTP 5xx and 429 retry, other statuses do not, and transport errors
// retry only for timeouts and connection resets.
func (e *ProviderError) Retryable() bool {
	if e.StatusCode != 0 {
		return e.StatusCode == 429 || e.StatusCode >= 500
	}
	var nerr net.Error
	if errors.As(e.Err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(e.Err, syscall.ECONNRESET) || errors.Is(e.Err, syscall.ECONNREFUSED)
}

// ExhaustedError aggregates per-provider failure reasons once every
// candidate was unaffordable, circuit-open, or failed after retries.
type ExhaustedError struct {
	Query    string
	Failures map[string]string
}

func (e *ExhaustedError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Failures[name]))
	}
	return fmt.Sprintf("gateway: all providers exhausted for query %q [%s]", e.Query, strings.Join(parts, "; "))
}
