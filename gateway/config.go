// Package gateway executes SERP queries against an ordered list of
// providers with caching, budget enforcement, rate limiting, circuit
// breaking, and silent failover.
//
// Control flow for one search: cache lookup, then for each affordable
// provider in ascending cost order whose circuit is not open, a
// rate-limited call with retry/backoff. The first success is written
// through to the cache, recorded against the budget, and reported to the
// provider's breaker. The caller sees either a result or one aggregated
// error explaining why none could be produced.
package gateway

import (
	"fmt"
	"strings"
)

// ProviderConfig describes one SERP provider. Configuration is read-only
// at run time; the gateway never mutates it.
type ProviderConfig struct {
	// Name identifies the provider in logs, metrics, and failover
	// reasons.
	Name string

	// BaseURL is the provider's API root, e.g. "https://api.example.com".
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// PriorityRank breaks ties between providers with equal cost; lower
	// is preferred.
	PriorityRank int

	// CostPerQuery is the fixed dollar amount charged per call, as
	// configured, not derived from the response.
	CostPerQuery float64

	// RequestsPerSecond is this provider's rate limit. Defaults to 1.
	RequestsPerSecond float64

	// Enabled excludes the provider from candidate selection when false.
	Enabled bool
}

// ValidateAndPrepare validates the config and fills in defaults.
func (c *ProviderConfig) ValidateAndPrepare() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("gateway: provider name is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("gateway: provider %s has no base URL", c.Name)
	}
	if c.CostPerQuery < 0 {
		return fmt.Errorf("gateway: provider %s has negative cost per query %f", c.Name, c.CostPerQuery)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("gateway: provider %s has negative requests per second %f", c.Name, c.RequestsPerSecond)
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 1
	}
	return nil
}
