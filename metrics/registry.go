// Package metrics provides an explicit metrics registry.
//
// A Registry is constructed once at process start and passed by reference
// into every component that records metrics; there is no package-level
// global, so tests can use a fresh registry each.
package metrics

import "sync"

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	CacheHits        int64
	CacheMisses      int64
	ProviderCalls    map[string]int64
	ProviderFailures map[string]int64
	Failovers        int64
	Retries          int64
	BudgetRejections int64
	CircuitOpens     int64
	SearchesServed   int64
}

// Registry holds counters for the provider-access layer.
type Registry struct {
	mu               sync.Mutex
	cacheHits        int64
	cacheMisses      int64
	providerCalls    map[string]int64
	providerFailures map[string]int64
	failovers        int64
	retries          int64
	budgetRejections int64
	circuitOpens     int64
	searchesServed   int64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		providerCalls:    make(map[string]int64),
		providerFailures: make(map[string]int64),
	}
}

// CacheHit increments the cache hit counter.
func (r *Registry) CacheHit() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheHits++
}

// CacheMiss increments the cache miss counter.
func (r *Registry) CacheMiss() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheMisses++
}

// ProviderCall records an outbound call to the named provider.
func (r *Registry) ProviderCall(provider string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providerCalls[provider]++
}

// ProviderFailure records a failed call for the named provider.
func (r *Registry) ProviderFailure(provider string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providerFailures[provider]++
}

// Failover records a switch to the next candidate provider.
func (r *Registry) Failover() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failovers++
}

// Retry records a retried unit of work.
func (r *Registry) Retry() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

// BudgetRejection records a query rejected by the budget ledger.
func (r *Registry) BudgetRejection() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.budgetRejections++
}

// CircuitOpen records a fail-fast rejection by an open breaker.
func (r *Registry) CircuitOpen() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.circuitOpens++
}

// SearchServed records a completed search, cached or live.
func (r *Registry) SearchServed() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchesServed++
}

// GetSnapshot returns a copy of the current counters.
func (r *Registry) GetSnapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		CacheHits:        r.cacheHits,
		CacheMisses:      r.cacheMisses,
		ProviderCalls:    make(map[string]int64, len(r.providerCalls)),
		ProviderFailures: make(map[string]int64, len(r.providerFailures)),
		Failovers:        r.failovers,
		Retries:          r.retries,
		BudgetRejections: r.budgetRejections,
		CircuitOpens:     r.circuitOpens,
		SearchesServed:   r.searchesServed,
	}
	for k, v := range r.providerCalls {
		snap.ProviderCalls[k] = v
	}
	for k, v := range r.providerFailures {
		snap.ProviderFailures[k] = v
	}
	return snap
}
