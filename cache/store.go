// Package cache provides a TTL key/value store for SERP payloads.
//
// Payloads are gzip-compressed before storage and transparently
// decompressed on read. Two backends are provided: an in-memory map for
// single-instance deployments and a Redis store so multiple instances
// share cache state. SERP rankings drift slowly, so the default TTL is
// measured in hours.
package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is applied when Set is called with a non-positive TTL.
const DefaultTTL = 6 * time.Hour

// Store is the cache contract.
type Store interface {
	// Get returns the decompressed payload for key. The boolean reports
	// whether the key was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set compresses and stores payload under key for ttl. A
	// non-positive ttl falls back to DefaultTTL.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// GetStats returns hit/miss and compression statistics. Statistics
	// are informational, not part of the correctness contract.
	GetStats() Stats
}

// Stats holds cache statistics.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	RawBytes    int64 // uncompressed payload bytes written
	StoredBytes int64 // compressed bytes written
}

// HitRate returns hits / (hits + misses), or 0 when no lookups happened.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// CompressionRatio returns raw bytes / stored bytes, or 0 when nothing
// was written.
func (s Stats) CompressionRatio() float64 {
	if s.StoredBytes == 0 {
		return 0
	}
	return float64(s.RawBytes) / float64(s.StoredBytes)
}

// statsTracker accumulates Stats under a lock; embedded by both backends.
type statsTracker struct {
	mu    sync.Mutex
	stats Stats
}

func (t *statsTracker) hit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Hits++
}

func (t *statsTracker) miss() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Misses++
}

func (t *statsTracker) set(rawBytes, storedBytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Sets++
	t.stats.RawBytes += int64(rawBytes)
	t.stats.StoredBytes += int64(storedBytes)
}

func (t *statsTracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
