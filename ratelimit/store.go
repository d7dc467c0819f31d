package ratelimit

import (
	"context"
	"sync"
	"time"
)

// BucketStore holds token bucket state. The memory implementation is the
// default: each process instance rate-limits independently, which is a
// documented limitation for horizontal scaling. The Redis implementation
// can be substituted so instances share one bucket per provider, without
// changing limiter logic.
type BucketStore interface {
	// Take attempts to consume one token from the bucket identified by
	// key. Refill is computed lazily from elapsed time: tokens never
	// fall below 0 or exceed burst. Returns whether a token was taken.
	Take(ctx context.Context, key string, burst int, refillPerSecond float64) (bool, error)
}

// bucketState holds the state for one key in the memory store.
type bucketState struct {
	tokens    float64   // current number of tokens
	lastCheck time.Time // timestamp of the last refill
}

// memoryBucketStore implements BucketStore with an in-memory map.
type memoryBucketStore struct {
	mu    sync.Mutex
	state map[string]bucketState
	now   func() time.Time
}

// MemoryStoreOption configures the memory bucket store.
type MemoryStoreOption func(*memoryBucketStore)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *memoryBucketStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryBucketStore creates an in-memory bucket store.
func NewMemoryBucketStore(opts ...MemoryStoreOption) BucketStore {
	s := &memoryBucketStore{
		state: make(map[string]bucketState),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Take implements BucketStore for memory storage.
func (s *memoryBucketStore) Take(ctx context.Context, key string, burst int, refillPerSecond float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st, exists := s.state[key]
	if !exists {
		// first request for this key: a full bucket, consume one token
		s.state[key] = bucketState{
			tokens:    float64(burst) - 1.0,
			lastCheck: now,
		}
		return true, nil
	}

	// lazy refill from elapsed wall-clock time
	elapsed := now.Sub(st.lastCheck).Seconds()
	if elapsed > 0 {
		st.tokens += elapsed * refillPerSecond
		if st.tokens > float64(burst) {
			st.tokens = float64(burst) // clamp to burst capacity
		}
	}
	st.lastCheck = now

	allowed := st.tokens >= 1.0
	if allowed {
		st.tokens -= 1.0
	}
	s.state[key] = st
	return allowed, nil
}

// tokens reports the current token count after refill, for inspection in
// tests.
func (s *memoryBucketStore) peek(key string, burst int, refillPerSecond float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, exists := s.state[key]
	if !exists {
		return float64(burst)
	}
	tokens := st.tokens + s.now().Sub(st.lastCheck).Seconds()*refillPerSecond
	if tokens > float64(burst) {
		tokens = float64(burst)
	}
	return tokens
}
