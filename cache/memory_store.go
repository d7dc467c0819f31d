package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// entry holds a single compressed payload with its expiry metadata.
type entry struct {
	compressed []byte
	createdAt  time.Time
	ttl        time.Duration
}

func (e entry) expired(now time.Time) bool {
	return now.After(e.createdAt.Add(e.ttl))
}

// memoryStore implements Store with an in-memory map. Expired entries are
// pruned lazily on read.
type memoryStore struct {
	statsTracker
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// MemoryOption configures the memory store.
type MemoryOption func(*memoryStore)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *memoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an in-memory cache store.
func NewMemoryStore(opts ...MemoryOption) Store {
	s := &memoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements Store for memory storage.
func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok && e.expired(s.now()) {
		// expired-on-read pruning
		delete(s.entries, key)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		s.miss()
		return nil, false, nil
	}

	payload, err := decompress(e.compressed)
	if err != nil {
		// A corrupt entry is dropped and treated as a miss.
		log.Error().Err(err).Str("key", key).Msg("dropping corrupt cache entry")
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		s.miss()
		return nil, false, nil
	}

	s.hit()
	return payload, true, nil
}

// Set implements Store for memory storage.
func (s *memoryStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	compressed, err := compress(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[key] = entry{
		compressed: compressed,
		createdAt:  s.now(),
		ttl:        ttl,
	}
	s.mu.Unlock()

	s.set(len(payload), len(compressed))
	log.Debug().Str("key", key).Int("raw_bytes", len(payload)).Int("stored_bytes", len(compressed)).Dur("ttl", ttl).Msg("cache entry stored")
	return nil
}

// GetStats implements Store.
func (s *memoryStore) GetStats() Stats {
	return s.snapshot()
}
