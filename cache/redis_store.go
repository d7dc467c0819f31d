package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// redisStore implements Store on Redis so cache state is shared across
// process instances. Expiry is delegated to Redis TTLs; the store's own
// eviction policy (e.g. allkeys-lru) may also remove entries, which is
// acceptable for a cache.
type redisStore struct {
	statsTracker
	client redis.Cmdable
}

// NewRedisStore creates a Redis-backed cache store.
// It expects a pre-configured redis.Cmdable (e.g. redis.Client or
// redis.ClusterClient). Keys are already namespaced by Key.
func NewRedisStore(client redis.Cmdable) Store {
	return &redisStore{client: client}
}

// Get implements Store for Redis storage.
func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	stored, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.miss()
		return nil, false, nil
	}
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("redis cache get failed")
		return nil, false, fmt.Errorf("cache: redis get for key %s failed: %w", key, err)
	}

	payload, err := decompress(stored)
	if err != nil {
		// Drop the corrupt entry; next lookup is a clean miss.
		log.Error().Err(err).Str("key", key).Msg("dropping corrupt cache entry")
		s.client.Del(ctx, key)
		s.miss()
		return nil, false, nil
	}

	s.hit()
	return payload, true, nil
}

// Set implements Store for Redis storage.
func (s *redisStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	compressed, err := compress(payload)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, key, compressed, ttl).Err(); err != nil {
		log.Error().Err(err).Str("key", key).Msg("redis cache set failed")
		return fmt.Errorf("cache: redis set for key %s failed: %w", key, err)
	}

	s.set(len(payload), len(compressed))
	return nil
}

// GetStats implements Store. Statistics are process-local even though the
// entries are shared.
func (s *redisStore) GetStats() Stats {
	return s.snapshot()
}
