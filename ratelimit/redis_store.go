package ratelimit

import (
	"context"
	_ "embed" // needed for go:embed
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

//go:embed bucket.lua
var bucketScriptSrc string // embed the lua script content

var bucketScript = redis.NewScript(bucketScriptSrc)

// redisBucketStore implements BucketStore on Redis so multiple instances
// share one bucket per provider. The take runs as a Lua script for
// atomicity.
type redisBucketStore struct {
	client redis.Cmdable
}

// NewRedisBucketStore creates a Redis-backed bucket store.
// It expects a pre-configured redis.Cmdable (e.g. redis.Client or
// redis.ClusterClient).
func NewRedisBucketStore(client redis.Cmdable) BucketStore {
	return &redisBucketStore{client: client}
}

// Take implements BucketStore for Redis storage.
func (s *redisBucketStore) Take(ctx context.Context, key string, burst int, refillPerSecond float64) (bool, error) {
	nowFloat := float64(time.Now().UnixNano()) / 1e9

	result, err := bucketScript.Run(ctx, s.client,
		[]string{fmt.Sprintf("serp:bucket:%s", key)},
		burst, refillPerSecond, nowFloat,
	).Result()
	if err != nil {
		// Fail closed: a broken store must not let calls through unmetered.
		log.Error().Err(err).Str("key", key).Msg("redis bucket script failed")
		return false, fmt.Errorf("ratelimit: redis bucket take for key %s failed: %w", key, err)
	}

	allowed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("ratelimit: unexpected bucket script result type %T for key %s", result, key)
	}
	return allowed == 1, nil
}
