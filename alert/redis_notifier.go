package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// defaultChannel is the Redis channel alerts are published to.
const defaultChannel = "serp:alerts"

// RedisNotifier publishes events to a Redis channel as JSON. Consumers
// (webhook forwarders, pagers) subscribe out-of-process.
type RedisNotifier struct {
	client  redis.Cmdable
	channel string

	mu     sync.Mutex
	closed bool
}

// NewRedisNotifier creates a Redis-backed Notifier.
// It expects a pre-configured redis.Cmdable (e.g. redis.Client or
// redis.ClusterClient).
func NewRedisNotifier(client redis.Cmdable, channel string) *RedisNotifier {
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Notify JSON-encodes the event and publishes it.
func (r *RedisNotifier) Notify(ctx context.Context, event Event) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return fmt.Errorf("alert: redis notifier is closed")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("alert: failed to encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		log.Error().Err(err).Str("channel", r.channel).Msg("alert publish failed")
		return fmt.Errorf("alert: publish to %s failed: %w", r.channel, err)
	}
	log.Debug().
		Str("channel", r.channel).
		Str("type", string(event.Type)).
		Str("period", string(event.Period)).
		Float64("percentage", event.Percentage).
		Msg("alert published")
	return nil
}

// Close marks the notifier closed. The Redis client is owned by the
// caller and is not closed here.
func (r *RedisNotifier) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
