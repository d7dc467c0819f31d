package alert

import (
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Option configures New.
type Option func(*options)

type options struct {
	redisClient redis.Cmdable
	channel     string
	handlers    []Handler
}

// WithRedisClient selects the Redis backend, publishing events to a
// channel for out-of-process consumers.
func WithRedisClient(client redis.Cmdable) Option {
	return func(o *options) {
		o.redisClient = client
	}
}

// WithChannel overrides the Redis channel name.
func WithChannel(channel string) Option {
	return func(o *options) {
		if channel != "" {
			o.channel = channel
		}
	}
}

// WithHandler registers an in-process handler. Only applicable to the
// memory backend.
func WithHandler(h Handler) Option {
	return func(o *options) {
		if h != nil {
			o.handlers = append(o.handlers, h)
		}
	}
}

// New creates a Notifier. By default it uses the in-memory fan-out; pass
// WithRedisClient to publish to Redis instead.
func New(opts ...Option) Notifier {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.redisClient != nil {
		log.Info().Msg("initializing alert notifier with redis backend")
		return NewRedisNotifier(o.redisClient, o.channel)
	}

	log.Info().Msg("initializing alert notifier with memory backend")
	m := NewMemoryNotifier()
	for _, h := range o.handlers {
		m.OnEvent(h)
	}
	return m
}
