// Package lock provides a small Redis lock used by the gateway to
// single-flight identical cache misses across process instances, so two
// instances do not pay a provider twice for the same query at the same
// moment. It is an optimization: when the lock cannot be acquired or
// Redis is unavailable, callers proceed without it.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultTTL       = 15 * time.Second
	defaultPollDelay = 100 * time.Millisecond
)

var (
	// ErrNotAcquired is returned when TryLock finds the lock held.
	ErrNotAcquired = errors.New("lock: not acquired")
	// ErrNotHeld is returned by Unlock when this instance does not hold
	// the lock (expired or taken over).
	ErrNotHeld = errors.New("lock: not held")
)

// unlockScript deletes the key only if this instance still holds it.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Locker is a lock on a single resource key.
type Locker struct {
	client redis.Cmdable
	key    string
	value  string
	ttl    time.Duration
}

// Option configures a Locker.
type Option func(*Locker)

// WithTTL sets the lock expiry. The TTL bounds how long a crashed holder
// can block others. Defaults to 15s.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// New creates a Locker for the given resource key.
func New(client redis.Cmdable, key string, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		key:    key,
		ttl:    defaultTTL,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryLock attempts to acquire the lock without waiting. Returns
// ErrNotAcquired when another holder has it.
func (l *Locker) TryLock(ctx context.Context) error {
	value := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, value, l.ttl).Result()
	if err != nil {
		log.Error().Err(err).Str("key", l.key).Msg("lock setnx failed")
		return err
	}
	if !ok {
		return ErrNotAcquired
	}
	l.value = value
	return nil
}

// Unlock releases the lock if this instance still holds it.
func (l *Locker) Unlock(ctx context.Context) error {
	if l.value == "" {
		return ErrNotHeld
	}
	held := l.value
	l.value = ""

	res, err := l.client.Eval(ctx, unlockScript, []string{l.key}, held).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil // key expired, already released
		}
		log.Error().Err(err).Str("key", l.key).Msg("unlock script failed")
		return err
	}
	if deleted, ok := res.(int64); !ok || deleted != 1 {
		return ErrNotHeld
	}
	return nil
}

// Wait blocks until the lock key is released (or expires) or ctx is
// done. Used by losers of TryLock to wait for the winner's write-through
// before re-checking the cache.
func (l *Locker) Wait(ctx context.Context) error {
	ticker := time.NewTicker(defaultPollDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := l.client.Exists(ctx, l.key).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
		}
	}
}

// Key returns the resource key associated with this locker.
func (l *Locker) Key() string {
	return l.key
}
