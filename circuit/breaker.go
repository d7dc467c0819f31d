// Package circuit provides a per-provider circuit breaker.
//
// The breaker isolates a failing SERP provider: after a configured number
// of consecutive failures it opens and fails fast without contacting the
// provider, then allows a single trial call once the cooldown has elapsed.
package circuit

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State represents the breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by callers that fail fast on an open breaker.
// It is never retried with backoff; the gateway treats it as "try the
// next provider".
var ErrOpen = errors.New("circuit: breaker is open")

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 30 * time.Second
)

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker. Defaults to 5.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before permitting a
	// trial call. Defaults to 30s.
	Cooldown time.Duration
}

// ValidateAndPrepare fills in defaults and rejects invalid values.
func (c *Config) ValidateAndPrepare() error {
	if c.FailureThreshold < 0 {
		return errors.New("circuit: failure threshold must not be negative")
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.Cooldown < 0 {
		return errors.New("circuit: cooldown must not be negative")
	}
	if c.Cooldown == 0 {
		c.Cooldown = defaultCooldown
	}
	return nil
}

// Breaker tracks consecutive failures for a single provider and controls
// whether calls may proceed. State is process-local.
type Breaker struct {
	name string
	cfg  Config

	mu            sync.Mutex
	state         State
	failures      int
	lastFailureAt time.Time
	nextRetryAt   time.Time
	trialInFlight bool

	now func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a Breaker for the named provider.
func New(name string, cfg Config, opts ...Option) (*Breaker, error) {
	if err := cfg.ValidateAndPrepare(); err != nil {
		return nil, err
	}
	b := &Breaker{
		name:  name,
		cfg:   cfg,
		state: Closed,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Allow reports whether a call to the provider may proceed. In half-open
// state exactly one trial call is permitted at a time.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if !b.now().Before(b.nextRetryAt) {
			b.state = HalfOpen
			b.trialInFlight = true
			log.Debug().Str("provider", b.name).Msg("circuit half-open, permitting trial call")
			return true
		}
		return false
	case HalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return true
	}
}

// OnSuccess records a successful provider call.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.state = Closed
		b.failures = 0
		b.trialInFlight = false
		log.Info().Str("provider", b.name).Msg("circuit closed after successful trial")
	case Closed:
		b.failures = 0
	}
}

// OnFailure records a failed provider call and trips the breaker once the
// consecutive-failure threshold is reached. A half-open failure reopens
// the breaker and restarts the cooldown.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.lastFailureAt = now

	switch b.state {
	case HalfOpen:
		b.trialInFlight = false
		b.open(now)
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open(now)
		}
	case Open:
		// Already open; nothing to do.
	}
}

func (b *Breaker) open(now time.Time) {
	b.state = Open
	b.nextRetryAt = now.Add(b.cfg.Cooldown)
	log.Warn().
		Str("provider", b.name).
		Int("failures", b.failures).
		Time("next_retry_at", b.nextRetryAt).
		Msg("circuit opened")
}

// State returns the current state, resolving an elapsed cooldown so that
// callers observing an open breaker past its cooldown see half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && !b.now().Before(b.nextRetryAt) {
		return HalfOpen
	}
	return b.state
}

// LastFailureAt returns the time of the most recent recorded failure.
func (b *Breaker) LastFailureAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFailureAt
}
