package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/serplens/lens/budget"
	"github.com/serplens/lens/cache"
	"github.com/serplens/lens/circuit"
	"github.com/serplens/lens/lock"
	"github.com/serplens/lens/meta"
	"github.com/serplens/lens/metrics"
	"github.com/serplens/lens/ratelimit"
)

// singleFlightWait bounds how long a search waits for another instance's
// in-flight identical query before proceeding on its own.
const singleFlightWait = 15 * time.Second

// Gateway orchestrates searches across providers.
type Gateway struct {
	order    []Provider // enabled providers, ascending cost
	byName   map[string]Provider
	breakers map[string]*circuit.Breaker
	limiters map[string]*ratelimit.Limiter

	cache      cache.Store
	cacheTTL   time.Duration
	ledger     *budget.Ledger
	registry   *metrics.Registry
	lockClient redis.Cmdable
}

// Option configures a Gateway.
type Option func(*gatewayOptions)

type gatewayOptions struct {
	cache       cache.Store
	cacheTTL    time.Duration
	ledger      *budget.Ledger
	registry    *metrics.Registry
	lockClient  redis.Cmdable
	circuitCfg  circuit.Config
	limiterCfg  ratelimit.Config
	bucketStore ratelimit.BucketStore
}

// WithCache enables read-through/write-through caching with the given
// TTL. A non-positive TTL uses the cache package default.
func WithCache(store cache.Store, ttl time.Duration) Option {
	return func(o *gatewayOptions) {
		o.cache = store
		o.cacheTTL = ttl
	}
}

// WithLedger enables budget enforcement.
func WithLedger(ledger *budget.Ledger) Option {
	return func(o *gatewayOptions) {
		o.ledger = ledger
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(registry *metrics.Registry) Option {
	return func(o *gatewayOptions) {
		o.registry = registry
	}
}

// WithLockClient enables cross-instance single-flight for cache misses
// using a short Redis lock per cache key.
func WithLockClient(client redis.Cmdable) Option {
	return func(o *gatewayOptions) {
		o.lockClient = client
	}
}

// WithCircuitConfig overrides breaker thresholds for all providers.
func WithCircuitConfig(cfg circuit.Config) Option {
	return func(o *gatewayOptions) {
		o.circuitCfg = cfg
	}
}

// WithRateLimitConfig sets the base limiter config; each provider's
// RequestsPerSecond from its ProviderConfig takes precedence.
func WithRateLimitConfig(cfg ratelimit.Config) Option {
	return func(o *gatewayOptions) {
		o.limiterCfg = cfg
	}
}

// WithBucketStore shares token bucket state across instances, e.g. via
// ratelimit.NewRedisBucketStore.
func WithBucketStore(store ratelimit.BucketStore) Option {
	return func(o *gatewayOptions) {
		o.bucketStore = store
	}
}

// New creates a Gateway over the given providers. At least one enabled
// provider is required.
func New(providers []Provider, opts ...Option) (*Gateway, error) {
	o := &gatewayOptions{}
	for _, opt := range opts {
		opt(o)
	}

	g := &Gateway{
		byName:     make(map[string]Provider),
		breakers:   make(map[string]*circuit.Breaker),
		limiters:   make(map[string]*ratelimit.Limiter),
		cache:      o.cache,
		cacheTTL:   o.cacheTTL,
		ledger:     o.ledger,
		registry:   o.registry,
		lockClient: o.lockClient,
	}

	for _, p := range providers {
		cfg := p.Config()
		if !cfg.Enabled {
			log.Info().Str("provider", cfg.Name).Msg("provider disabled, skipping")
			continue
		}
		if _, dup := g.byName[cfg.Name]; dup {
			return nil, fmt.Errorf("gateway: duplicate provider %s", cfg.Name)
		}

		breaker, err := circuit.New(cfg.Name, o.circuitCfg)
		if err != nil {
			return nil, err
		}

		limiterCfg := o.limiterCfg
		if cfg.RequestsPerSecond > 0 {
			limiterCfg.RequestsPerSecond = cfg.RequestsPerSecond
		}
		if limiterCfg.RequestsPerSecond == 0 {
			limiterCfg.RequestsPerSecond = 1
		}
		limiterOpts := []ratelimit.Option{ratelimit.WithOnRetry(g.registry.Retry)}
		if o.bucketStore != nil {
			limiterOpts = append(limiterOpts, ratelimit.WithStore(o.bucketStore))
		}
		limiter, err := ratelimit.New(cfg.Name, limiterCfg, limiterOpts...)
		if err != nil {
			return nil, err
		}

		g.byName[cfg.Name] = p
		g.breakers[cfg.Name] = breaker
		g.limiters[cfg.Name] = limiter
		g.order = append(g.order, p)
	}

	if len(g.order) == 0 {
		return nil, ErrNoProviders
	}

	// Cheapest first; priority rank breaks cost ties.
	sort.SliceStable(g.order, func(i, j int) bool {
		a, b := g.order[i].Config(), g.order[j].Config()
		if a.CostPerQuery != b.CostPerQuery {
			return a.CostPerQuery < b.CostPerQuery
		}
		return a.PriorityRank < b.PriorityRank
	})
	return g, nil
}

// Search executes one query with caching, budget enforcement, rate
// limiting, and failover.
func (g *Gateway) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResults, error) {
	opts.normalize()

	md := meta.New()
	md.Set(meta.KeyRequestID, uuid.NewString())
	md.Set(meta.KeyPriority, opts.Priority)
	ctx = md.WithContext(ctx)

	key := cache.Key(query, opts.cacheParams())

	if res := g.cacheLookup(ctx, key, opts); res != nil {
		res.Metadata = md.Values()
		g.registry.SearchServed()
		return res, nil
	}

	// Coordinate identical concurrent misses across instances; losers
	// wait for the winner's write-through and re-check the cache.
	var flight *lock.Locker
	if g.lockClient != nil && g.cache != nil && !opts.BypassCache {
		flight = lock.New(g.lockClient, key+":flight")
		if err := flight.TryLock(ctx); err != nil {
			flight = nil
			if errors.Is(err, lock.ErrNotAcquired) {
				if res := g.awaitFlight(ctx, key, opts); res != nil {
					res.Metadata = md.Values()
					g.registry.SearchServed()
					return res, nil
				}
			}
		}
	}
	if flight != nil {
		defer func() {
			if err := flight.Unlock(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, lock.ErrNotHeld) {
				log.Warn().Err(err).Str("key", flight.Key()).Msg("single-flight unlock failed")
			}
		}()
	}

	candidates, err := g.candidates(opts.Provider)
	if err != nil {
		return nil, err
	}

	failures := make(map[string]string, len(candidates))
	var firstDenial *budget.Denial
	budgetRejections := 0

	for _, p := range candidates {
		cfg := p.Config()

		// Pre-flight budget check; an unaffordable provider does not
		// doom costlier candidates.
		if g.ledger != nil {
			allowed, denial, lerr := g.ledger.CanSpend(ctx, cfg.CostPerQuery)
			if lerr != nil {
				failures[cfg.Name] = lerr.Error()
				continue
			}
			if !allowed {
				g.registry.BudgetRejection()
				budgetRejections++
				if firstDenial == nil {
					firstDenial = denial
				}
				failures[cfg.Name] = denial.String()
				log.Warn().Str("provider", cfg.Name).Str("reason", denial.String()).Msg("provider skipped by budget")
				continue
			}
		}

		breaker := g.breakers[cfg.Name]
		if !breaker.Allow() {
			// Fail fast, no backoff retry; move to the next provider.
			g.registry.CircuitOpen()
			failures[cfg.Name] = circuit.ErrOpen.Error()
			continue
		}

		md.AppendString(meta.KeyAttemptedProviders, cfg.Name)
		g.registry.ProviderCall(cfg.Name)

		value, cerr := g.limiters[cfg.Name].Execute(ctx, func(ctx context.Context) (any, error) {
			return p.Search(ctx, query, opts)
		}, opts.Priority)
		if cerr != nil {
			breaker.OnFailure()
			g.registry.ProviderFailure(cfg.Name)
			g.registry.Failover()
			failures[cfg.Name] = cerr.Error()
			log.Warn().Err(cerr).Str("provider", cfg.Name).Str("query", query).Msg("provider failed, trying next")
			continue
		}

		res, ok := value.(*SearchResults)
		if !ok || res == nil {
			breaker.OnFailure()
			failures[cfg.Name] = "empty provider response"
			continue
		}

		breaker.OnSuccess()
		res.Provider = cfg.Name
		res.Cost = cfg.CostPerQuery
		res.Cached = false

		if g.ledger != nil {
			if rerr := g.ledger.Record(ctx, cfg.CostPerQuery, cfg.Name, query); rerr != nil {
				// Spend tracking failed after the call already happened;
				// surface loudly but do not fail the search.
				log.Error().Err(rerr).Str("provider", cfg.Name).Msg("failed to record spend")
			}
		}
		g.writeThrough(ctx, key, res)

		res.Metadata = md.Values()
		g.registry.SearchServed()
		return res, nil
	}

	if budgetRejections == len(candidates) && firstDenial != nil {
		return nil, &BudgetExceededError{
			Period: firstDenial.Period,
			Spend:  firstDenial.Spend,
			Limit:  firstDenial.Limit,
			Cost:   firstDenial.Cost,
		}
	}
	return nil, &ExhaustedError{Query: query, Failures: failures}
}

// cacheLookup returns a cached result or nil. Cache errors degrade to a
// miss; an unavailable cache must not fail the search.
func (g *Gateway) cacheLookup(ctx context.Context, key string, opts SearchOptions) *SearchResults {
	if g.cache == nil || opts.BypassCache {
		return nil
	}
	payload, hit, err := g.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache lookup failed, treating as miss")
		g.registry.CacheMiss()
		return nil
	}
	if !hit {
		g.registry.CacheMiss()
		return nil
	}

	var res SearchResults
	if err := json.Unmarshal(payload, &res); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("undecodable cache payload, treating as miss")
		g.registry.CacheMiss()
		return nil
	}

	g.registry.CacheHit()
	res.Cached = true
	res.Cost = 0
	return &res
}

// awaitFlight waits for a concurrent identical search elsewhere to
// finish, then re-checks the cache. Returns nil when no result appeared.
func (g *Gateway) awaitFlight(ctx context.Context, key string, opts SearchOptions) *SearchResults {
	waitCtx, cancel := context.WithTimeout(ctx, singleFlightWait)
	defer cancel()

	flight := lock.New(g.lockClient, key+":flight")
	if err := flight.Wait(waitCtx); err != nil {
		return nil
	}
	return g.cacheLookup(ctx, key, opts)
}

// writeThrough stores a fresh result in the cache.
func (g *Gateway) writeThrough(ctx context.Context, key string, res *SearchResults) {
	if g.cache == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to encode result for cache")
		return
	}
	if err := g.cache.Set(ctx, key, payload, g.cacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write-through failed")
	}
}

// candidates returns enabled providers in ascending cost order. A pinned
// provider yields a single-element list.
func (g *Gateway) candidates(pinned string) ([]Provider, error) {
	if pinned != "" {
		p, ok := g.byName[pinned]
		if !ok {
			return nil, fmt.Errorf("%w: provider %q not configured", ErrNoProviders, pinned)
		}
		return []Provider{p}, nil
	}
	return g.order, nil
}

// BreakerState reports a provider's circuit state, for introspection.
func (g *Gateway) BreakerState(provider string) (circuit.State, bool) {
	b, ok := g.breakers[provider]
	if !ok {
		return circuit.Closed, false
	}
	return b.State(), true
}

// LimiterStats reports a provider's rate limiter activity.
func (g *Gateway) LimiterStats(provider string) (ratelimit.Stats, bool) {
	l, ok := g.limiters[provider]
	if !ok {
		return ratelimit.Stats{}, false
	}
	return l.GetStats(), true
}

// Drain blocks until every provider's queue and in-flight work are
// empty, for graceful shutdown.
func (g *Gateway) Drain(ctx context.Context) error {
	for name, l := range g.limiters {
		if err := l.WaitForEmpty(ctx); err != nil {
			return fmt.Errorf("gateway: drain of %s interrupted: %w", name, err)
		}
	}
	return nil
}

// Close rejects all pending work and releases limiter resources.
func (g *Gateway) Close() error {
	for _, l := range g.limiters {
		l.Close()
	}
	return nil
}
