package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/serplens/lens/budget"
	"github.com/serplens/lens/cache"
	"github.com/serplens/lens/circuit"
	"github.com/serplens/lens/metrics"
	"github.com/serplens/lens/ratelimit"
)

// testLimits avoids retry backoff in tests: every canned failure below
// uses a non-retryable status, so the limiter never sleeps.
func testLimits() ratelimit.Config {
	return ratelimit.Config{RequestsPerSecond: 1000, ConcurrentRequests: 4}
}

// fakeProvider returns canned results or errors without any network.
type fakeProvider struct {
	cfg ProviderConfig

	mu    sync.Mutex
	calls int
	fn    func(query string) (*SearchResults, error)
}

func (p *fakeProvider) Name() string           { return p.cfg.Name }
func (p *fakeProvider) Config() ProviderConfig { return p.cfg }

func (p *fakeProvider) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResults, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.fn(query)
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func okResults(query, provider string) *SearchResults {
	return &SearchResults{
		Query: query,
		Results: []SerpResult{
			{Position: 1, URL: "https://www.example.com/pricing", Domain: "example.com", Title: "Pricing"},
			{Position: 2, URL: "https://rival.io/", Domain: "rival.io", Title: "Rival"},
		},
		TotalResults: 2,
		Provider:     provider,
	}
}

func newFakeProvider(name string, cost float64, fn func(query string) (*SearchResults, error)) *fakeProvider {
	return &fakeProvider{
		cfg: ProviderConfig{
			Name:              name,
			BaseURL:           "https://api." + name + ".test",
			APIKey:            "test-key",
			CostPerQuery:      cost,
			RequestsPerSecond: 1000,
			Enabled:           true,
		},
		fn: fn,
	}
}

func succeeding(name string, cost float64) *fakeProvider {
	return newFakeProvider(name, cost, func(query string) (*SearchResults, error) {
		return okResults(query, name), nil
	})
}

func failing(name string, cost float64, err error) *fakeProvider {
	return newFakeProvider(name, cost, func(query string) (*SearchResults, error) {
		return nil, err
	})
}

func TestGateway_FailoverToNextProvider(t *testing.T) {
	t.Parallel()
	cheap := failing("serpapi", 0.01, &ProviderError{Provider: "serpapi", StatusCode: 402, Err: errors.New("payment required")})
	costly := succeeding("valueserp", 0.05)
	registry := metrics.NewRegistry()

	g, err := New([]Provider{costly, cheap},
		WithMetrics(registry),
		WithRateLimitConfig(testLimits()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Close()

	res, err := g.Search(context.Background(), "brand visibility tools", SearchOptions{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Provider != "valueserp" {
		t.Fatalf("res.Provider = %s, want failover to valueserp", res.Provider)
	}
	if res.Cost != 0.05 {
		t.Errorf("res.Cost = %f, want 0.05", res.Cost)
	}
	if res.Cached {
		t.Error("res.Cached = true for a live result, want false")
	}

	// cost order puts the cheap provider first despite argument order
	if cheap.callCount() == 0 {
		t.Error("cheap provider was never tried, want cost-ascending order")
	}
	snap := registry.GetSnapshot()
	if snap.Failovers != 1 {
		t.Errorf("Failovers = %d, want 1", snap.Failovers)
	}
	if snap.ProviderFailures["serpapi"] != 1 {
		t.Errorf("ProviderFailures[serpapi] = %d, want 1", snap.ProviderFailures["serpapi"])
	}
}

func TestGateway_CacheHitSkipsProviders(t *testing.T) {
	t.Parallel()
	p := succeeding("serpapi", 0.01)
	registry := metrics.NewRegistry()

	g, err := New([]Provider{p},
		WithCache(cache.NewMemoryStore(), time.Hour),
		WithMetrics(registry),
		WithRateLimitConfig(testLimits()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Close()

	ctx := context.Background()
	first, err := g.Search(ctx, "coffee subscription", SearchOptions{})
	if err != nil {
		t.Fatalf("first Search() error = %v", err)
	}
	if first.Cached {
		t.Fatal("first result Cached = true, want live")
	}

	second, err := g.Search(ctx, "Coffee   Subscription", SearchOptions{}) // normalizes to the same key
	if err != nil {
		t.Fatalf("second Search() error = %v", err)
	}
	if !second.Cached {
		t.Fatal("second result Cached = false, want cache hit")
	}
	if second.Cost != 0 {
		t.Errorf("cached result Cost = %f, want 0", second.Cost)
	}
	if got := p.callCount(); got != 1 {
		t.Errorf("provider called %d times, want 1", got)
	}
	if len(second.Results) != 2 || second.Results[0].Domain != "example.com" {
		t.Errorf("cached payload lost results: %+v", second.Results)
	}

	snap := registry.GetSnapshot()
	if snap.CacheHits != 1 || snap.CacheMisses != 1 {
		t.Errorf("cache counters = %d hits / %d misses, want 1/1", snap.CacheHits, snap.CacheMisses)
	}
}

func TestGateway_BypassCacheStillWritesThrough(t *testing.T) {
	t.Parallel()
	p := succeeding("serpapi", 0.01)
	g, err := New([]Provider{p},
		WithCache(cache.NewMemoryStore(), time.Hour),
		WithRateLimitConfig(testLimits()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Close()

	ctx := context.Background()
	if _, err := g.Search(ctx, "q", SearchOptions{}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if _, err := g.Search(ctx, "q", SearchOptions{BypassCache: true}); err != nil {
		t.Fatalf("bypass Search() error = %v", err)
	}
	if got := p.callCount(); got != 2 {
		t.Fatalf("provider called %d times, want 2 (bypass forces a live call)", got)
	}

	res, err := g.Search(ctx, "q", SearchOptions{})
	if err != nil {
		t.Fatalf("third Search() error = %v", err)
	}
	if !res.Cached {
		t.Error("result after bypass not cached, want the bypass call written through")
	}
}

func TestGateway_BudgetExhausted(t *testing.T) {
	t.Parallel()
	ledger, err := budget.NewLedger(budget.Config{DailyBudget: 0.05, MonthlyBudget: 1}, budget.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewLedger() error = %v", err)
	}
	p := succeeding("serpapi", 0.05)
	registry := metrics.NewRegistry()

	g, err := New([]Provider{p},
		WithLedger(ledger),
		WithMetrics(registry),
		WithRateLimitConfig(testLimits()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Close()

	ctx := context.Background()
	if _, err := g.Search(ctx, "first", SearchOptions{}); err != nil {
		t.Fatalf("first Search() error = %v", err)
	}

	_, err = g.Search(ctx, "second", SearchOptions{})
	var bErr *BudgetExceededError
	if !errors.As(err, &bErr) {
		t.Fatalf("Search() error = %v, want *BudgetExceededError", err)
	}
	if bErr.Limit != 0.05 {
		t.Errorf("BudgetExceededError.Limit = %f, want 0.05", bErr.Limit)
	}
	if got := p.callCount(); got != 1 {
		t.Errorf("provider called %d times, want 1 (no call when over budget)", got)
	}
	if snap := registry.GetSnapshot(); snap.BudgetRejections != 1 {
		t.Errorf("BudgetRejections = %d, want 1", snap.BudgetRejections)
	}
}

func TestGateway_OpenBreakerSkipsProvider(t *testing.T) {
	t.Parallel()
	flaky := failing("serpapi", 0.01, &ProviderError{Provider: "serpapi", StatusCode: 401, Err: errors.New("bad key")})
	backup := succeeding("valueserp", 0.05)
	registry := metrics.NewRegistry()

	g, err := New([]Provider{flaky, backup},
		WithMetrics(registry),
		WithCircuitConfig(circuit.Config{FailureThreshold: 1, Cooldown: time.Hour}),
		WithRateLimitConfig(testLimits()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Close()

	ctx := context.Background()
	if _, err := g.Search(ctx, "first", SearchOptions{}); err != nil {
		t.Fatalf("first Search() error = %v", err)
	}
	if state, ok := g.BreakerState("serpapi"); !ok || state != circuit.Open {
		t.Fatalf("BreakerState(serpapi) = %v, %v, want Open", state, ok)
	}

	callsBefore := flaky.callCount()
	if _, err := g.Search(ctx, "second", SearchOptions{}); err != nil {
		t.Fatalf("second Search() error = %v", err)
	}
	if got := flaky.callCount(); got != callsBefore {
		t.Errorf("open breaker still let %d calls through", got-callsBefore)
	}
	if snap := registry.GetSnapshot(); snap.CircuitOpens != 1 {
		t.Errorf("CircuitOpens = %d, want 1", snap.CircuitOpens)
	}
}

func TestGateway_AllProvidersExhausted(t *testing.T) {
	t.Parallel()
	a := failing("serpapi", 0.01, &ProviderError{Provider: "serpapi", StatusCode: 400, Err: errors.New("bad request")})
	b := failing("valueserp", 0.05, &ProviderError{Provider: "valueserp", StatusCode: 403, Err: errors.New("forbidden")})

	g, err := New([]Provider{a, b}, WithRateLimitConfig(testLimits()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Close()

	_, err = g.Search(context.Background(), "doomed query", SearchOptions{})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Search() error = %v, want *ExhaustedError", err)
	}
	if exhausted.Query != "doomed query" {
		t.Errorf("ExhaustedError.Query = %q, want the original query", exhausted.Query)
	}
	if len(exhausted.Failures) != 2 {
		t.Fatalf("Failures has %d entries, want 2: %v", len(exhausted.Failures), exhausted.Failures)
	}
	for _, name := range []string{"serpapi", "valueserp"} {
		if exhausted.Failures[name] == "" {
			t.Errorf("no failure reason recorded for %s", name)
		}
	}
}

func TestGateway_PinnedProvider(t *testing.T) {
	t.Parallel()
	cheap := succeeding("serpapi", 0.01)
	pinnedTo := succeeding("valueserp", 0.05)

	g, err := New([]Provider{cheap, pinnedTo}, WithRateLimitConfig(testLimits()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Close()

	res, err := g.Search(context.Background(), "q", SearchOptions{Provider: "valueserp"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Provider != "valueserp" {
		t.Fatalf("res.Provider = %s, want the pinned provider", res.Provider)
	}
	if cheap.callCount() != 0 {
		t.Error("cheaper provider was called despite the pin")
	}

	_, err = g.Search(context.Background(), "q", SearchOptions{Provider: "nonexistent"})
	if !errors.Is(err, ErrNoProviders) {
		t.Fatalf("Search() with unknown pin error = %v, want ErrNoProviders", err)
	}
}

func TestGateway_DisabledProvidersExcluded(t *testing.T) {
	t.Parallel()
	disabled := succeeding("serpapi", 0.01)
	disabled.cfg.Enabled = false
	active := succeeding("valueserp", 0.05)

	g, err := New([]Provider{disabled, active}, WithRateLimitConfig(testLimits()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Close()

	res, err := g.Search(context.Background(), "q", SearchOptions{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Provider != "valueserp" {
		t.Fatalf("res.Provider = %s, want the enabled provider", res.Provider)
	}
	if disabled.callCount() != 0 {
		t.Error("disabled provider was called")
	}

	_, err = New([]Provider{disabled})
	if !errors.Is(err, ErrNoProviders) {
		t.Fatalf("New() with only disabled providers error = %v, want ErrNoProviders", err)
	}
}

func TestGateway_ResultMetadata(t *testing.T) {
	t.Parallel()
	p := succeeding("serpapi", 0.01)
	g, err := New([]Provider{p}, WithRateLimitConfig(testLimits()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Close()

	res, err := g.Search(context.Background(), "q", SearchOptions{Priority: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Metadata == nil {
		t.Fatal("res.Metadata = nil, want request metadata")
	}
	if id, ok := res.Metadata["request_id"].(string); !ok || id == "" {
		t.Errorf("Metadata[request_id] = %v, want a generated id", res.Metadata["request_id"])
	}
	attempted, ok := res.Metadata["attempted_providers"].([]string)
	if !ok || len(attempted) != 1 || attempted[0] != "serpapi" {
		t.Errorf("Metadata[attempted_providers] = %v, want [serpapi]", res.Metadata["attempted_providers"])
	}
}

func TestDomainOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want string
	}{
		{"https://www.example.com/pricing", "example.com"},
		{"http://Example.COM", "example.com"},
		{"https://blog.example.com:8443/post", "blog.example.com"},
		{"example.com/path", "example.com"},
		{"www.example.com", "example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DomainOf(tt.raw); got != tt.want {
			t.Errorf("DomainOf(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
