package cache

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	payload := []byte(`{"query":"best crm software","results":[{"position":1,"url":"https://example.com"}]}`)
	if err := store.Set(ctx, "k1", payload, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, hit, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !hit {
		t.Fatal("Get() hit = false, want true before TTL expiry")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Get() payload = %q, want byte-identical %q", got, payload)
	}
}

func TestMemoryStore_ExpiredOnRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore(WithClock(clock.Now))

	if err := store.Set(ctx, "k1", []byte("payload"), time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	clock.Advance(59 * time.Minute)
	if _, hit, _ := store.Get(ctx, "k1"); !hit {
		t.Fatal("Get() hit = false before expiry, want true")
	}

	clock.Advance(2 * time.Minute)
	if _, hit, _ := store.Get(ctx, "k1"); hit {
		t.Fatal("Get() hit = true past TTL, want miss")
	}
}

func TestMemoryStore_Stats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	// highly compressible payload
	payload := []byte(strings.Repeat("serp result row ", 256))
	if err := store.Set(ctx, "k1", payload, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	store.Get(ctx, "k1")
	store.Get(ctx, "missing")

	stats := store.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("stats = %d hits / %d misses, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.HitRate() != 0.5 {
		t.Errorf("HitRate() = %f, want 0.5", stats.HitRate())
	}
	if stats.CompressionRatio() <= 1 {
		t.Errorf("CompressionRatio() = %f, want > 1 for repetitive payload", stats.CompressionRatio())
	}
}

func TestKey_NormalizesQueryAndOptionOrder(t *testing.T) {
	t.Parallel()

	a := Key("  Best   CRM Software ", map[string]string{"location": "austin", "device": "desktop"})
	b := Key("best crm software", map[string]string{"device": "desktop", "location": "austin"})
	if a != b {
		t.Fatalf("keys differ for semantically identical requests: %q vs %q", a, b)
	}

	c := Key("best crm software", map[string]string{"device": "mobile", "location": "austin"})
	if a == c {
		t.Fatal("keys equal for different device option, want distinct")
	}

	d := Key("worst crm software", map[string]string{"device": "desktop", "location": "austin"})
	if a == d {
		t.Fatal("keys equal for different queries, want distinct")
	}
}

func TestKey_IgnoresEmptyOptions(t *testing.T) {
	t.Parallel()
	a := Key("q", map[string]string{"location": ""})
	b := Key("q", map[string]string{})
	if a != b {
		t.Fatalf("empty option changed the key: %q vs %q", a, b)
	}
}

func TestNormalizeQuery(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"Best CRM", "best crm"},
		{"  spaced\tout \n query ", "spaced out query"},
		{"already normal", "already normal"},
	}
	for _, tt := range tests {
		if got := NormalizeQuery(tt.in); got != tt.want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompressRoundTrip(t *testing.T) {
	t.Parallel()
	payload := []byte("some serp payload with unicode: éü☃")
	compressed, err := compress(payload)
	if err != nil {
		t.Fatalf("compress() error = %v", err)
	}
	got, err := decompress(compressed)
	if err != nil {
		t.Fatalf("decompress() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip = %q, want %q", got, payload)
	}
}
