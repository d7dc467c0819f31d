package circuit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a controllable time source.
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

func newTestBreaker(t *testing.T, threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	b, err := New("test-provider", Config{FailureThreshold: threshold, Cooldown: cooldown}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b, clock
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(t, 3, 30*time.Second)

	for i := 0; i < 2; i++ {
		b.OnFailure()
		if !b.Allow() {
			t.Fatalf("Allow() = false after %d failures, want true below threshold", i+1)
		}
	}
	b.OnFailure()
	if b.Allow() {
		t.Fatal("Allow() = true after threshold failures, want fail-fast")
	}
	if got := b.State(); got != Open {
		t.Fatalf("State() = %v, want %v", got, Open)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(t, 3, 30*time.Second)

	b.OnFailure()
	b.OnFailure()
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()
	if !b.Allow() {
		t.Fatal("Allow() = false, want true: success should reset consecutive failure count")
	}
}

func TestBreaker_FailsFastBeforeCooldown(t *testing.T) {
	t.Parallel()
	b, clock := newTestBreaker(t, 1, 30*time.Second)

	b.OnFailure()
	clock.Advance(29 * time.Second)
	if b.Allow() {
		t.Fatal("Allow() = true before cooldown elapsed, want fail-fast")
	}
}

func TestBreaker_HalfOpenSingleTrialThenCloses(t *testing.T) {
	t.Parallel()
	b, clock := newTestBreaker(t, 1, 30*time.Second)

	b.OnFailure()
	clock.Advance(31 * time.Second)

	if !b.Allow() {
		t.Fatal("Allow() = false after cooldown, want half-open trial")
	}
	// exactly one trial is permitted
	if b.Allow() {
		t.Fatal("Allow() = true for second concurrent half-open call, want false")
	}

	b.OnSuccess()
	if got := b.State(); got != Closed {
		t.Fatalf("State() after trial success = %v, want %v", got, Closed)
	}
	if !b.Allow() {
		t.Fatal("Allow() = false after breaker closed, want true")
	}
}

func TestBreaker_HalfOpenFailureReopensWithFreshCooldown(t *testing.T) {
	t.Parallel()
	b, clock := newTestBreaker(t, 1, 30*time.Second)

	b.OnFailure()
	clock.Advance(31 * time.Second)
	if !b.Allow() {
		t.Fatal("Allow() = false after cooldown, want half-open trial")
	}

	b.OnFailure()
	if got := b.State(); got != Open {
		t.Fatalf("State() after trial failure = %v, want %v", got, Open)
	}
	clock.Advance(29 * time.Second)
	if b.Allow() {
		t.Fatal("Allow() = true, want false: cooldown should restart after trial failure")
	}
	clock.Advance(2 * time.Second)
	if !b.Allow() {
		t.Fatal("Allow() = false after restarted cooldown elapsed, want trial")
	}
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()
	cfg := Config{}
	if err := cfg.ValidateAndPrepare(); err != nil {
		t.Fatalf("ValidateAndPrepare() error = %v", err)
	}
	if cfg.FailureThreshold != defaultFailureThreshold {
		t.Errorf("FailureThreshold = %d, want %d", cfg.FailureThreshold, defaultFailureThreshold)
	}
	if cfg.Cooldown != defaultCooldown {
		t.Errorf("Cooldown = %v, want %v", cfg.Cooldown, defaultCooldown)
	}
}
