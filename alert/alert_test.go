package alert

import (
	"context"
	"testing"
	"time"
)

func testEvent(level Level) Event {
	return Event{
		Type:         level,
		CurrentSpend: 8,
		Budget:       10,
		Percentage:   80,
		Period:       PeriodDaily,
		Timestamp:    time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryNotifier_Fanout(t *testing.T) {
	t.Parallel()
	n := NewMemoryNotifier()

	var handled []Event
	n.OnEvent(func(e Event) { handled = append(handled, e) })

	ch := make(chan Event, 1)
	n.Chan(ch)

	if err := n.Notify(context.Background(), testEvent(LevelWarning)); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if len(handled) != 1 || handled[0].Type != LevelWarning {
		t.Fatalf("handler received %v, want one warning event", handled)
	}
	select {
	case e := <-ch:
		if e.Percentage != 80 {
			t.Errorf("channel event Percentage = %f, want 80", e.Percentage)
		}
	default:
		t.Fatal("channel received nothing")
	}
}

func TestMemoryNotifier_FullChannelDropsEvent(t *testing.T) {
	t.Parallel()
	n := NewMemoryNotifier()

	ch := make(chan Event) // unbuffered with no reader: always full
	n.Chan(ch)

	// delivery must not block
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := n.Notify(context.Background(), testEvent(LevelCritical)); err != nil {
			t.Errorf("Notify() error = %v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify() blocked on a full channel")
	}
}

func TestMemoryNotifier_Closed(t *testing.T) {
	t.Parallel()
	n := NewMemoryNotifier()
	if err := n.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := n.Notify(context.Background(), testEvent(LevelWarning)); err == nil {
		t.Fatal("Notify() after Close = nil, want error")
	}
}

func TestBroker_SelectsBackend(t *testing.T) {
	t.Parallel()

	received := 0
	n := New(WithHandler(func(Event) { received++ }))
	if _, ok := n.(*MemoryNotifier); !ok {
		t.Fatalf("New() without a Redis client = %T, want *MemoryNotifier", n)
	}
	if err := n.Notify(context.Background(), testEvent(LevelWarning)); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if received != 1 {
		t.Fatalf("handler invoked %d times, want 1", received)
	}
}
