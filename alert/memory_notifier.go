package alert

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var errMemoryNotifierClosed = errors.New("alert: memory notifier is closed")

// Handler receives a delivered event.
type Handler func(Event)

// MemoryNotifier fans events out to registered handlers in-process.
type MemoryNotifier struct {
	mu       sync.RWMutex
	closed   bool
	handlers []Handler
	channels []chan<- Event
}

// NewMemoryNotifier creates an in-memory Notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

// OnEvent registers a handler invoked synchronously for every event.
func (m *MemoryNotifier) OnEvent(h Handler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Chan registers a channel to receive events. Delivery to a full channel
// is dropped rather than blocking the ledger.
func (m *MemoryNotifier) Chan(ch chan<- Event) {
	if ch == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Notify delivers the event to every registered handler and channel.
func (m *MemoryNotifier) Notify(ctx context.Context, event Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return errMemoryNotifierClosed
	}

	for _, h := range m.handlers {
		h(event)
	}
	for _, ch := range m.channels {
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			log.Warn().
				Str("period", string(event.Period)).
				Str("type", string(event.Type)).
				Msg("alert channel full, event dropped")
		}
	}
	return nil
}

// Close marks the notifier closed. Registered channels are not closed;
// they belong to the subscribers.
func (m *MemoryNotifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.handlers = nil
	m.channels = nil
	return nil
}
