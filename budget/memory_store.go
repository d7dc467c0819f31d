package budget

import (
	"context"
	"sync"
	"time"

	"github.com/serplens/lens/alert"
)

// memoryStore implements Store with in-process state.
type memoryStore struct {
	mu     sync.Mutex
	window Window
	audit  []Entry
}

// NewMemoryStore creates an in-memory budget store.
func NewMemoryStore() Store {
	return &memoryStore{}
}

// Advance implements Store for memory storage.
func (s *memoryStore) Advance(ctx context.Context, dayKey, monthKey string, amount float64) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.window.DayKey != dayKey {
		s.window.DayKey = dayKey
		s.window.DailySpend = 0
		s.window.DailyAlert = ""
	}
	if s.window.MonthKey != monthKey {
		s.window.MonthKey = monthKey
		s.window.MonthlySpend = 0
		s.window.MonthlyAlert = ""
	}

	s.window.DailySpend += amount
	s.window.MonthlySpend += amount
	return s.window, nil
}

// SetAlertLevel implements Store for memory storage.
func (s *memoryStore) SetAlertLevel(ctx context.Context, period alert.Period, level alert.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch period {
	case alert.PeriodDaily:
		s.window.DailyAlert = level
	case alert.PeriodMonthly:
		s.window.MonthlyAlert = level
	}
	return nil
}

// AppendAudit implements Store for memory storage.
func (s *memoryStore) AppendAudit(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

// PruneAudit implements Store for memory storage.
func (s *memoryStore) PruneAudit(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.audit[:0]
	var removed int64
	for _, e := range s.audit {
		if e.At.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.audit = kept
	return removed, nil
}

// Audit implements Store for memory storage.
func (s *memoryStore) Audit(ctx context.Context, since time.Time) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.audit))
	for _, e := range s.audit {
		if e.At.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
