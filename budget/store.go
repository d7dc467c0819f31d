package budget

import (
	"context"
	"time"

	"github.com/serplens/lens/alert"
)

// Entry is one per-query ledger row, retained for a bounded window for
// audit and debugging.
type Entry struct {
	ID       string    `json:"id"`
	Query    string    `json:"query"`
	Provider string    `json:"provider"`
	Cost     float64   `json:"cost"`
	At       time.Time `json:"at"`
}

// Store persists the budget window and the audit ledger. The memory
// implementation serves a single instance; the Redis implementation lets
// multiple instances coordinate spend against shared caps.
type Store interface {
	// Advance applies period rollover for the given day and month
	// markers, adds amount (which may be zero) to both spend counters
	// atomically, and returns the resulting window.
	Advance(ctx context.Context, dayKey, monthKey string, amount float64) (Window, error)

	// SetAlertLevel records the highest alert level emitted for the
	// period, so each threshold fires at most once per period.
	SetAlertLevel(ctx context.Context, period alert.Period, level alert.Level) error

	// AppendAudit appends one ledger row.
	AppendAudit(ctx context.Context, e Entry) error

	// PruneAudit removes ledger rows older than the cutoff and reports
	// how many were removed.
	PruneAudit(ctx context.Context, olderThan time.Time) (int64, error)

	// Audit returns ledger rows at or after since, oldest first.
	Audit(ctx context.Context, since time.Time) ([]Entry, error)
}
