package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/serplens/lens/alert"
)

// spendEpsilon tolerates float accumulation drift in repeated small
// charges, so a cap of $10 admits exactly 1000 queries at $0.01.
const spendEpsilon = 1e-9

// Ledger tracks spend against daily and monthly caps.
type Ledger struct {
	cfg      Config
	store    Store
	notifier alert.Notifier
	now      func() time.Time
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithNotifier sets the alert notifier. Without one, threshold crossings
// are only logged.
func WithNotifier(n alert.Notifier) LedgerOption {
	return func(l *Ledger) {
		l.notifier = n
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger creates a Ledger over the given store.
func NewLedger(cfg Config, store Store, opts ...LedgerOption) (*Ledger, error) {
	if err := cfg.ValidateAndPrepare(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("budget: store is required")
	}
	l := &Ledger{
		cfg:   cfg,
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Denial explains a rejected CanSpend check: which period would be
// breached and the current/limit values.
type Denial struct {
	Period alert.Period
	Spend  float64
	Limit  float64
	Cost   float64
}

// String renders a human-readable rejection reason.
func (d *Denial) String() string {
	return fmt.Sprintf("%s budget exceeded: spent $%.2f of $%.2f, next query costs $%.2f",
		d.Period, d.Spend, d.Limit, d.Cost)
}

// CanSpend reports whether spending amount now would stay within both
// caps. When rejected, the denial names the exceeded period and the
// current/limit values. The check applies period rollover first, so the
// first call after a day or month boundary evaluates a zeroed counter.
func (l *Ledger) CanSpend(ctx context.Context, amount float64) (bool, *Denial, error) {
	now := l.now()
	w, err := l.store.Advance(ctx, dayKey(now), monthKey(now), 0)
	if err != nil {
		// Fail closed: an unreadable ledger must not let spend through.
		return false, nil, err
	}

	if w.DailySpend+amount > l.cfg.DailyBudget+spendEpsilon {
		return false, &Denial{Period: alert.PeriodDaily, Spend: w.DailySpend, Limit: l.cfg.DailyBudget, Cost: amount}, nil
	}
	if w.MonthlySpend+amount > l.cfg.MonthlyBudget+spendEpsilon {
		return false, &Denial{Period: alert.PeriodMonthly, Spend: w.MonthlySpend, Limit: l.cfg.MonthlyBudget, Cost: amount}, nil
	}
	return true, nil, nil
}

// Record adds a successful query's cost to both counters, appends an
// audit row, and emits threshold alerts. Each threshold fires at most
// once per period; the window's last-alert markers are the guard.
func (l *Ledger) Record(ctx context.Context, amount float64, provider, query string) error {
	now := l.now()
	w, err := l.store.Advance(ctx, dayKey(now), monthKey(now), amount)
	if err != nil {
		return err
	}

	if err := l.store.AppendAudit(ctx, Entry{
		ID:       uuid.NewString(),
		Query:    query,
		Provider: provider,
		Cost:     amount,
		At:       now,
	}); err != nil {
		// The spend is already counted; a failed audit row is logged,
		// not surfaced, so enforcement keeps working.
		log.Error().Err(err).Str("provider", provider).Msg("failed to append audit entry")
	}

	l.evaluateAlerts(ctx, alert.PeriodDaily, w.DailySpend, l.cfg.DailyBudget, w.DailyAlert, now)
	l.evaluateAlerts(ctx, alert.PeriodMonthly, w.MonthlySpend, l.cfg.MonthlyBudget, w.MonthlyAlert, now)
	return nil
}

// evaluateAlerts emits one alert when spend crosses a threshold not yet
// alerted for this period.
func (l *Ledger) evaluateAlerts(ctx context.Context, period alert.Period, spend, limit float64, emitted alert.Level, now time.Time) {
	fraction := spend / limit

	var level alert.Level
	switch {
	case fraction >= l.cfg.CriticalThreshold:
		level = alert.LevelCritical
	case fraction >= l.cfg.WarningThreshold:
		level = alert.LevelWarning
	default:
		return
	}

	if emitted == level || emitted == alert.LevelCritical {
		return // already alerted at this level (or higher) this period
	}

	if err := l.store.SetAlertLevel(ctx, period, level); err != nil {
		log.Error().Err(err).Str("period", string(period)).Msg("failed to persist alert level")
		return
	}

	event := alert.Event{
		Type:         level,
		CurrentSpend: spend,
		Budget:       limit,
		Percentage:   fraction * 100,
		Period:       period,
		Timestamp:    now,
	}
	log.Warn().
		Str("period", string(period)).
		Str("level", string(level)).
		Float64("spend", spend).
		Float64("budget", limit).
		Msg("budget threshold crossed")

	if l.notifier == nil {
		return
	}
	if err := l.notifier.Notify(ctx, event); err != nil {
		log.Error().Err(err).Str("period", string(period)).Msg("alert delivery failed")
	}
}

// Window returns the current window after applying rollover.
func (l *Ledger) Window(ctx context.Context) (Window, error) {
	now := l.now()
	return l.store.Advance(ctx, dayKey(now), monthKey(now), 0)
}

// Audit returns the retained per-query ledger rows, oldest first.
func (l *Ledger) Audit(ctx context.Context) ([]Entry, error) {
	return l.store.Audit(ctx, l.now().Add(-l.cfg.AuditRetention))
}

// PruneAudit removes audit rows past the retention window.
func (l *Ledger) PruneAudit(ctx context.Context) (int64, error) {
	return l.store.PruneAudit(ctx, l.now().Add(-l.cfg.AuditRetention))
}

// RunJanitor prunes expired audit rows on the given interval until ctx
// is cancelled. It is optional; PruneAudit can also be called directly.
func (l *Ledger) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("budget audit janitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("budget audit janitor stopped")
			return
		case <-ticker.C:
			removed, err := l.PruneAudit(ctx)
			if err != nil {
				log.Error().Err(err).Msg("audit prune failed")
				continue
			}
			if removed > 0 {
				log.Debug().Int64("removed", removed).Msg("pruned expired audit entries")
			}
		}
	}
}
