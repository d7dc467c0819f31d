// Package budget enforces daily and monthly spend caps for SERP queries.
//
// The ledger performs a pre-flight CanSpend check before any network
// call and records spend afterwards; a query whose cost would breach a
// cap is rejected up front, never refunded. Period rollover is stateless
// and idempotent: every operation compares the current calendar day and
// month against stored reset markers, so no scheduled job is needed.
package budget

import (
	"errors"
	"fmt"
	"time"
)

const (
	defaultWarningThreshold  = 0.8
	defaultCriticalThreshold = 0.95
	defaultAuditRetention    = 7 * 24 * time.Hour
)

// Config holds budget caps and alerting thresholds.
type Config struct {
	// DailyBudget and MonthlyBudget are hard caps in dollars. Both must
	// be positive.
	DailyBudget   float64
	MonthlyBudget float64

	// WarningThreshold and CriticalThreshold are fractions of a budget
	// (0..1] at which alerts are emitted, at most once per level per
	// period. Defaults: 0.8 and 0.95.
	WarningThreshold  float64
	CriticalThreshold float64

	// AuditRetention bounds how long per-query ledger entries are kept.
	// Defaults to 7 days.
	AuditRetention time.Duration
}

// ValidateAndPrepare validates the config and fills in defaults.
func (c *Config) ValidateAndPrepare() error {
	if c.DailyBudget <= 0 {
		return fmt.Errorf("budget: daily budget must be positive, got %f", c.DailyBudget)
	}
	if c.MonthlyBudget <= 0 {
		return fmt.Errorf("budget: monthly budget must be positive, got %f", c.MonthlyBudget)
	}
	if c.DailyBudget > c.MonthlyBudget {
		return fmt.Errorf("budget: daily budget %f exceeds monthly budget %f", c.DailyBudget, c.MonthlyBudget)
	}

	if c.WarningThreshold == 0 {
		c.WarningThreshold = defaultWarningThreshold
	}
	if c.CriticalThreshold == 0 {
		c.CriticalThreshold = defaultCriticalThreshold
	}
	if c.WarningThreshold < 0 || c.WarningThreshold > 1 {
		return fmt.Errorf("budget: warning threshold must be in (0,1], got %f", c.WarningThreshold)
	}
	if c.CriticalThreshold < 0 || c.CriticalThreshold > 1 {
		return fmt.Errorf("budget: critical threshold must be in (0,1], got %f", c.CriticalThreshold)
	}
	if c.WarningThreshold >= c.CriticalThreshold {
		return errors.New("budget: warning threshold must be below critical threshold")
	}

	if c.AuditRetention < 0 {
		return errors.New("budget: audit retention must not be negative")
	}
	if c.AuditRetention == 0 {
		c.AuditRetention = defaultAuditRetention
	}
	return nil
}
