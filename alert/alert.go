// Package alert delivers budget threshold alerts.
//
// Alert delivery is an explicit, typed dependency: the budget ledger is
// handed a Notifier at construction instead of publishing to an implicit
// global listener list. Two backends are provided, an in-memory fan-out
// to registered handlers and a Redis channel publisher for deployments
// where another process owns the transport (webhook, pager, log shipper).
package alert

import (
	"context"
	"time"
)

// Level classifies an alert.
type Level string

const (
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Period names the budget window an alert refers to.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// Event describes a budget threshold crossing.
type Event struct {
	Type         Level     `json:"type"`
	CurrentSpend float64   `json:"current_spend"`
	Budget       float64   `json:"budget"`
	Percentage   float64   `json:"percentage"`
	Period       Period    `json:"period"`
	Timestamp    time.Time `json:"timestamp"`
}

// Notifier delivers alert events.
type Notifier interface {
	// Notify delivers a single event. Delivery failures are the
	// notifier's to report; the caller does not retry.
	Notify(ctx context.Context, event Event) error

	// Close shuts the notifier down and releases resources.
	Close() error
}
