package budget

import (
	"time"

	"github.com/serplens/lens/alert"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Window is the current spend state against both budget periods.
// DayKey and MonthKey are the last-reset markers; when they disagree
// with the current calendar day or month the corresponding counter is
// zeroed before the operation that observed the change.
type Window struct {
	DailySpend   float64
	MonthlySpend float64

	DayKey   string // calendar day of the last daily reset
	MonthKey string // year-month of the last monthly reset

	// DailyAlert and MonthlyAlert track the highest alert level already
	// emitted in the current period, so each threshold fires once.
	DailyAlert   alert.Level
	MonthlyAlert alert.Level
}

// dayKey and monthKey format reset markers for a point in time.
func dayKey(now time.Time) string   { return now.Format(dayLayout) }
func monthKey(now time.Time) string { return now.Format(monthLayout) }
