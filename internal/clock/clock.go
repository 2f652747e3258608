package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so billing periods can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func NewSystemClock() Clock {
	return systemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)

// Today truncates t to midnight UTC.
func Today(c Clock) time.Time {
	return DateOf(c.Now())
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first day of t's month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodLabel formats t as a YYYY-MM billing period key.
func PeriodLabel(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MonthEnd returns the last calendar day of t's month in UTC.
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, -1)
}

// IsMonthEnd reports whether t falls on the last day of its month.
func IsMonthEnd(t time.Time) bool {
	return DateOf(t).Equal(MonthEnd(t))
}
