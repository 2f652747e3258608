package clock

import (
	"sync"
	"time"
)

// FakeClock is a settable Clock for tests. It always reports UTC.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// AdvanceToMonthEnd moves to the last day of the current month, keeping the
// time of day. Billing runs that only fire on month end use it.
func (c *FakeClock) AdvanceToMonthEnd() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	clockTime := c.now.Sub(DateOf(c.now))
	c.now = MonthEnd(c.now).Add(clockTime)
	return c.now
}

// AdvanceMonths moves to the same day and time n months later, clamping to
// the month end so Jan 31 + 1 lands on the last day of February.
func (c *FakeClock) AdvanceMonths(n int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	clockTime := c.now.Sub(DateOf(c.now))
	target := MonthStart(c.now).AddDate(0, n, 0)
	day := c.now.Day()
	if last := MonthEnd(target).Day(); day > last {
		day = last
	}
	c.now = target.AddDate(0, 0, day-1).Add(clockTime)
	return c.now
}
