package clock

import (
	"testing"
	"time"
)

func TestPeriodHelpers(t *testing.T) {
	c := NewFakeClock(time.Date(2024, time.June, 17, 15, 4, 5, 0, time.UTC))

	if got := Today(c); !got.Equal(time.Date(2024, time.June, 17, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected today %v", got)
	}
	if got := MonthStart(c.Now()); !got.Equal(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected month start %v", got)
	}
	if got := PeriodLabel(c.Now()); got != "2024-06" {
		t.Fatalf("unexpected period label %q", got)
	}

	c.Advance(14 * 24 * time.Hour)
	if got := PeriodLabel(c.Now()); got != "2024-07" {
		t.Fatalf("expected rollover to 2024-07, got %q", got)
	}
}

func TestIsMonthEnd(t *testing.T) {
	cases := []struct {
		day  time.Time
		want bool
	}{
		{time.Date(2024, time.February, 28, 0, 0, 0, 0, time.UTC), false},
		{time.Date(2024, time.February, 29, 23, 0, 0, 0, time.UTC), true},
		{time.Date(2023, time.February, 28, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), true},
		{time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		if got := IsMonthEnd(tc.day); got != tc.want {
			t.Errorf("IsMonthEnd(%s) = %v, want %v", tc.day.Format(time.DateOnly), got, tc.want)
		}
	}
}

func TestFakeClockMonthMoves(t *testing.T) {
	c := NewFakeClock(time.Date(2024, time.January, 31, 2, 30, 0, 0, time.UTC))

	if got := c.AdvanceMonths(1); !got.Equal(time.Date(2024, time.February, 29, 2, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected clamp to Feb 29, got %v", got)
	}

	c.Set(time.Date(2024, time.April, 3, 18, 0, 0, 0, time.UTC))
	if got := c.AdvanceToMonthEnd(); !got.Equal(time.Date(2024, time.April, 30, 18, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected month end %v", got)
	}
	if !IsMonthEnd(c.Now()) {
		t.Fatal("clock should sit on month end")
	}
}
