package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/meterbill/internal/clock"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// optionalID reads a snowflake id. Blank input is nil and ok; only a
// malformed or zero id reports !ok.
func optionalID(value string) (*snowflake.ID, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	id, err := snowflake.ParseString(value)
	if err != nil || id == 0 {
		return nil, false
	}
	return &id, true
}

func parseID(field, value string) (snowflake.ID, error) {
	id, ok := optionalID(value)
	switch {
	case !ok:
		return 0, newValidationError(field, "invalid_"+field, "invalid id")
	case id == nil:
		return 0, newValidationError(field, "required", field+" is required")
	}
	return *id, nil
}

// parseBound reads one edge of a time range as RFC3339 or a bare date. A
// bare date used as the upper edge covers the whole day.
func parseBound(field, value string, upper bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	day, err := time.Parse(dayLayout, value)
	if err != nil {
		return nil, newValidationError(field, "invalid_"+field, "expected RFC3339 or YYYY-MM-DD")
	}
	if upper {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}

// parseDate reads a required whole day.
func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, newValidationError(field, "required", field+" is required")
	}
	day, err := time.Parse(dayLayout, value)
	if err != nil {
		return time.Time{}, newValidationError(field, "invalid_"+field, "expected YYYY-MM-DD")
	}
	return day, nil
}

// parseMonth reads a billing period and returns its first and last instant.
func parseMonth(field, value string) (time.Time, time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, time.Time{}, newValidationError(field, "required", field+" is required")
	}
	month, err := time.Parse(monthLayout, value)
	if err != nil {
		return time.Time{}, time.Time{}, newValidationError(field, "invalid_"+field, "expected YYYY-MM")
	}
	return clock.MonthStart(month), clock.MonthEnd(month).Add(24*time.Hour - time.Nanosecond), nil
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, newValidationError(field, "invalid_"+field, "expected a decimal amount")
	}
	return amount, nil
}
