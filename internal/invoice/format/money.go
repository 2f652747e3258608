package format

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatMoney renders two decimals with thousands separators, e.g. "R 1,250.50".
func FormatMoney(symbol string, amount decimal.Decimal) string {
	return withSymbol(symbol, grouped(amount.StringFixed(2)))
}

// FormatUnitPrice keeps up to four decimals so sub-cent overage rates survive.
func FormatUnitPrice(symbol string, amount decimal.Decimal) string {
	if amount.Equal(amount.Round(2)) {
		return FormatMoney(symbol, amount)
	}
	return withSymbol(symbol, amount.Round(4).String())
}

func FormatQuantity(value float64) string {
	out := strconv.FormatFloat(value, 'f', 2, 64)
	if strings.Contains(out, ".") {
		out = strings.TrimRight(strings.TrimRight(out, "0"), ".")
	}
	return out
}

func FormatDate(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Format("2006-01-02")
}

func withSymbol(symbol, value string) string {
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		return symbol + " " + value
	}
	return value
}

// grouped inserts thousands separators into a fixed-point number.
func grouped(fixed string) string {
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, hasFrac := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteString("." + frac)
	}
	return sign + b.String()
}
