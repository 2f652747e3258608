package format

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	cases := map[string]string{
		"750":         "R 750.00",
		"1234567.891": "R 1,234,567.89",
		"999.999":     "R 1,000.00",
		"-12345.5":    "R -12,345.50",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatMoney("R", decimal.RequireFromString(in)), in)
	}
	assert.Equal(t, "-12.50", FormatMoney("", decimal.RequireFromString("-12.5")))
}

func TestFormatUnitPrice(t *testing.T) {
	assert.Equal(t, "R 0.0125", FormatUnitPrice("R", decimal.RequireFromString("0.0125")))
	assert.Equal(t, "R 0.50", FormatUnitPrice("R", decimal.RequireFromString("0.5")))
}

func TestFormatQuantityAndDate(t *testing.T) {
	assert.Equal(t, "500", FormatQuantity(500))
	assert.Equal(t, "12.5", FormatQuantity(12.5))
	assert.Equal(t, "-", FormatDate(time.Time{}))
	assert.Equal(t, "2024-06-30", FormatDate(time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC)))
}
