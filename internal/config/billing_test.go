package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smallbiznis/meterbill/internal/invoice/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidateBillingConfig(t *testing.T) {
	assert.NoError(t, ValidateBillingConfig(DefaultBillingConfig()))

	cases := map[string]func(*BillingConfig){
		"zero threshold":     func(c *BillingConfig) { c.Anomaly.Threshold = 0 },
		"zero window":        func(c *BillingConfig) { c.Anomaly.WindowDays = 0 },
		"single observation": func(c *BillingConfig) { c.Anomaly.MinObservations = 1 },
		"negative due days":  func(c *BillingConfig) { c.Invoice.DueDays = -1 },
		"number without seq": func(c *BillingConfig) { c.Invoice.NumberTemplate = "INV-{YYYY}" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultBillingConfig()
			mutate(&cfg)
			assert.Error(t, ValidateBillingConfig(cfg))
		})
	}
}

func TestBillingConfigHolderNilFallsBackToDefaults(t *testing.T) {
	var holder *BillingConfigHolder
	assert.Equal(t, DefaultBillingConfig(), holder.Get())

	custom := DefaultBillingConfig()
	custom.Anomaly.Threshold = 3.5
	assert.Equal(t, 3.5, NewStaticBillingConfig(custom).Get().Anomaly.Threshold)
}

func TestEmailConfigEnabled(t *testing.T) {
	cfg := EmailConfig{SMTPHost: "smtp.local", SMTPPort: 587, SMTPUsername: "u", SMTPPassword: "p"}
	assert.False(t, cfg.Enabled())
	cfg.SMTPFrom = "billing@example.com"
	assert.True(t, cfg.Enabled())
}

func TestLoadBillingConfigWithoutFileUsesDefaults(t *testing.T) {
	holder, err := loadBillingConfig(zap.NewNop(), newBillingViper(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, DefaultBillingConfig(), holder.Get())
}

func TestBillingConfigReloadKeepsLastValid(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "billing.yml")
	write := func(body string) {
		require.NoError(t, os.WriteFile(file, []byte(body), 0o600))
	}

	holder := NewStaticBillingConfig(DefaultBillingConfig())
	v := newBillingViper(dir)

	write("billing:\n  anomaly:\n    threshold: 3.5\n  invoice:\n    dueDays: 14\n")
	require.NoError(t, v.ReadInConfig())
	holder.reload(v, file)
	assert.Equal(t, 3.5, holder.Get().Anomaly.Threshold)
	assert.Equal(t, 14, holder.Get().Invoice.DueDays)
	assert.Equal(t, "R", holder.Get().Invoice.CurrencySymbol)

	write("billing:\n  invoice:\n    numberTemplate: INV-{YYYY}\n")
	require.NoError(t, v.ReadInConfig())
	holder.reload(v, file)
	assert.Equal(t, 3.5, holder.Get().Anomaly.Threshold)
	assert.Equal(t, format.DefaultInvoiceNumberTemplate, holder.Get().Invoice.NumberTemplate)
}

func TestLoadBillingConfigPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	body := "billing:\n  anomaly:\n    threshold: 4\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yml"), []byte(body), 0o600))

	holder, err := loadBillingConfig(zap.NewNop(), newBillingViper(dir))
	require.NoError(t, err)

	want := DefaultBillingConfig()
	want.Anomaly.Threshold = 4
	assert.Equal(t, want, holder.Get())
}
