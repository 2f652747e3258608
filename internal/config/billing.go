package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/meterbill/internal/invoice/format"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig holds runtime-tunable billing parameters loaded from billing.yml.
type BillingConfig struct {
	Anomaly AnomalyConfig `mapstructure:"anomaly"`
	Invoice InvoiceConfig `mapstructure:"invoice"`
}

type AnomalyConfig struct {
	Threshold       float64 `mapstructure:"threshold"`
	WindowDays      int     `mapstructure:"windowDays"`
	MinObservations int     `mapstructure:"minObservations"`
}

type InvoiceConfig struct {
	DueDays        int    `mapstructure:"dueDays"`
	CurrencySymbol string `mapstructure:"currencySymbol"`
	IssuerName     string `mapstructure:"issuerName"`
	NumberTemplate string `mapstructure:"numberTemplate"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Anomaly: AnomalyConfig{
			Threshold:       2.0,
			WindowDays:      7,
			MinObservations: 3,
		},
		Invoice: InvoiceConfig{
			DueDays:        30,
			CurrencySymbol: "R",
			IssuerName:     "Billing Team",
			NumberTemplate: format.DefaultInvoiceNumberTemplate,
		},
	}
}

// BillingConfigHolder serves the latest valid billing.yml. A reload that
// fails validation keeps the previous values.
type BillingConfigHolder struct {
	current atomic.Pointer[BillingConfig]
	log     *zap.Logger
}

// NewStaticBillingConfig returns a holder that never reloads.
func NewStaticBillingConfig(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{log: zap.NewNop()}
	holder.current.Store(&cfg)
	return holder
}

var billingSearchPaths = []string{"/var/lib/meterbill/config", "/etc/meterbill", "."}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	return loadBillingConfig(log, newBillingViper(billingSearchPaths...))
}

func newBillingViper(paths ...string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("billing")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("METERBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultBillingConfig()
	for key, value := range map[string]any{
		"billing.anomaly.threshold":       d.Anomaly.Threshold,
		"billing.anomaly.windowDays":      d.Anomaly.WindowDays,
		"billing.anomaly.minObservations": d.Anomaly.MinObservations,
		"billing.invoice.dueDays":         d.Invoice.DueDays,
		"billing.invoice.currencySymbol":  d.Invoice.CurrencySymbol,
		"billing.invoice.issuerName":      d.Invoice.IssuerName,
		"billing.invoice.numberTemplate":  d.Invoice.NumberTemplate,
	} {
		v.SetDefault(key, value)
	}
	return v
}

func loadBillingConfig(log *zap.Logger, v *viper.Viper) (*BillingConfigHolder, error) {
	holder := &BillingConfigHolder{log: log.Named("config.billing")}

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fromFile = false
	}
	cfg, err := decodeBilling(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(&cfg)
	if !fromFile {
		holder.log.Info("billing.config.defaults")
		return holder, nil
	}

	holder.log.Info("billing.config.loaded", zap.String("file", v.ConfigFileUsed()))
	v.OnConfigChange(func(e fsnotify.Event) { holder.reload(v, e.Name) })
	v.WatchConfig()
	return holder, nil
}

func (h *BillingConfigHolder) reload(v *viper.Viper, file string) {
	cfg, err := decodeBilling(v)
	if err != nil {
		h.log.Warn("billing.config.reload_rejected", zap.String("file", file), zap.Error(err))
		return
	}
	h.current.Store(&cfg)
	h.log.Info("billing.config.reloaded", zap.String("file", file))
}

// decodeBilling goes through Unmarshal rather than UnmarshalKey so that keys
// missing from a partial file fall back to their defaults.
func decodeBilling(v *viper.Viper) (BillingConfig, error) {
	wrapper := struct {
		Billing BillingConfig `mapstructure:"billing"`
	}{Billing: DefaultBillingConfig()}
	if err := v.Unmarshal(&wrapper); err != nil {
		return BillingConfig{}, err
	}
	return wrapper.Billing, ValidateBillingConfig(wrapper.Billing)
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	if cfg := h.current.Load(); cfg != nil {
		return *cfg
	}
	return DefaultBillingConfig()
}

func ValidateBillingConfig(cfg BillingConfig) error {
	if cfg.Anomaly.Threshold <= 0 {
		return errors.New("billing.anomaly.threshold must be positive")
	}
	if cfg.Anomaly.WindowDays <= 0 {
		return errors.New("billing.anomaly.windowDays must be positive")
	}
	if cfg.Anomaly.MinObservations < 2 {
		return errors.New("billing.anomaly.minObservations must be at least 2")
	}
	if cfg.Invoice.DueDays < 0 {
		return errors.New("billing.invoice.dueDays cannot be negative")
	}
	if err := format.CheckNumberTemplate(cfg.Invoice.NumberTemplate); err != nil {
		return fmt.Errorf("billing.invoice.numberTemplate: %w", err)
	}
	return nil
}
