package scheduler

import (
	"time"

	"github.com/smallbiznis/meterbill/internal/config"
)

// Config controls how batch invoicing is triggered and paged.
type Config struct {
	Enabled bool
	// CronSpec takes precedence over RunInterval when set.
	CronSpec     string
	RunInterval  time.Duration
	BatchSize    int
	JobTimeout   time.Duration
	UseBatchLock bool
	LockTTL      time.Duration
	LastDayOnly  bool
	// RetryAttempts bounds the same-day re-runs after a trigger that left
	// failures. Zero takes the default, negative disables retries.
	RetryAttempts int
	RetryInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		CronSpec:     "0 2 * * *",
		RunInterval:  24 * time.Hour,
		BatchSize:    100,
		JobTimeout:   30 * time.Minute,
		UseBatchLock: true,
		LockTTL:      30 * time.Minute,
		LastDayOnly:  true,

		RetryAttempts: 3,
		RetryInterval: time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	sc := cfg.Scheduler
	return Config{
		Enabled:      sc.Enabled,
		CronSpec:     sc.CronSpec,
		RunInterval:  sc.RunInterval,
		BatchSize:    sc.BatchSize,
		UseBatchLock: sc.UseBatchLock,
		LockTTL:      sc.LockTTL,
		LastDayOnly:  sc.LastDayOnly,

		RetryAttempts: sc.RetryAttempts,
		RetryInterval: sc.RetryInterval,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = c.JobTimeout
	}
	switch {
	case c.RetryAttempts == 0:
		c.RetryAttempts = defaults.RetryAttempts
	case c.RetryAttempts < 0:
		c.RetryAttempts = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaults.RetryInterval
	}
	return c
}
