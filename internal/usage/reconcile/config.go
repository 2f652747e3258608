package reconcile

import "time"

// Config controls the aggregate reconcile worker loop.
type Config struct {
	PollInterval time.Duration
	RunTimeout   time.Duration
	// Lookback is the number of closed periods rechecked besides the current one.
	Lookback int
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 15 * time.Minute,
		RunTimeout:   2 * time.Minute,
		Lookback:     1,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.Lookback < 0 {
		c.Lookback = 0
	}
	return c
}
