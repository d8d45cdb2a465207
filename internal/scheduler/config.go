package scheduler

import (
	"time"

	"github.com/smallbiznis/aurum/internal/config"
)

// Config controls the reconciliation interval and page size.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 15 * time.Minute,
		BatchSize:   50,
		JobTimeout:  5 * time.Minute,
	}
}

// ProvideConfig maps the application config onto the scheduler.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.LedgerReconcileInterval,
		BatchSize:   cfg.LedgerReconcileBatch,
	}
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
	return c
}
