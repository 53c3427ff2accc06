package scheduler

import (
	"time"

	"github.com/smallbiznis/listingboost/internal/config"
)

const (
	JobPromotionExpiry  = "promotion_expiry"
	JobDisplayExpiry    = "display_expiry"
	JobFreeQuotaReset   = "free_quota_reset"
	JobMembershipExpiry = "membership_expiry"
)

// Config controls sweep cadence and batch sizes.
type Config struct {
	RunInterval       time.Duration
	BatchSize         int
	JobTimeout        time.Duration
	PromotionInterval time.Duration
	DisplayInterval   time.Duration
	QuotaInterval     time.Duration
	EnabledJobs       []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		BatchSize:         500,
		JobTimeout:        2 * time.Minute,
		PromotionInterval: 6 * time.Hour,
		DisplayInterval:   24 * time.Hour,
		QuotaInterval:     24 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:       cfg.Scheduler.RunInterval,
		BatchSize:         cfg.Scheduler.BatchSize,
		PromotionInterval: cfg.Scheduler.PromotionInterval,
		DisplayInterval:   cfg.Scheduler.DisplayInterval,
		QuotaInterval:     cfg.Scheduler.QuotaInterval,
		EnabledJobs:       cfg.Scheduler.EnabledJobs,
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
	if c.PromotionInterval <= 0 {
		c.PromotionInterval = defaults.PromotionInterval
	}
	if c.DisplayInterval <= 0 {
		c.DisplayInterval = defaults.DisplayInterval
	}
	if c.QuotaInterval <= 0 {
		c.QuotaInterval = defaults.QuotaInterval
	}
	return c
}
