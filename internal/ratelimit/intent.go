package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/listingboost/internal/config"
	"go.uber.org/zap"
)

const keyIntentUser = "listingboost:intent:user:%s"

// IntentLimiter throttles payment-intent creation per buyer. A nil limiter
// allows everything.
type IntentLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewIntentLimiter(cfg config.Config, bucket *TokenBucket, log *zap.Logger) *IntentLimiter {
	limitCfg := cfg.IntentRateLimit
	if !limitCfg.Enabled || bucket == nil {
		return nil
	}
	if limitCfg.Rate <= 0 || limitCfg.Burst <= 0 {
		log.Warn("intent rate limit disabled: rate and burst must be positive",
			zap.Float64("rate", limitCfg.Rate),
			zap.Int("burst", limitCfg.Burst),
		)
		return nil
	}
	return &IntentLimiter{
		bucket: bucket,
		rate:   limitCfg.Rate,
		burst:  limitCfg.Burst,
		log:    log.Named("ratelimit.intent"),
	}
}

func (l *IntentLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open on Redis errors.
func (l *IntentLimiter) Allow(ctx context.Context, userID snowflake.ID) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyIntentUser, userID.String()), l.rate, l.burst)
	if err != nil {
		l.log.Warn("intent rate limit check failed", zap.String("user_id", userID.String()), zap.Error(err))
		return &Result{Allowed: true}, nil
	}
	return res, nil
}
