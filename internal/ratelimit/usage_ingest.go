package ratelimit

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/meterbill/internal/config"
)

const ingestKeyPrefix = "meterbill:ingest:"

// UsageIngestLimiter throttles usage recording per user and, when a tenant
// rate is configured, per tenant. A nil limiter allows everything.
type UsageIngestLimiter struct {
	bucket      *TokenBucket
	userRate    float64
	userBurst   int
	tenantRate  float64
	tenantBurst int
}

func NewUsageIngestLimiter(cfg config.Config, client *redis.Client) (*UsageIngestLimiter, error) {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if rl.UsageIngestRate <= 0 || rl.UsageIngestBurst <= 0 {
		return nil, ErrInvalidLimiterRate
	}
	if (rl.TenantIngestRate > 0) != (rl.TenantIngestBurst > 0) {
		return nil, ErrInvalidLimiterRate
	}
	return &UsageIngestLimiter{
		bucket:      NewTokenBucket(client),
		userRate:    rl.UsageIngestRate,
		userBurst:   rl.UsageIngestBurst,
		tenantRate:  rl.TenantIngestRate,
		tenantBurst: rl.TenantIngestBurst,
	}, nil
}

func (l *UsageIngestLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *UsageIngestLimiter) AllowUser(ctx context.Context, tenantID, userID snowflake.ID) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	tenant := ingestKeyPrefix + tenantID.String()
	buckets := []Bucket{{
		Key:   tenant + ":" + userID.String(),
		Scope: "user",
		Rate:  l.userRate,
		Burst: l.userBurst,
	}}
	if l.tenantRate > 0 {
		buckets = append(buckets, Bucket{Key: tenant, Scope: "tenant", Rate: l.tenantRate, Burst: l.tenantBurst})
	}
	return l.bucket.Allow(ctx, buckets...)
}
