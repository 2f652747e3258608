package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerSingleHolder(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "batch:2024-06", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("meterbill:lock:batch:2024-06"))

	_, err = locker.Acquire(ctx, "batch:2024-06", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("meterbill:lock:batch:2024-06"))

	_, err = locker.Acquire(ctx, "batch:2024-06", time.Minute)
	require.NoError(t, err)
}

func TestLeaseExtendAndExpiry(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "k", 2*time.Second)
	require.NoError(t, err)

	mr.FastForward(time.Second)
	require.NoError(t, lease.Extend(ctx, 5*time.Second))
	mr.FastForward(3 * time.Second)
	_, err = locker.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrLockHeld, "extended lease still held")

	mr.FastForward(3 * time.Second)
	other, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, lease.Extend(ctx, time.Minute), ErrLockLost)
	// A stale lease must not release the new holder's lock.
	require.NoError(t, lease.Release(ctx))
	assert.True(t, mr.Exists("meterbill:lock:k"))
	require.NoError(t, other.Release(ctx))
}

func TestLockerValidation(t *testing.T) {
	var nilLocker *Locker
	_, err := nilLocker.Acquire(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)

	var nilLease *Lease
	assert.NoError(t, nilLease.Release(context.Background()))

	_, client := newTestClient(t)
	locker := NewLocker(client)
	_, err = locker.Acquire(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, ErrInvalidLockKey)
	_, err = locker.Acquire(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrInvalidLockTTL)
}

func TestTokenBucketExhaustsBurst(t *testing.T) {
	_, client := newTestClient(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()
	b := Bucket{Key: "bucket", Scope: "user", Rate: 0.001, Burst: 3}

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, b)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := bucket.Allow(ctx, b)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "user", res.Scope)
	assert.Positive(t, res.RetryAfter)
}

func TestTokenBucketTakesFromAllOrNone(t *testing.T) {
	mr, client := newTestClient(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()
	user := Bucket{Key: "u", Scope: "user", Rate: 0.001, Burst: 1}
	tenant := Bucket{Key: "t", Scope: "tenant", Rate: 0.001, Burst: 5}

	res, err := bucket.Allow(ctx, user, tenant)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	assert.Equal(t, "user", res.Scope, "user bucket has fewer tokens left")

	res, err = bucket.Allow(ctx, user, tenant)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "user", res.Scope)

	tokens, err := strconv.ParseFloat(mr.HGet("t", "tokens"), 64)
	require.NoError(t, err)
	assert.InDelta(t, 4, tokens, 0.01, "a rejected take leaves the tenant bucket alone")
}

func TestTokenBucketValidation(t *testing.T) {
	var nilBucket *TokenBucket
	_, err := nilBucket.Allow(context.Background(), Bucket{Key: "k", Rate: 1, Burst: 1})
	assert.ErrorIs(t, err, ErrLimiterNotConfigured)

	_, client := newTestClient(t)
	bucket := NewTokenBucket(client)
	_, err = bucket.Allow(context.Background())
	assert.ErrorIs(t, err, ErrInvalidLimiterKey)
	_, err = bucket.Allow(context.Background(), Bucket{Key: "k", Rate: 0, Burst: 1})
	assert.ErrorIs(t, err, ErrInvalidLimiterRate)
}

func TestUsageIngestLimiter(t *testing.T) {
	ctx := context.Background()

	disabled, err := NewUsageIngestLimiter(config.Config{}, nil)
	require.NoError(t, err)
	res, err := disabled.AllowUser(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	_, err = NewUsageIngestLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true, UsageIngestRate: 1, UsageIngestBurst: 1}}, nil)
	assert.Error(t, err)

	_, client := newTestClient(t)
	limiter, err := NewUsageIngestLimiter(config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, UsageIngestRate: 0.001, UsageIngestBurst: 1},
	}, client)
	require.NoError(t, err)

	res, err = limiter.AllowUser(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.AllowUser(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = limiter.AllowUser(ctx, 1, 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "buckets are per user")
}

func TestUsageIngestLimiterTenantBucket(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)

	_, err := NewUsageIngestLimiter(config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, UsageIngestRate: 1, UsageIngestBurst: 1, TenantIngestRate: 1},
	}, client)
	assert.ErrorIs(t, err, ErrInvalidLimiterRate)

	limiter, err := NewUsageIngestLimiter(config.Config{
		RateLimit: config.RateLimitConfig{
			Enabled:           true,
			UsageIngestRate:   0.001,
			UsageIngestBurst:  5,
			TenantIngestRate:  0.001,
			TenantIngestBurst: 2,
		},
	}, client)
	require.NoError(t, err)

	for _, user := range []snowflake.ID{2, 3} {
		res, err := limiter.AllowUser(ctx, 1, user)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := limiter.AllowUser(ctx, 1, 4)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "tenant", res.Scope)

	res, err = limiter.AllowUser(ctx, 9, 4)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "other tenants have their own bucket")
}
