package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// takeScript refills every bucket in KEYS and takes one token from each, but
// only when all of them have a token. ARGV holds rate and burst per key
// followed by the shared idle TTL in milliseconds. It returns the allowed
// flag, the index of the tightest bucket, its remaining tokens and the retry
// delay in milliseconds.
var takeScript = redis.NewScript(`
local n = #KEYS
local ttl = tonumber(ARGV[2 * n + 1])
local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local tokens = {}
local tightest = 1
local allowed = 1
local retry = 0
for i = 1, n do
  local rate = tonumber(ARGV[2 * i - 1])
  local burst = tonumber(ARGV[2 * i])
  local state = redis.call("HMGET", KEYS[i], "tokens", "ts")
  local level = tonumber(state[1])
  if level == nil then
    level = burst
  else
    local elapsed = math.max(0, now - tonumber(state[2]))
    level = math.min(burst, level + elapsed / 1000 * rate)
  end
  tokens[i] = level
  if level < 1 then
    allowed = 0
    local wait = math.ceil((1 - level) / rate * 1000)
    if wait > retry then
      retry = wait
      tightest = i
    end
  elseif allowed == 1 and level < tokens[tightest] then
    tightest = i
  end
end

for i = 1, n do
  if allowed == 1 then
    tokens[i] = tokens[i] - 1
  end
  redis.call("HSET", KEYS[i], "tokens", tokens[i], "ts", now)
  redis.call("PEXPIRE", KEYS[i], ttl)
end

return {allowed, tightest - 1, math.floor(tokens[tightest]), retry}
`)

var (
	ErrLimiterNotConfigured = errors.New("rate_limiter_not_configured")
	ErrInvalidLimiterKey    = errors.New("invalid_rate_limiter_key")
	ErrInvalidLimiterRate   = errors.New("invalid_rate_limiter_rate")
)

// Bucket refills at Rate tokens per second up to Burst. Scope names the
// bucket in results, for example "user" or "tenant".
type Bucket struct {
	Key   string
	Scope string
	Rate  float64
	Burst int
}

// Result describes the tightest bucket of a take.
type Result struct {
	Allowed    bool
	Scope      string
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type TokenBucket struct {
	client *redis.Client
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client}
}

// Allow takes one token from every bucket atomically. Nothing is taken when
// any bucket is empty, so a tenant-wide bucket is not drained by requests a
// per-user bucket rejects.
func (t *TokenBucket) Allow(ctx context.Context, buckets ...Bucket) (Result, error) {
	if t == nil || t.client == nil {
		return Result{}, ErrLimiterNotConfigured
	}
	if len(buckets) == 0 {
		return Result{}, ErrInvalidLimiterKey
	}

	keys := make([]string, len(buckets))
	args := make([]any, 0, 2*len(buckets)+1)
	var ttl time.Duration
	for i, b := range buckets {
		if b.Key == "" {
			return Result{}, ErrInvalidLimiterKey
		}
		if b.Rate <= 0 || b.Burst <= 0 {
			return Result{}, ErrInvalidLimiterRate
		}
		keys[i] = b.Key
		args = append(args, b.Rate, b.Burst)
		ttl = max(ttl, idleTTL(b))
	}
	args = append(args, ttl.Milliseconds())

	reply, err := takeScript.Run(ctx, t.client, keys, args...).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(reply) != 4 || reply[1] < 0 || int(reply[1]) >= len(buckets) {
		return Result{}, fmt.Errorf("rate limit script: unexpected reply %v", reply)
	}

	tightest := buckets[reply[1]]
	return Result{
		Allowed:    reply[0] == 1,
		Scope:      tightest.Scope,
		Limit:      tightest.Burst,
		Remaining:  int(max(reply[2], 0)),
		RetryAfter: time.Duration(reply[3]) * time.Millisecond,
	}, nil
}

// idleTTL keeps a bucket for twice its full refill time after the last take.
func idleTTL(b Bucket) time.Duration {
	return time.Duration(max(1, math.Ceil(2*float64(b.Burst)/b.Rate))) * time.Second
}
