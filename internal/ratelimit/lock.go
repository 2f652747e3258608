package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "meterbill:lock:"

// Both scripts act only while ARGV[1] still owns the key.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

var (
	ErrLockNotConfigured = errors.New("lock_not_configured")
	ErrInvalidLockKey    = errors.New("invalid_lock_key")
	ErrInvalidLockTTL    = errors.New("invalid_lock_ttl")
	ErrLockHeld          = errors.New("lock_held")
	ErrLockLost          = errors.New("lock_lost")
)

// Locker hands out single-holder leases on redis keys. Batch invoicing uses
// it so two schedulers never bill the same period side by side.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Lease is a held lock. It expires on its own if the holder dies.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire takes the lock on name for ttl, or returns ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockNotConfigured
	}
	if name == "" {
		return nil, ErrInvalidLockKey
	}
	if ttl <= 0 {
		return nil, ErrInvalidLockTTL
	}

	lease := &Lease{client: l.client, key: lockKeyPrefix + name, token: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return lease, nil
}

// Extend pushes the expiry out to ttl from now. ErrLockLost means the lease
// expired and someone else may hold the lock.
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	if l == nil {
		return nil
	}
	if ttl <= 0 {
		return ErrInvalidLockTTL
	}
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
