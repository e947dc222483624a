package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrInvalidLease = errors.New("invalid_lease")
	ErrLeaseLost    = errors.New("lease_lost")
)

// Both scripts act only while the caller still owns the key.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// Locker hands out single-holder leases in redis so a periodic job runs on
// one replica at a time. A nil Locker grants every lease locally.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Lease is held until Release or until its TTL lapses.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// Acquire returns a lease on key, or ok=false when another holder has it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	if key == "" || ttl <= 0 {
		return nil, false, ErrInvalidLease
	}
	lease := &Lease{locker: l, key: key, token: uuid.NewString()}
	if l == nil || l.client == nil {
		return lease, true, nil
	}
	ok, err := l.client.SetNX(ctx, key, lease.token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return lease, true, nil
}

// Extend pushes the expiry out by ttl. ErrLeaseLost means the lease expired
// and someone else may now hold the key.
func (le *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	if le == nil || le.locker == nil || le.locker.client == nil {
		return nil
	}
	if ttl <= 0 {
		return ErrInvalidLease
	}
	n, err := extendScript.Run(ctx, le.locker.client, []string{le.key}, le.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.locker == nil || le.locker.client == nil {
		return nil
	}
	return releaseScript.Run(ctx, le.locker.client, []string{le.key}, le.token).Err()
}
