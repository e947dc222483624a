package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrBucketUnavailable = errors.New("rate limiter not configured")
	ErrInvalidBucket     = errors.New("invalid rate limit bucket")
)

// The bucket state lives in one hash: tokens left and the refill clock in
// ms. Redis TIME keeps every replica on the same clock. The script returns
// whether the token was granted, whole tokens left, and the wait in ms
// until the next token when denied.
var takeTokenScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + (now - last) * rate / 1000)
end

local granted = 0
local wait = 0
if tokens >= 1 then
  granted = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {granted, math.floor(tokens), wait}
`)

// Limit is a refill rate in tokens per second and a bucket size.
type Limit struct {
	Rate  float64
	Burst int
}

func (l Limit) valid() bool { return l.Rate > 0 && l.Burst > 0 }

// idleTTL is how long an untouched bucket survives: twice the time to
// refill from empty, and never under a second.
func (l Limit) idleTTL() time.Duration {
	seconds := math.Max(1, math.Ceil(2*float64(l.Burst)/l.Rate))
	return time.Duration(seconds) * time.Second
}

// Result is the outcome of one admission check, shaped for the
// X-RateLimit-* response headers.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// TokenBucket is a redis-backed bucket shared by every API replica.
type TokenBucket struct {
	client *redis.Client
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client}
}

func (b *TokenBucket) Allow(ctx context.Context, key string, limit Limit) (Result, error) {
	if b == nil || b.client == nil {
		return Result{}, ErrBucketUnavailable
	}
	if key == "" || !limit.valid() {
		return Result{}, ErrInvalidBucket
	}

	reply, err := takeTokenScript.Run(ctx, b.client, []string{key},
		limit.Rate, limit.Burst, limit.idleTTL().Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(reply) != 3 {
		return Result{}, errors.New("unexpected rate limit script reply")
	}

	return Result{
		Allowed:    reply[0] == 1,
		Limit:      limit.Burst,
		Remaining:  int(reply[1]),
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}
