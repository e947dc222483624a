package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/upkeep/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const keyPublicStatus = "upkeep:ratelimit:status:"

// PublicStatusLimiter throttles the unauthenticated status endpoint per
// caller. It uses the shared redis bucket when available and a process-local
// limiter otherwise, or when redis errors.
type PublicStatusLimiter struct {
	bucket *TokenBucket
	cfg    *config.MaintenanceConfigHolder
	log    *zap.Logger

	mu    sync.Mutex
	local map[string]*localEntry
	sweep time.Time
	nowFn func() time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const localIdleTTL = 10 * time.Minute

func NewPublicStatusLimiter(client *redis.Client, cfg *config.MaintenanceConfigHolder, log *zap.Logger) *PublicStatusLimiter {
	return &PublicStatusLimiter{
		bucket: NewTokenBucket(client),
		cfg:    cfg,
		log:    log.Named("ratelimit.public_status"),
		local:  make(map[string]*localEntry),
		nowFn:  time.Now,
	}
}

func (l *PublicStatusLimiter) Allow(ctx context.Context, caller string) Result {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		caller = "unknown"
	}
	limits := l.cfg.Get().PublicStatus

	if l.bucket != nil {
		res, err := l.bucket.Allow(ctx, keyPublicStatus+caller, Limit{Rate: limits.RatePerSecond, Burst: limits.Burst})
		if err == nil {
			return res
		}
		l.log.Warn("redis rate limit failed, using local limiter", zap.Error(err))
	}
	return l.allowLocal(caller, limits.RatePerSecond, limits.Burst)
}

func (l *PublicStatusLimiter) allowLocal(caller string, perSecond float64, burst int) Result {
	now := l.nowFn()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.sweep) > localIdleTTL {
		for key, entry := range l.local {
			if now.Sub(entry.lastSeen) > localIdleTTL {
				delete(l.local, key)
			}
		}
		l.sweep = now
	}

	entry, ok := l.local[caller]
	if !ok || entry.limiter.Limit() != rate.Limit(perSecond) || entry.limiter.Burst() != burst {
		entry = &localEntry{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
		l.local[caller] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return Result{Limit: burst}
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return Result{Limit: burst, RetryAfter: delay}
	}
	return Result{
		Allowed:   true,
		Limit:     burst,
		Remaining: int(entry.limiter.TokensAt(now)),
	}
}
