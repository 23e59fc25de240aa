// Package ratelimit throttles request admission per tenant across three
// independent windows (minute, hour, day). A request must pass all three.
// Windows are fixed-window counters backed by Redis; the approximation can
// overshoot by at most one window boundary, never undercount beyond that.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

type Scope string

const (
	ScopeMinute Scope = "minute"
	ScopeHour   Scope = "hour"
	ScopeDay    Scope = "day"
)

// Decision reports an admission check. On denial, Scope names the violated
// window and RetryAfter is the time until that window's boundary. Windows are
// checked narrowest first, so the reported RetryAfter is the shortest among
// the violated windows.
type Decision struct {
	Allowed    bool
	Scope      Scope
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, tenantID string) (*Decision, error)
}

type window struct {
	scope Scope
	dur   time.Duration
	store extratelimit.Limiter
}

// RedisLimiter is a thin multi-window wrapper around
// github.com/vnmchuo/ratelimiter redis stores.
type RedisLimiter struct {
	windows []window
	now     func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, perMinute, perHour, perDay int64) *RedisLimiter {
	mk := func(limit int64, dur time.Duration) extratelimit.Limiter {
		return extratelimit.NewRedisStore(rdb,
			extratelimit.WithLimit(int(limit)),
			extratelimit.WithWindow(dur),
		)
	}
	return &RedisLimiter{
		windows: []window{
			{scope: ScopeMinute, dur: time.Minute, store: mk(perMinute, time.Minute)},
			{scope: ScopeHour, dur: time.Hour, store: mk(perHour, time.Hour)},
			{scope: ScopeDay, dur: 24 * time.Hour, store: mk(perDay, 24*time.Hour)},
		},
		now: time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, tenantID string) (*Decision, error) {
	for _, w := range l.windows {
		key := fmt.Sprintf("ratelimit:tenant:%s:%s", tenantID, w.scope)
		res, err := w.store.AllowN(ctx, key, 1)
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			return &Decision{
				Allowed:    false,
				Scope:      w.scope,
				RetryAfter: boundaryIn(l.now(), w.dur),
			}, nil
		}
	}
	return &Decision{Allowed: true}, nil
}

// boundaryIn returns the time remaining until the current fixed window rolls.
func boundaryIn(now time.Time, dur time.Duration) time.Duration {
	remaining := dur - now.Sub(now.Truncate(dur))
	if remaining <= 0 {
		remaining = dur
	}
	return remaining
}
