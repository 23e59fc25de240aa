package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a process-local Limiter with the same fixed-window
// semantics as the Redis implementation, used in tests.
type MemoryLimiter struct {
	mu     sync.Mutex
	limits map[Scope]int64
	counts map[string]int64 // tenant/scope/window-start
	now    func() time.Time
}

func NewMemoryLimiter(perMinute, perHour, perDay int64) *MemoryLimiter {
	return &MemoryLimiter{
		limits: map[Scope]int64{
			ScopeMinute: perMinute,
			ScopeHour:   perHour,
			ScopeDay:    perDay,
		},
		counts: make(map[string]int64),
		now:    time.Now,
	}
}

// SetClock overrides the time source for tests.
func (l *MemoryLimiter) SetClock(now func() time.Time) {
	l.now = now
}

var scopeDurations = map[Scope]time.Duration{
	ScopeMinute: time.Minute,
	ScopeHour:   time.Hour,
	ScopeDay:    24 * time.Hour,
}

func (l *MemoryLimiter) Allow(ctx context.Context, tenantID string) (*Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, scope := range []Scope{ScopeMinute, ScopeHour, ScopeDay} {
		dur := scopeDurations[scope]
		key := tenantID + "/" + string(scope) + "/" + now.Truncate(dur).Format(time.RFC3339)
		if l.counts[key] >= l.limits[scope] {
			return &Decision{
				Allowed:    false,
				Scope:      scope,
				RetryAfter: boundaryIn(now, dur),
			}, nil
		}
		l.counts[key]++
	}
	return &Decision{Allowed: true}, nil
}
