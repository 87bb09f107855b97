package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
	// Degraded marks decisions made by the in-process fallback counter.
	// Per-instance counting is a weaker guarantee than the shared store,
	// traded for availability when Redis is unreachable.
	Degraded bool
}

// fixedWindowScript atomically increments the window counter, arming the
// window TTL on first increment, and returns [count, remaining_ttl_ms].
// Counts are monotonic within a window and reset only at the window boundary.
var fixedWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {current, ttl}
`)

// Limiter performs fixed-window rate limiting backed by a shared Redis
// counter, falling back to a per-instance in-process counter when the store
// is unreachable.
type Limiter struct {
	rdb *redis.Client

	mu    sync.Mutex
	local map[string]*localWindow
}

type localWindow struct {
	count   int64
	resetAt time.Time
}

// NewLimiter creates a rate limiter. A nil client means every decision is
// made by the local counter (degraded from the start).
func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{
		rdb:   rdb,
		local: make(map[string]*localWindow),
	}
}

// Check records one request against the bucket and reports the decision.
// key: the bucket identifier (user-scoped), limit: budget per window.
func (l *Limiter) Check(ctx context.Context, key string, limit int64, window time.Duration) Result {
	if l.rdb != nil {
		res, err := fixedWindowScript.Run(ctx, l.rdb, []string{"materna:rl:" + key},
			window.Milliseconds(),
		).Int64Slice()
		if err == nil && len(res) == 2 {
			return windowResult(res[0], limit, time.Duration(res[1])*time.Millisecond, false)
		}
		slog.Warn("rate limit store unreachable, using local counter", "error", err, "key", key)
	}
	return l.checkLocal(key, limit, window)
}

func (l *Limiter) checkLocal(key string, limit int64, window time.Duration) Result {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.local[key]
	if w == nil || now.After(w.resetAt) {
		w = &localWindow{resetAt: now.Add(window)}
		l.local[key] = w
	}
	w.count++

	return windowResult(w.count, limit, w.resetAt.Sub(now), true)
}

func windowResult(count, limit int64, ttl time.Duration, degraded bool) Result {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	if ttl < 0 {
		ttl = 0
	}

	r := Result{
		Allowed:   count <= limit,
		Remaining: remaining,
		Degraded:  degraded,
	}
	if !r.Allowed {
		r.RetryAfter = ttl
	}
	return r
}
