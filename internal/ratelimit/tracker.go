package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces requests to one target. A token bucket refilled at
// MaxRequests per Window spaces requests out; a fixed window counter caps
// non-blocking Allow calls. A nil *Limiter never blocks.
type Limiter struct {
	limit Limit
	now   func() time.Time
	pacer *rate.Limiter

	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// NewLimiter returns a Limiter for the given limit, or nil when unlimited.
func NewLimiter(limit Limit) *Limiter {
	if !limit.HasLimit() {
		return nil
	}
	every := rate.Every(limit.Window / time.Duration(limit.MaxRequests))
	return &Limiter{
		limit: limit,
		now:   time.Now,
		pacer: rate.NewLimiter(every, limit.MaxRequests),
	}
}

// snapshot returns the count for the current window, resetting the window
// when it has expired. Caller holds mu.
func (l *Limiter) snapshot(now time.Time) int {
	if now.Sub(l.windowStart) >= l.limit.Window {
		l.count = 0
		l.windowStart = now
	}
	return l.count
}

// Allow records a request if the current window has budget left.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if Check(l.snapshot(now), l.limit).Exceeded {
		return false
	}
	if !l.pacer.AllowN(now, 1) {
		return false
	}
	l.count++
	return true
}

// Wait blocks until the pacer grants a request or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	res := l.pacer.Reserve()
	if delay := res.Delay(); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Cancel()
			return ctx.Err()
		case <-timer.C:
		}
	}

	l.mu.Lock()
	l.snapshot(l.now())
	l.count++
	l.mu.Unlock()
	return nil
}
