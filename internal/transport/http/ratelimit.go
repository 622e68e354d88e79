package http

import (
	"sync"
	"time"
)

// rateLimiter is a per-connection token bucket refilled at limit events per
// minute. A nil limiter allows everything.
type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	perSecond float64
	last      time.Time
	now       func() time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		return nil
	}
	return &rateLimiter{
		tokens:    float64(limit),
		capacity:  float64(limit),
		perSecond: float64(limit) / time.Minute.Seconds(),
		last:      time.Now(),
		now:       time.Now,
	}
}

func (r *rateLimiter) allow() bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if elapsed := now.Sub(r.last).Seconds(); elapsed > 0 {
		r.tokens += elapsed * r.perSecond
		if r.tokens > r.capacity {
			r.tokens = r.capacity
		}
	}
	r.last = now

	if r.tokens < 1 {
		return false
	}
	r.tokens--
	return true
}
