package bot

import (
	"sync"
	"time"
)

// sweepThreshold is the number of tracked users above which idle buckets
// are dropped.
const sweepThreshold = 1024

// RateLimiter is a token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastTime time.Time
	now      func() time.Time
}

func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 5
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 10
	}
	rl := &RateLimiter{
		tokens: float64(maxBurst),
		max:    float64(maxBurst),
		rate:   ratePerMinute / 60.0,
		now:    time.Now,
	}
	rl.lastTime = rl.now()
	return rl
}

// Allow takes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

// full reports whether the bucket has refilled completely.
func (rl *RateLimiter) full() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()
	return rl.tokens >= rl.max
}

func (rl *RateLimiter) refill() {
	now := rl.now()
	rl.tokens += now.Sub(rl.lastTime).Seconds() * rl.rate
	if rl.tokens > rl.max {
		rl.tokens = rl.max
	}
	rl.lastTime = now
}

// Throttle keeps one token bucket per user. The pipeline consults it
// only for valid links, so guidance replies never use a token.
type Throttle struct {
	burst     int
	perMinute float64

	mu       sync.Mutex
	limiters map[int64]*RateLimiter
	now      func() time.Time
}

func NewThrottle(burst, linksPerMinute int) *Throttle {
	return &Throttle{
		burst:     burst,
		perMinute: float64(linksPerMinute),
		limiters:  make(map[int64]*RateLimiter),
		now:       time.Now,
	}
}

// Allow takes a token from userID's bucket.
func (t *Throttle) Allow(userID int64) bool {
	return t.limiter(userID).Allow()
}

func (t *Throttle) limiter(userID int64) *RateLimiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rl, ok := t.limiters[userID]; ok {
		return rl
	}
	if len(t.limiters) >= sweepThreshold {
		for id, rl := range t.limiters {
			if rl.full() {
				delete(t.limiters, id)
			}
		}
	}

	rl := NewRateLimiter(t.burst, t.perMinute)
	rl.now = t.now
	rl.lastTime = t.now()
	t.limiters[userID] = rl
	return rl
}

// tracked returns the number of users with a live bucket.
func (t *Throttle) tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}
