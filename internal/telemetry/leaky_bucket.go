package telemetry

import (
	"sync"
	"time"
)

// LeakyBucket is a token-bucket rate limiter, kept verbatim in shape
// from the teacher's pkg/logs.LeakyBucket — it is already fully generic
// over what it rate-limits.
type LeakyBucket struct {
	capacity   int64
	tokens     int64
	refillRate int64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewLeakyBucket creates a bucket with the given capacity and per-second
// refill rate.
func NewLeakyBucket(capacity, refillRate int64) *LeakyBucket {
	return &LeakyBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow consumes n tokens if available, reporting whether it could.
func (lb *LeakyBucket) Allow(tokens int64) bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.refill()

	if lb.tokens >= tokens {
		lb.tokens -= tokens
		return true
	}
	return false
}

func (lb *LeakyBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(lb.lastRefill)
	tokensToAdd := int64(elapsed.Seconds() * float64(lb.refillRate))

	if tokensToAdd > 0 {
		if lb.capacity < lb.tokens+tokensToAdd {
			lb.tokens = lb.capacity
		} else {
			lb.tokens += tokensToAdd
		}
		lb.lastRefill = now
	}
}

// WaitTime reports how long to wait until n tokens become available.
func (lb *LeakyBucket) WaitTime(tokens int64) time.Duration {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.refill()

	if lb.tokens >= tokens {
		return 0
	}

	tokensNeeded := tokens - lb.tokens
	secondsToWait := float64(tokensNeeded) / float64(lb.refillRate)
	return time.Duration(secondsToWait * float64(time.Second))
}
