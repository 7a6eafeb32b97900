// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"math"
	"sync"
	"time"
)

const (
	bucketIdleTTL = 10 * time.Minute
	sweepInterval = time.Minute
)

type rateLimitDecision struct {
	Allowed           bool
	LimitPerMinute    int
	Remaining         int
	RetryAfterSeconds int
}

type tokenBucket struct {
	capacity        float64
	tokens          float64
	refillPerSecond float64
	lastRefill      time.Time
	lastSeen        time.Time
}

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillPerSecond)
	b.lastRefill = now
}

// inMemoryRateLimiter keeps one token bucket per client key. Buckets idle for
// bucketIdleTTL are dropped so a stream of distinct senders cannot grow the
// map without bound.
type inMemoryRateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	lastSweep time.Time
}

func newInMemoryRateLimiter() *inMemoryRateLimiter {
	return &inMemoryRateLimiter{
		buckets: make(map[string]*tokenBucket, 32),
	}
}

func (l *inMemoryRateLimiter) Allow(key string, limitPerMinute int, now time.Time) rateLimitDecision {
	if limitPerMinute <= 0 {
		limitPerMinute = 1
	}
	capacity := float64(limitPerMinute)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= sweepInterval {
		l.sweep(now)
	}

	bucket, ok := l.buckets[key]
	if !ok || bucket.capacity != capacity {
		bucket = &tokenBucket{
			capacity:        capacity,
			tokens:          capacity,
			refillPerSecond: capacity / 60.0,
			lastRefill:      now,
		}
		l.buckets[key] = bucket
	}
	bucket.refill(now)
	bucket.lastSeen = now

	if bucket.tokens >= 1 {
		bucket.tokens--
		return rateLimitDecision{
			Allowed:        true,
			LimitPerMinute: limitPerMinute,
			Remaining:      int(math.Floor(bucket.tokens)),
		}
	}

	wait := int(math.Ceil((1 - bucket.tokens) / bucket.refillPerSecond))
	return rateLimitDecision{
		LimitPerMinute:    limitPerMinute,
		Remaining:         0,
		RetryAfterSeconds: max(wait, 1),
	}
}

func (l *inMemoryRateLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > bucketIdleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}
