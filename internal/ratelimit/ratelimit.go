// Package ratelimit provides a small keyed token-bucket limiter. The
// multiplexer uses a single bucket keyed by a constant string to decide
// when a peer that has already exhausted the inbound-stream cap should have
// its connection torn down (capacity/refill = disconnectThreshold).
package ratelimit

import (
	"sync"
	"time"
)

// bucket is a single token bucket, refilled continuously based on elapsed
// wall-clock time rather than on a ticker.
type bucket struct {
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

func (b *bucket) allow(now time.Time) bool {
	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens += elapsed.Seconds() * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.lastRefill = now
	}

	if b.tokens < 1.0 {
		return false
	}
	b.tokens -= 1.0
	return true
}

// KeyedLimiter manages one independent token bucket per key. All buckets
// created through a given KeyedLimiter share its capacity and refill rate.
type KeyedLimiter struct {
	mu         sync.Mutex
	capacity   int
	refillRate int
	buckets    map[string]*bucket
	now        func() time.Time
}

// New creates a limiter whose buckets hold at most capacity tokens and
// refill at refillRate tokens per second.
func New(capacity, refillRate int) *KeyedLimiter {
	return &KeyedLimiter{
		capacity:   capacity,
		refillRate: refillRate,
		buckets:    make(map[string]*bucket),
		now:        time.Now,
	}
}

// Allow consumes one token from the bucket for key, creating the bucket
// (full) on first use, and reports whether a token was available.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			capacity:   float64(l.capacity),
			refillRate: float64(l.refillRate),
			tokens:     float64(l.capacity),
			lastRefill: now,
		}
		l.buckets[key] = b
	}
	return b.allow(now)
}

// Reset discards a key's bucket so its next Allow call starts fresh with a
// full bucket.
func (l *KeyedLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}
