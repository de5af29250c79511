// Package ratelimit throttles abuse-prone auth endpoints. Registration and
// password-reset emails are cheap to request and expensive to send, so both
// sit behind per-address token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a token bucket limiter for a single key.
type TokenBucket struct {
	capacity   int
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a bucket allowing a burst of capacity requests and
// a sustained refillRate requests per second.
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow consumes one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = min(float64(tb.capacity), tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Reset refills the bucket to capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tokens = float64(tb.capacity)
	tb.lastRefill = time.Now()
}

// KeyedLimiter manages one bucket per key (typically a client IP). Inactive
// buckets are dropped after ttl.
type KeyedLimiter struct {
	buckets    map[string]*TokenBucket
	capacity   int
	refillRate float64
	ttl        time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
}

// NewKeyedLimiter creates a per-key limiter. ttl of zero keeps buckets
// forever.
func NewKeyedLimiter(capacity int, refillRate float64, ttl time.Duration) *KeyedLimiter {
	l := &KeyedLimiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   capacity,
		refillRate: refillRate,
		ttl:        ttl,
		stop:       make(chan struct{}),
	}
	if ttl > 0 {
		go l.cleanup()
	}
	return l
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (l *KeyedLimiter) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

// Allow consumes a token from key's bucket, creating it on first use.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = NewTokenBucket(l.capacity, l.refillRate)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	return bucket.Allow()
}

// Reset refills key's bucket.
func (l *KeyedLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bucket, ok := l.buckets[key]; ok {
		bucket.Reset()
	}
}

func (l *KeyedLimiter) cleanup() {
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for key, bucket := range l.buckets {
				bucket.mu.Lock()
				idle := now.Sub(bucket.lastRefill)
				bucket.mu.Unlock()
				if idle > l.ttl {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
