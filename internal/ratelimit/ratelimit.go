// Package ratelimit is an in-memory token-bucket limiter keyed by client.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Limiter gives every key Burst tokens that refill continuously at
// Burst per Window.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	burst   int
	window  time.Duration
	now     func() time.Time
}

// New returns a limiter allowing burst requests per window for each key.
func New(burst int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		burst:   burst,
		window:  window,
		now:     time.Now,
	}
}

// Allow consumes one token for key. It reports false, together with the
// time until the next token is available, when the bucket is empty.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{tokens: float64(l.burst - 1), lastSeen: now}
		return true, 0
	}

	rate := float64(l.burst) / l.window.Seconds()
	b.tokens = min(float64(l.burst), b.tokens+now.Sub(b.lastSeen).Seconds()*rate)
	b.lastSeen = now

	if b.tokens < 1 {
		wait := time.Duration((1 - b.tokens) / rate * float64(time.Second))
		return false, wait
	}
	b.tokens--
	return true, 0
}

// Len is the number of keys currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run evicts buckets idle for two windows, every interval, until ctx is
// done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict()
		}
	}
}

func (l *Limiter) evict() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
