package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastAccess time.Time
}

// MemoryLimiter is a token bucket per key held in process memory.
//
// Buckets refill at rate tokens per second up to burst. Keys idle for longer
// than staleAfter are evicted by a background goroutine; Close stops it.
type MemoryLimiter struct {
	rate       float64
	burst      float64
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

const defaultStaleAfter = 10 * time.Minute

// NewMemoryLimiter creates a limiter allowing rate requests per second per
// key with bursts up to burst.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := newMemoryLimiter(rate, burst, time.Now)
	go m.sweep(time.Minute)
	return m
}

func newMemoryLimiter(rate float64, burst int, now func() time.Time) *MemoryLimiter {
	if burst < 1 {
		burst = 1
	}
	return &MemoryLimiter{
		rate:       rate,
		burst:      float64(burst),
		staleAfter: defaultStaleAfter,
		now:        now,
		buckets:    make(map[string]*bucket),
		done:       make(chan struct{}),
	}
}

// Allow consumes one token from key's bucket.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: m.burst, lastAccess: now}
		m.buckets[key] = b
	}

	b.tokens = math.Min(m.burst, b.tokens+now.Sub(b.lastAccess).Seconds()*m.rate)
	b.lastAccess = now

	d := Decision{Limit: int(m.burst)}
	if b.tokens < 1 {
		if m.rate > 0 {
			d.RetryAfter = time.Duration((1 - b.tokens) / m.rate * float64(time.Second))
		}
		return d, nil
	}
	b.tokens--
	d.Allowed = true
	d.Remaining = int(b.tokens)
	return d, nil
}

// Close stops the eviction goroutine. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

// Len returns the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

func (m *MemoryLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.staleAfter)
	for key, b := range m.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
