// Package ratelimit implements the per-project token-bucket limiter
// placed in front of the proxy pipeline (spec.md §5's backpressure
// policy: requests over the limit fail fast with status=error
// RATE_LIMITED rather than being queued or retried).
//
// Grounded on cmd/gatewayflow/middleware.go's RateLimiter: same
// visitor-map-plus-background-eviction shape, keyed by project ID
// instead of client IP.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter rate-limits requests per project. A zero-value *Limiter is not
// usable; construct with New.
type Limiter struct {
	rps   float64
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket

	stop chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter allowing rps requests per second per project,
// with burst as the token bucket's capacity. A background goroutine
// evicts projects idle for more than ten minutes so the map doesn't grow
// unbounded across the gateway's lifetime.
func New(rps float64, burst int) *Limiter {
	l := &Limiter{
		rps:     rps,
		burst:   burst,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

// Allow reports whether a request for project may proceed, consuming one
// token from its bucket if so.
func (l *Limiter) Allow(project string) bool {
	l.mu.Lock()
	b, exists := l.buckets[project]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.buckets[project] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	return b.limiter.Allow()
}

// Close stops the background eviction goroutine.
func (l *Limiter) Close() {
	close(l.stop)
}

func (l *Limiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for project, b := range l.buckets {
				if time.Since(b.lastSeen) > 10*time.Minute {
					delete(l.buckets, project)
				}
			}
			l.mu.Unlock()
		}
	}
}
