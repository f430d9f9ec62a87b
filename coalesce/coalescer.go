// Package coalesce implements the Request Coalescer (C6): concurrent
// identical requests are deduplicated so the upstream is invoked exactly
// once per fingerprint, with all waiters receiving the same result.
package coalesce

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/gatewayflow/gatewayflow/internal/metrics"
)

// Fingerprint computes a stable hash over (project, provider, model,
// canonicalizedBody). Streaming and non-streaming requests must pass a
// distinct streaming flag so their fingerprints never collide (spec
// §4.6).
func Fingerprint(project, provider, model, canonicalizedBody string, streaming bool) string {
	h := sha256.New()
	h.Write([]byte(project))
	h.Write([]byte{0})
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	if streaming {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write([]byte{0})
	h.Write([]byte(canonicalizedBody))
	return hex.EncodeToString(h.Sum(nil))
}

// Coalescer wraps singleflight.Group (grounded on the teacher's indirect
// golang.org/x/sync dependency) with waiter-count bookkeeping exposed to
// Prometheus, matching spec §5's "single mutex, short critical sections"
// requirement: the mutex here only ever guards an int64 counter map, never
// the producer call itself.
type Coalescer struct {
	group   singleflight.Group
	mu      sync.Mutex
	waiters map[string]*atomic.Int64
	metrics *metrics.Collector
}

// New creates a Coalescer.
func New(collector *metrics.Collector) *Coalescer {
	return &Coalescer{
		waiters: make(map[string]*atomic.Int64),
		metrics: collector,
	}
}

// Do runs producer exactly once per fingerprint among concurrently
// attached callers; all callers observe the same (value, error). provider
// and model are used only for metric labels.
func (c *Coalescer) Do(fingerprint, provider, model string, producer func() (any, error)) (any, error) {
	n := c.incWaiter(fingerprint, provider, model)
	defer c.decWaiter(fingerprint, provider, model)

	if n > 1 {
		c.metrics.RecordCoalescedRequest(provider, model)
	}

	v, err, _ := c.group.Do(fingerprint, producer)
	return v, err
}

func (c *Coalescer) incWaiter(fingerprint, provider, model string) int64 {
	c.mu.Lock()
	counter, ok := c.waiters[fingerprint]
	if !ok {
		counter = &atomic.Int64{}
		c.waiters[fingerprint] = counter
	}
	c.mu.Unlock()

	n := counter.Add(1)
	c.metrics.SetConcurrentWaiters(provider, model, int(n))
	return n
}

func (c *Coalescer) decWaiter(fingerprint, provider, model string) {
	c.mu.Lock()
	counter, ok := c.waiters[fingerprint]
	if !ok {
		c.mu.Unlock()
		return
	}
	n := counter.Add(-1)
	if n <= 0 {
		delete(c.waiters, fingerprint)
	}
	c.mu.Unlock()

	if n > 0 {
		c.metrics.SetConcurrentWaiters(provider, model, int(n))
	}
}
