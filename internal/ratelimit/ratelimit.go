// Package ratelimit provides a per-tenant in-memory token bucket admission
// controller. Each tenant's capacity is its per-minute request allowance;
// tokens refill continuously at capacity/60 per second.
package ratelimit

import (
	"hash/fnv"
	"math"
	"sync"
	"time"
)

const shardCount = 32

// Decision is the outcome of one admission attempt. RetryAfter is only
// meaningful when Ok is false.
type Decision struct {
	Ok         bool
	RetryAfter int // seconds, >= 1 when throttled
}

// Controller admits or throttles requests per tenant. The bucket map is
// sharded so unrelated tenants never contend on one lock.
type Controller struct {
	shards [shardCount]*shard
	now    func() time.Time
	stop   chan struct{}
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens     float64
	capacity   float64
	lastRefill time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock (used in tests).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates an admission controller and starts its stale-bucket sweeper.
func New(opts ...Option) *Controller {
	c := &Controller{
		now:  time.Now,
		stop: make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	for _, o := range opts {
		o(c)
	}
	go c.cleanup()
	return c
}

// Admit consumes one token from the tenant's bucket, creating it full on
// first sight. capacity is the tenant's per-minute allowance. When the bucket
// is empty the decision carries the whole seconds until one token refills.
func (c *Controller) Admit(tenantID string, capacity int) Decision {
	if capacity <= 0 {
		capacity = 60
	}
	cap64 := float64(capacity)
	rate := cap64 / 60.0 // tokens per second

	s := c.shardFor(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := c.now()
	b, ok := s.buckets[tenantID]
	if !ok {
		b = &bucket{tokens: cap64, capacity: cap64, lastRefill: now}
		s.buckets[tenantID] = b
	}
	if b.capacity != cap64 {
		// Allowance changed since last request; adopt the new ceiling.
		b.capacity = cap64
		if b.tokens > cap64 {
			b.tokens = cap64
		}
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*rate)
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Ok: true}
	}

	retryAfter := int(math.Ceil((1 - b.tokens) / rate))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Decision{Ok: false, RetryAfter: retryAfter}
}

// Level reports the tenant's current token count without consuming. Buckets
// the controller has never seen report their capacity.
func (c *Controller) Level(tenantID string, capacity int) float64 {
	s := c.shardFor(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[tenantID]
	if !ok {
		return float64(capacity)
	}
	rate := b.capacity / 60.0
	elapsed := c.now().Sub(b.lastRefill).Seconds()
	return math.Min(b.capacity, b.tokens+elapsed*rate)
}

// Stop terminates the background sweeper.
func (c *Controller) Stop() {
	close(c.stop)
}

func (c *Controller) shardFor(tenantID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenantID))
	return c.shards[h.Sum32()%shardCount]
}

func (c *Controller) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := c.now().Add(-10 * time.Minute)
			for _, s := range c.shards {
				s.mu.Lock()
				for k, b := range s.buckets {
					if b.lastRefill.Before(cutoff) {
						delete(s.buckets, k)
					}
				}
				s.mu.Unlock()
			}
		case <-c.stop:
			return
		}
	}
}
