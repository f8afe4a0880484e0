// Package cache provides a small in-process cache with an explicit lifetime
// contract: bounded capacity, per-entry TTL, and invalidation. Components
// that hand out per-key singletons (limiter registry, credential pools) use
// it so that entry lifetime is visible configuration rather than a property
// of whichever map happens to hold the value.
package cache

import (
	"sync"
	"time"
)

// TTL is a capacity-bounded cache whose entries expire a fixed duration
// after they were stored. The zero value is not usable; construct with New.
type TTL[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]entry[V]
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// New constructs a TTL cache. A capacity of zero means unbounded; a ttl of
// zero means entries never expire.
func New[K comparable, V any](capacity int, ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{
		entries:  make(map[K]entry[V]),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the live value for key, if present and unexpired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetOrCreate returns the live value for key, creating and storing one via
// create when absent or expired. The create function runs under the cache
// lock, so exactly one value is ever created per key per lifetime.
func (c *TTL[K, V]) GetOrCreate(key K, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && !c.expired(e) {
		return e.value
	}
	v := create()
	c.store(key, v)
	return v
}

// Set stores value under key, evicting the oldest entry when at capacity.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, value)
}

// Invalidate removes key immediately.
func (c *TTL[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of stored entries, expired or not.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTL[K, V]) store(key K, value V) {
	if c.capacity > 0 && len(c.entries) >= c.capacity {
		if _, exists := c.entries[key]; !exists {
			c.evictOldest()
		}
	}
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
}

func (c *TTL[K, V]) evictOldest() {
	var oldestKey K
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.storedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

func (c *TTL[K, V]) expired(e entry[V]) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(e.storedAt) >= c.ttl
}
