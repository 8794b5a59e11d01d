// Package cache provides the TTL caches used for node health, regional
// candidates, REST responses and resolved queries.
//
// Entries expire lazily: every read checks the entry age against the TTL,
// so an expired value is never returned even if no sweep has run yet.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type Options struct {
	TTL time.Duration
	// MaxSize bounds the number of entries. Zero means unbounded. When the
	// bound is exceeded the oldest inserted entries are evicted first.
	MaxSize int
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

type entry[V any] struct {
	value    V
	storedAt time.Time
	seq      uint64
}

// Cache is a map with per-entry expiry. Each cache owns its own lock, so
// independent caches never contend.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	ttl     time.Duration
	maxSize int
	clock   clock.Clock
	seq     uint64
}

func New[K comparable, V any](opts Options) *Cache[K, V] {
	c := opts.Clock
	if c == nil {
		c = clock.New()
	}
	return &Cache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		clock:   c,
	}
}

func (c *Cache[K, V]) expired(e entry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.storedAt) >= c.ttl
}

// Get returns the value for key if it is present and younger than the TTL.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e, c.clock.Now()) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.entries[key] = entry[V]{value: value, storedAt: c.clock.Now(), seq: c.seq}
	c.evictLocked()
}

// GetOrCompute returns the cached value for key, or calls compute and
// caches its result when it succeeds. compute runs without the lock held.
func (c *Cache[K, V]) GetOrCompute(key K, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// DeleteFunc removes every entry whose key matches.
func (c *Cache[K, V]) DeleteFunc(match func(K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
		}
	}
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len counts entries including ones that have expired but not been swept.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Prune drops expired entries and enforces the size bound. It returns the
// number of entries removed.
func (c *Cache[K, V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.entries)
	now := c.clock.Now()
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
		}
	}
	c.evictLocked()
	return before - len(c.entries)
}

func (c *Cache[K, V]) evictLocked() {
	if c.maxSize <= 0 {
		return
	}
	for len(c.entries) > c.maxSize {
		var (
			oldestKey K
			oldestSeq uint64
			found     bool
		)
		for k, e := range c.entries {
			if !found || e.seq < oldestSeq {
				oldestKey, oldestSeq, found = k, e.seq, true
			}
		}
		delete(c.entries, oldestKey)
	}
}

// StartSweeper prunes the cache every interval until ctx is done.
func (c *Cache[K, V]) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := c.clock.Ticker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Prune()
			}
		}
	}()
}
