// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache provides an in-process TTL cache used to memoize probe
// verdicts for the lifetime of a session.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

type entry[V any] struct {
	value      V
	expiration time.Time
}

// Memory is a typed, mutex-guarded TTL cache. A zero ttl on Set means the
// entry never expires.
type Memory[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	now     func() time.Time

	hits, misses, sets, evictions atomic.Int64
}

// Option configures a Memory cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithNow overrides the time source.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewMemory creates an empty cache.
func NewMemory[V any](opts ...Option) *Memory[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Memory[V]{
		entries: make(map[string]entry[V]),
		now:     o.now,
	}
}

// Get returns a live value.
func (c *Memory[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	if !found || c.expired(e) {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set stores value for ttl.
func (c *Memory[V]) Set(key string, value V, ttl time.Duration) {
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiration = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	c.sets.Add(1)
}

// Delete removes key.
func (c *Memory[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes every entry.
func (c *Memory[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (c *Memory[V]) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: size,
	}
}

func (c *Memory[V]) expired(e entry[V]) bool {
	return !e.expiration.IsZero() && c.now().After(e.expiration)
}

// Prune drops expired entries and returns how many were removed. Expired
// entries are never served, so pruning only bounds memory.
func (c *Memory[V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, key)
			count++
		}
	}
	c.evictions.Add(int64(count))
	return count
}
