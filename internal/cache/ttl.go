// Package cache provides in-memory TTL caches with an injectable clock.
package cache

import (
	"sync"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTL is a concurrency-safe map whose entries expire ttl after they were stored.
// Expired entries are dropped lazily on access and on Set.
type TTL[K comparable, V any] struct {
	clock Clock
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[K]entry[V]
}

// New creates a TTL cache backed by the wall clock.
func New[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return NewWithClock[K, V](realClock{}, ttl)
}

// NewWithClock creates a TTL cache with a custom clock (for testing).
func NewWithClock[K comparable, V any](clock Clock, ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[K]entry[V]),
	}
}

// TTL returns the configured lifetime of an entry.
func (c *TTL[K, V]) TTL() time.Duration { return c.ttl }

// Get returns the cached value for key if it has not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if !c.fresh(e) {
		c.mu.Lock()
		// Re-check: another writer may have refreshed it.
		if cur, ok := c.entries[key]; ok && !c.fresh(cur) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key.
func (c *TTL[K, V]) Set(key K, value V) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry[V]{value: value, storedAt: now}
}

// Delete removes key.
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Errors from load are returned and never cached.
func (c *TTL[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

func (c *TTL[K, V]) fresh(e entry[V]) bool {
	return c.clock.Now().Before(e.storedAt.Add(c.ttl))
}

// Clearer is anything that can drop all of its cached state.
type Clearer interface {
	Clear()
}

// Group clears several caches together. Writes to the record store call
// Invalidate so every derived read is recomputed.
type Group struct {
	mu      sync.Mutex
	members []Clearer
}

// Add registers caches with the group.
func (g *Group) Add(cs ...Clearer) {
	g.mu.Lock()
	g.members = append(g.members, cs...)
	g.mu.Unlock()
}

// Invalidate clears every registered cache.
func (g *Group) Invalidate() {
	g.mu.Lock()
	members := append([]Clearer(nil), g.members...)
	g.mu.Unlock()
	for _, c := range members {
		c.Clear()
	}
}
