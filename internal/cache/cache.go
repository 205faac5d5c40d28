// Package cache is a small in-memory TTL cache for upstream query results.
package cache

import (
	"slices"
	"strings"
	"sync"
	"time"
)

type entry[T any] struct {
	items   []T
	expires time.Time
}

// Cache maps string keys to result slices that expire after a fixed TTL.
// Slices are copied in and out, so callers may modify what they get. It is
// safe for concurrent use. A zero TTL disables caching entirely.
type Cache[T any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry[T]
	hits    int
	misses  int
}

// New creates a cache. A nil now uses time.Now.
func New[T any](ttl time.Duration, now func() time.Time) *Cache[T] {
	if now == nil {
		now = time.Now
	}
	return &Cache[T]{ttl: ttl, now: now, entries: make(map[string]entry[T])}
}

// Enabled reports whether the cache stores anything.
func (c *Cache[T]) Enabled() bool {
	return c.ttl > 0
}

// Get returns a copy of the live items for key.
func (c *Cache[T]) Get(key string) ([]T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.now().Before(e.expires) {
		c.hits++
		return slices.Clone(e.items), true
	}
	if ok {
		delete(c.entries, key)
	}
	c.misses++
	return nil, false
}

// Set stores a copy of items under key.
func (c *Cache[T]) Set(key string, items []T) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{items: slices.Clone(items), expires: c.now().Add(c.ttl)}
}

// Invalidate drops every key starting with prefix and returns how many were
// removed. An empty prefix drops everything.
func (c *Cache[T]) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Purge removes expired entries.
func (c *Cache[T]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Stats describes cache usage.
type Stats struct {
	Entries int `json:"entries"`
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
}

// Stats returns a snapshot of cache usage.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
