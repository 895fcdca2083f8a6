// Package cache provides a bounded in-memory LRU cache.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Stats reports cache effectiveness.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// HitRate returns the fraction of lookups that were hits.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// LRU is a fixed-capacity cache evicting the least recently used entry.
// It is safe for concurrent use.
type LRU[K comparable, V any] struct {
	maxEntries int

	mu      sync.Mutex
	entries map[K]*list.Element
	order   *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRU creates a cache holding at most maxEntries values. A non-positive
// maxEntries yields a cache that stores nothing.
func NewLRU[K comparable, V any](maxEntries int) *LRU[K, V] {
	return &LRU[K, V]{
		maxEntries: maxEntries,
		entries:    make(map[K]*list.Element),
		order:      list.New(),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	elem, ok := c.entries[key]
	if ok {
		c.order.MoveToFront(elem)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return elem.Value.(*lruEntry[K, V]).value, true
}

// Set stores value under key, evicting the oldest entry when full.
func (c *LRU[K, V]) Set(key K, value V) {
	if c.maxEntries <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*lruEntry[K, V]).value = value
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value})
}

// Delete removes key if present.
func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
}

// Clear removes every entry. Hit and miss counters are kept.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*list.Element)
	c.order.Init()
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit/miss counters and the current size.
func (c *LRU[K, V]) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.Len(),
	}
}

func (c *LRU[K, V]) evictOldest() {
	elem := c.order.Back()
	if elem != nil {
		entry := elem.Value.(*lruEntry[K, V])
		delete(c.entries, entry.key)
		c.order.Remove(elem)
	}
}
