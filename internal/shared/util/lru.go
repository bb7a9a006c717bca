package util

import (
	"container/list"
	"sync"
)

// LRU is a mutex-guarded cache bounded by entry count. The least recently
// touched entry is dropped once the bound is reached.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	limit   int
	entries map[K]*list.Element
	recency *list.List
}

type lruItem[K comparable, V any] struct {
	key K
	val V
}

// NewLRU returns a cache holding at most limit entries (minimum 1).
func NewLRU[K comparable, V any](limit int) *LRU[K, V] {
	if limit < 1 {
		limit = 1
	}
	return &LRU[K, V]{
		limit:   limit,
		entries: make(map[K]*list.Element, limit),
		recency: list.New(),
	}
}

func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.recency.MoveToFront(el)
	return el.Value.(*lruItem[K, V]).val, true
}

func (c *LRU[K, V]) Put(key K, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*lruItem[K, V]).val = val
		c.recency.MoveToFront(el)
		return
	}
	for c.recency.Len() >= c.limit {
		oldest := c.recency.Back()
		c.recency.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruItem[K, V]).key)
	}
	c.entries[key] = c.recency.PushFront(&lruItem[K, V]{key: key, val: val})
}

// Remove drops key and reports whether it was cached.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.recency.Remove(el)
	delete(c.entries, key)
	return true
}

// RemoveIf drops every entry whose key matches pred.
func (c *LRU[K, V]) RemoveIf(pred func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, el := range c.entries {
		if pred(key) {
			c.recency.Remove(el)
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// Purge empties the cache.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recency.Init()
	c.entries = make(map[K]*list.Element, c.limit)
}
