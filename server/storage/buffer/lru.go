// Package buffer implements the engine's page buffer cache: an LRU with
// pinning, grounded on _examples/original_source/tests/test_lru.py (the
// original project's LRUCache) and shaped in Go the way the teacher's own
// hand-rolled container/list LRU (buffer_lru_optimized.go) is built, since
// neither hashicorp/golang-lru nor any other pack dependency exposes the
// pin-aware eviction veto this cache needs (see DESIGN.md).
package buffer

import (
	"container/list"

	"github.com/imoocdb/imoocdb/server/dberrors"
)

// Evicted records one entry this cache has pushed out, in eviction order.
type Evicted[K comparable, V any] struct {
	Key   K
	Value V
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Cache is a fixed-capacity LRU cache. Pinned keys are never evicted; Put
// fails with an LRUError if inserting a new key would exceed capacity and
// every entry is pinned (spec.md §4.3). It is not safe for concurrent use
// without external locking -- callers pair it with the lock manager.
type Cache[K comparable, V any] struct {
	capacity     int
	evictedLimit int

	order *list.List // front = least recently used, back = most recently used
	items map[K]*list.Element
	pins  map[K]int

	evictedLog []Evicted[K, V]
}

// New builds a cache of the given capacity with a default bounded eviction
// log of 256 entries.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	return NewWithEvictedLogSize[K, V](capacity, 256)
}

func NewWithEvictedLogSize[K comparable, V any](capacity, evictedLimit int) *Cache[K, V] {
	return &Cache[K, V]{
		capacity:     capacity,
		evictedLimit: evictedLimit,
		order:        list.New(),
		items:        make(map[K]*list.Element),
		pins:         make(map[K]int),
	}
}

// Get returns the value for key and marks it most recently used. The second
// return value is false if key is absent.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToBack(el)
	return el.Value.(*entry[K, V]).value, true
}

// Put inserts or updates key, marking it most recently used. Updating an
// existing key never changes how many entries are cached, so it always
// succeeds. Inserting a new key that would exceed capacity first evicts the
// least recently used unpinned entry; if every entry is pinned, the new key
// is rejected and Put returns an LRUError instead of growing past capacity.
func (c *Cache[K, V]) Put(key K, value V) error {
	if el, ok := c.items[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.order.MoveToBack(el)
		return nil
	}

	if c.order.Len() >= c.capacity {
		if !c.evictOldestUnpinned() {
			return dberrors.LRUError("cannot cache key %v: capacity %d reached and every entry is pinned", key, c.capacity)
		}
	}

	el := c.order.PushBack(&entry[K, V]{key: key, value: value})
	c.items[key] = el
	return nil
}

func (c *Cache[K, V]) evictOldestUnpinned() bool {
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[K, V])
		if c.pins[e.key] > 0 {
			continue
		}
		c.order.Remove(el)
		delete(c.items, e.key)
		c.recordEviction(e.key, e.value)
		return true
	}
	return false
}

func (c *Cache[K, V]) recordEviction(key K, value V) {
	c.evictedLog = append(c.evictedLog, Evicted[K, V]{Key: key, Value: value})
	if len(c.evictedLog) > c.evictedLimit {
		c.evictedLog = c.evictedLog[len(c.evictedLog)-c.evictedLimit:]
	}
}

// Pin marks key as ineligible for eviction. Pins nest: a key pinned twice
// needs two unpins before it is evictable again.
func (c *Cache[K, V]) Pin(key K) { c.pins[key]++ }

// Unpin reverses one Pin call.
func (c *Cache[K, V]) Unpin(key K) {
	if c.pins[key] <= 1 {
		delete(c.pins, key)
		return
	}
	c.pins[key]--
}

// Evicted returns the bounded log of evicted entries, oldest first.
func (c *Cache[K, V]) Evicted() []Evicted[K, V] {
	out := make([]Evicted[K, V], len(c.evictedLog))
	copy(out, c.evictedLog)
	return out
}

// Len reports how many entries are currently cached.
func (c *Cache[K, V]) Len() int { return c.order.Len() }
