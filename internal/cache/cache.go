// Package cache is a small concurrency-safe cache with least recently used
// eviction.
package cache

import "sync"

// Cache maps keys to values and holds at most Capacity entries. A capacity
// of 0 means unlimited.
//
// Cache is safe for concurrent use and must not be copied.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*entry[V]
	capacity int
	tick     uint64
	hits     uint64
	misses   uint64
}

type entry[V any] struct {
	value V
	used  uint64
}

// Stats reports cache usage.
type Stats struct {
	Len      int
	Capacity int
	Hits     uint64
	Misses   uint64
}

// New returns an empty cache holding at most capacity entries.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	return &Cache[K, V]{
		entries:  make(map[K]*entry[V]),
		capacity: capacity,
	}
}

func (c *Cache[K, V]) getLocked(key K) (V, bool) {
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.tick++
	e.used = c.tick
	return e.value, true
}

func (c *Cache[K, V]) setLocked(key K, value V) {
	c.tick++
	if c.capacity > 0 && len(c.entries) >= c.capacity {
		c.evictLocked()
	}
	c.entries[key] = &entry[V]{value: value, used: c.tick}
}

func (c *Cache[K, V]) evictLocked() {
	var (
		oldest K
		used   uint64
		found  bool
	)
	for k, e := range c.entries {
		if !found || e.used < used {
			oldest, used, found = k, e.used, true
		}
	}
	if found {
		delete(c.entries, oldest)
	}
}

// GetOrCreate returns the cached value for key, or calls create and caches
// its result. Errors are returned and not cached. create runs under the
// cache lock, so concurrent callers for one key create it once.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.getLocked(key); ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		var zero V
		return zero, err
	}
	c.setLocked(key, v)
	return v, nil
}

// Stats returns a snapshot of the counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Len: len(c.entries), Capacity: c.capacity, Hits: c.hits, Misses: c.misses}
}
