package memory

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type item[V any] struct {
	value     V
	size      int
	expiresAt time.Time
}

// LRUTTL bounds a golang-lru cache by entry count, an optional byte budget and a
// per-entry TTL. Expired entries are dropped lazily on read.
type LRUTTL[K comparable, V any] struct {
	// mu serialises multi-step updates; the lru has its own lock for single calls.
	mu       sync.Mutex
	lru      *lru.Cache[K, *item[V]]
	maxBytes int
	ttl      time.Duration
	now      func() time.Time

	bytes     atomic.Int64
	evictions atomic.Uint64
}

func NewLRUTTL[K comparable, V any](maxEntries int, maxBytes int, ttl time.Duration) *LRUTTL[K, V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	c := &LRUTTL[K, V]{maxBytes: maxBytes, ttl: ttl, now: time.Now}
	// only fails for a non-positive size
	c.lru, _ = lru.NewWithEvict[K, *item[V]](maxEntries, func(_ K, it *item[V]) {
		c.bytes.Add(-int64(it.size))
	})
	return c
}

// SetClock replaces the time source; tests use it to expire entries.
func (c *LRUTTL[K, V]) SetClock(now func() time.Time) {
	if c == nil || now == nil {
		return
	}
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *LRUTTL[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.now().After(it.expiresAt) {
		c.lru.Remove(key)
		return zero, false
	}
	return it.value, true
}

func (c *LRUTTL[K, V]) Set(key K, value V, sizeBytes int) {
	if c == nil {
		return
	}
	sizeBytes = max(sizeBytes, 0)
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.lru.Peek(key); ok {
		// an update does not fire the evict callback
		c.bytes.Add(-int64(old.size))
	}
	c.bytes.Add(int64(sizeBytes))
	if evicted := c.lru.Add(key, &item[V]{value: value, size: sizeBytes, expiresAt: c.now().Add(c.ttl)}); evicted {
		c.evictions.Add(1)
	}
	for c.maxBytes > 0 && c.bytes.Load() > int64(c.maxBytes) && c.lru.Len() > 0 {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
		c.evictions.Add(1)
	}
}

func (c *LRUTTL[K, V]) Delete(key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// DeleteFunc drops every key for which match returns true.
func (c *LRUTTL[K, V]) DeleteFunc(match func(K) bool) int {
	if c == nil || match == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, k := range c.lru.Keys() {
		if match(k) && c.lru.Remove(k) {
			n++
		}
	}
	return n
}

func (c *LRUTTL[K, V]) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.bytes.Store(0)
}

// Len counts live and not-yet-reaped entries.
func (c *LRUTTL[K, V]) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Bytes is the summed size of the cached entries.
func (c *LRUTTL[K, V]) Bytes() int {
	if c == nil {
		return 0
	}
	return int(c.bytes.Load())
}

// Evictions counts entries pushed out by the entry or byte limits.
func (c *LRUTTL[K, V]) Evictions() uint64 {
	if c == nil {
		return 0
	}
	return c.evictions.Load()
}
