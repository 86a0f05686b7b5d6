package registry

import (
	"sync/atomic"
	"time"

	memcache "lootforge/internal/cache/memory"
	"lootforge/internal/loot"
)

type CacheConfig struct {
	RawTTL        time.Duration
	RawMaxEntries int
	RawMaxBytes   int

	ListTTL time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		RawTTL:        5 * time.Minute,
		RawMaxEntries: 2048,
		RawMaxBytes:   64 * 1024 * 1024, // 64MiB
		ListTTL:       30 * time.Second,
	}
}

type MetricsSnapshot struct {
	RawHits     uint64
	RawMisses   uint64
	ListHits    uint64
	ListMisses  uint64
	OriginReads uint64
	Absent      uint64
	Evictions   uint64
}

type Metrics struct {
	rawHits     atomic.Uint64
	rawMisses   atomic.Uint64
	listHits    atomic.Uint64
	listMisses  atomic.Uint64
	originReads atomic.Uint64
	absent      atomic.Uint64
}

// CachedRegistry is a read-through cache in front of another Registry. Absent
// documents are not cached, so a table that appears later is picked up.
type CachedRegistry struct {
	origin Registry

	rawCache  *memcache.LRUTTL[string, []byte]
	listCache *memcache.LRUTTL[Kind, []string]
	metrics   Metrics
}

func NewCached(origin Registry, cfg CacheConfig) *CachedRegistry {
	def := DefaultCacheConfig()
	if cfg.RawTTL <= 0 {
		cfg.RawTTL = def.RawTTL
	}
	if cfg.RawMaxEntries <= 0 {
		cfg.RawMaxEntries = def.RawMaxEntries
	}
	if cfg.RawMaxBytes < 0 {
		cfg.RawMaxBytes = def.RawMaxBytes
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = def.ListTTL
	}
	return &CachedRegistry{
		origin:    origin,
		rawCache:  memcache.NewLRUTTL[string, []byte](cfg.RawMaxEntries, cfg.RawMaxBytes, cfg.RawTTL),
		listCache: memcache.NewLRUTTL[Kind, []string](len(kindDirs), 0, cfg.ListTTL),
	}
}

func (c *CachedRegistry) ListIDs(kind Kind) []string {
	if ids, ok := c.listCache.Get(kind); ok {
		c.metrics.listHits.Add(1)
		return append([]string(nil), ids...)
	}
	c.metrics.listMisses.Add(1)
	c.metrics.originReads.Add(1)

	ids := append([]string(nil), c.origin.ListIDs(kind)...)
	approxBytes := 0
	for _, id := range ids {
		approxBytes += len(id)
	}
	c.listCache.Set(kind, ids, approxBytes)
	return append([]string(nil), ids...)
}

func (c *CachedRegistry) RawJSON(id string) ([]byte, bool) {
	key := loot.NormalizeID(id)
	if raw, ok := c.rawCache.Get(key); ok {
		c.metrics.rawHits.Add(1)
		return append([]byte(nil), raw...), true
	}
	c.metrics.rawMisses.Add(1)
	c.metrics.originReads.Add(1)

	raw, ok := c.origin.RawJSON(id)
	if !ok {
		c.metrics.absent.Add(1)
		return nil, false
	}
	copied := append([]byte(nil), raw...)
	c.rawCache.Set(key, copied, len(copied))
	return append([]byte(nil), copied...), true
}

// Invalidate drops what Watch reported as changed.
func (c *CachedRegistry) Invalidate(changes []Change) {
	for _, ch := range changes {
		c.listCache.Delete(ch.Kind)
		if ch.Kind == KindLootTable {
			c.rawCache.Delete(loot.NormalizeID(ch.ID))
		}
	}
}

// Purge empties both caches.
func (c *CachedRegistry) Purge() {
	c.rawCache.Clear()
	c.listCache.Clear()
}

func (c *CachedRegistry) Metrics() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		RawHits:     c.metrics.rawHits.Load(),
		RawMisses:   c.metrics.rawMisses.Load(),
		ListHits:    c.metrics.listHits.Load(),
		ListMisses:  c.metrics.listMisses.Load(),
		OriginReads: c.metrics.originReads.Load(),
		Absent:      c.metrics.absent.Load(),
		Evictions:   c.rawCache.Evictions(),
	}
}
