package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lootforge/internal/edit"
	"lootforge/internal/editor"
	"lootforge/internal/linker"
	"lootforge/internal/registry"
)

var (
	_ editor.Observer = (*Collector)(nil)
	_ linker.Observer = (*Collector)(nil)
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveEdit(editor.ActionApply, edit.KindAddPool)
	c.ObserveEdit(editor.ActionApply, edit.KindAddPool)
	c.ObserveEdit(editor.ActionUndo, edit.KindAddPool)
	c.ObserveView(true)
	c.ObserveView(false)
	c.ObserveView(false)
	c.ObserveRebuild(20*time.Millisecond, 7)
	c.ParseFailed()
	c.ObserveSession("save", nil)
	c.ObserveSession("save", errors.New("disk full"))
	c.ExportedDocuments(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.edits.WithLabelValues("apply", "add_pool")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.edits.WithLabelValues("undo", "add_pool")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.views.WithLabelValues("miss")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.links))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.parseFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionOps.WithLabelValues("save", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.exportsWritten))

	n, err := testutil.GatherAndCount(reg, "lootforge_linker_rebuild_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilCollectorIsInert(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveEdit(editor.ActionRedo, edit.KindRemovePool)
		c.ObserveView(true)
		c.ObserveRebuild(time.Second, 1)
		c.ParseFailed()
		c.ObserveSession("load", nil)
		c.ExportedDocuments(1)
	})
}

func TestRegisterCache(t *testing.T) {
	mem := registry.NewMemoryRegistry()
	mem.Put(registry.KindLootTable, "minecraft:chests/a", []byte(`{"pools":[]}`))
	cache := registry.NewCached(mem, registry.DefaultCacheConfig())

	reg := prometheus.NewRegistry()
	RegisterCache(reg, cache)

	cache.RawJSON("minecraft:chests/a")
	cache.RawJSON("minecraft:chests/a")
	cache.RawJSON("minecraft:chests/missing")

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		values[mf.GetName()] = mf.GetMetric()[0].GetCounter().GetValue()
	}
	assert.Equal(t, 1.0, values["lootforge_registry_cache_raw_hits_total"])
	assert.Equal(t, 2.0, values["lootforge_registry_cache_raw_misses_total"])
	assert.Equal(t, 1.0, values["lootforge_registry_cache_absent_total"])
}
