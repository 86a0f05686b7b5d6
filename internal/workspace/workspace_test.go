package workspace

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lootforge/internal/common/delta"
	"lootforge/internal/droprate"
	"lootforge/internal/edit"
	"lootforge/internal/editor"
	"lootforge/internal/export"
	"lootforge/internal/linker"
	"lootforge/internal/lootjson"
	"lootforge/internal/metrics"
	"lootforge/internal/registry"
	"lootforge/internal/session"
)

const treasure = `{
  "type": "minecraft:chest",
  "pools": [
    {
      "rolls": 1,
      "entries": [
        {"type": "minecraft:item", "name": "minecraft:emerald", "weight": 3},
        {"type": "minecraft:item", "name": "minecraft:diamond"}
      ]
    }
  ]
}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func corpus() *registry.MemoryRegistry {
	reg := registry.NewMemoryRegistry()
	reg.Put(registry.KindLootTable, "minecraft:chests/desert_pyramid", []byte(treasure))
	reg.Put(registry.KindLootTable, "minecraft:chests/broken", []byte(`{"pools": [`))
	reg.Put(registry.KindStructure, "minecraft:desert_pyramid", []byte(`{}`))
	return reg
}

func newWorkspace(t *testing.T, opts ...Option) *Workspace {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithWorkers(2)}, opts...)
	w, err := New(corpus(), opts...)
	require.NoError(t, err)
	require.NoError(t, w.LoadCorpus(context.Background()))
	return w
}

const doc = "minecraft:chests/desert_pyramid"

func TestNewRequiresRegistry(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestEditRatesAndDiff(t *testing.T) {
	w := newWorkspace(t)

	report, ok := w.DropRates(doc)
	require.True(t, ok)
	require.Len(t, report.Pools, 1)
	rates := report.Pools[0].Rates
	assert.Equal(t, "minecraft:emerald", rates[0].Identifier)
	assert.InDelta(t, 0.75, rates[0].Probability, 1e-9)
	assert.InDelta(t, 0.25, rates[1].Probability, 1e-9)

	require.True(t, w.Apply("chests/desert_pyramid", edit.ModifyEntryWeight{PoolIndex: 0, EntryIndex: 1, Weight: 3}))
	report, _ = w.DropRates(doc)
	for _, r := range report.Pools[0].Rates {
		assert.InDelta(t, 0.5, r.Probability, 1e-9)
	}

	d, ok := w.Diff(doc)
	require.True(t, ok)
	assert.Equal(t, 1, d.TotalChanges)
	require.Len(t, d.Modifications, 1)
	assert.Equal(t, delta.ModifiedWeight, d.Modifications[0].Kind)

	require.True(t, w.Undo(doc))
	d, _ = w.Diff(doc)
	assert.True(t, d.Empty())
	require.True(t, w.Redo(doc))
	assert.False(t, w.Apply("", edit.RemovePool{PoolIndex: 0}))
}

func TestBrokenDocumentsAreSkipped(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := newWorkspace(t, WithMetrics(metrics.New(reg)))

	_, ok := w.View("minecraft:chests/broken")
	assert.False(t, ok)
	_, ok = w.DropRates("minecraft:chests/missing")
	assert.False(t, ok)

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "lootforge_registry_parse_failures_total" {
			found = true
			assert.GreaterOrEqual(t, mf.GetMetric()[0].GetCounter().GetValue(), 1.0)
		}
	}
	assert.True(t, found)
}

func TestLinksAndSearch(t *testing.T) {
	w := newWorkspace(t)
	ctx := context.Background()

	links := w.Linker().Index().ForStructure("minecraft:desert_pyramid")
	require.Len(t, links, 1)
	assert.Equal(t, doc, links[0].DocumentID)
	assert.Equal(t, linker.SourceExact, links[0].Source)

	hits := w.Search(ctx, "diamond")
	require.Len(t, hits, 1)
	assert.Equal(t, doc, hits[0].DocumentID)
	assert.Equal(t, 1, hits[0].Entry)
}

func TestSearchFollowsPreview(t *testing.T) {
	w := newWorkspace(t, WithPreview(true))
	ctx := context.Background()

	require.True(t, w.Apply(doc, edit.ModifyEntryIdentifier{PoolIndex: 0, EntryIndex: 1, Identifier: "minecraft:netherite_scrap"}))
	require.NoError(t, w.Reindex(ctx))
	assert.Empty(t, w.Search(ctx, "diamond"))
	assert.Len(t, w.Search(ctx, "netherite"), 1)
}

func TestApplyLogRefreshesSearch(t *testing.T) {
	w := newWorkspace(t, WithPreview(true))
	ctx := context.Background()
	require.NoError(t, w.Reindex(ctx))
	require.Len(t, w.Search(ctx, "diamond"), 1)

	n, err := w.ApplyLog(ctx, editor.EditLog{
		DocumentID: doc,
		Operations: edit.List{edit.ModifyEntryIdentifier{PoolIndex: 0, EntryIndex: 1, Identifier: "minecraft:netherite_scrap"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, w.Search(ctx, "diamond"))
	assert.Len(t, w.Search(ctx, "netherite"), 1)
}

func TestSimulateIsDeterministic(t *testing.T) {
	w := newWorkspace(t)
	a, ok := w.Simulate(doc, droprate.SimOptions{Seed: 7, Trials: 200})
	require.True(t, ok)
	b, _ := w.Simulate(doc, droprate.SimOptions{Seed: 7, Trials: 200})
	assert.Equal(t, a, b)
	assert.Equal(t, 200, a.Trials)
}

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	w := newWorkspace(t, WithSessionStore(session.NewFileStore(path)))
	require.True(t, w.Apply(doc, edit.ModifyEntryWeight{PoolIndex: 0, EntryIndex: 0, Weight: 1}))
	w.Bookmark(doc)
	w.Bookmark("  ")
	require.NoError(t, w.Linker().RemoveLink(ctx, "minecraft:desert_pyramid", doc))
	require.True(t, w.SaveSession(ctx))

	fresh := newWorkspace(t, WithSessionStore(session.NewFileStore(path)), WithPreview(true))
	require.True(t, fresh.LoadSession(ctx))
	assert.Equal(t, []string{doc}, fresh.Bookmarks())
	assert.True(t, fresh.Editor().HasEdits(doc))

	view, ok := fresh.View(doc)
	require.True(t, ok)
	assert.Equal(t, 1, view.Pools[0].Entries[0].Weight)

	links := fresh.Linker().Index().ForStructure("minecraft:desert_pyramid")
	require.Len(t, links, 1)
	assert.Equal(t, linker.SourceNone, links[0].Source)

	fresh.Unbookmark(doc)
	assert.Empty(t, fresh.Bookmarks())
}

func TestSessionWithoutStore(t *testing.T) {
	w := newWorkspace(t)
	assert.False(t, w.SaveSession(context.Background()))
	assert.False(t, w.LoadSession(context.Background()))
	_, ok := w.Export(context.Background())
	assert.False(t, ok)
}

func TestLoadSessionFailureLeavesStateAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	require.NoError(t, writeRaw(path, "{not json"))

	w := newWorkspace(t, WithSessionStore(session.NewFileStore(path)))
	w.Bookmark(doc)
	assert.False(t, w.LoadSession(context.Background()))
	assert.Equal(t, []string{doc}, w.Bookmarks())
}

func TestExportFollowsPreviewMode(t *testing.T) {
	ctx := context.Background()
	store := export.NewMemoryStore()
	w := newWorkspace(t, WithExportStore(store))
	require.True(t, w.Apply(doc, edit.ModifyEntryWeight{PoolIndex: 0, EntryIndex: 1, Weight: 5}))

	id, ok := w.Export(ctx)
	require.True(t, ok)
	paths, err := store.List(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{LinksFile, "minecraft/chests/desert_pyramid.json"}, paths)

	raw, err := store.Get(ctx, id, "minecraft/chests/desert_pyramid.json")
	require.NoError(t, err)
	s, err := lootjson.Parse(doc, raw)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Pools[0].Entries[1].Weight, "originals are exported outside preview")

	links, err := store.Get(ctx, id, LinksFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(links), "minecraft:desert_pyramid"))

	w.Editor().SetPreviewMode(true)
	id2, ok := w.Export(ctx)
	require.True(t, ok)
	assert.NotEqual(t, id, id2)
	raw, err = store.Get(ctx, id2, "minecraft/chests/desert_pyramid.json")
	require.NoError(t, err)
	s, err = lootjson.Parse(doc, raw)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Pools[0].Entries[1].Weight)
}

func TestReloadRebasesEdits(t *testing.T) {
	ctx := context.Background()
	reg := corpus()
	w, err := New(reg, WithLogger(quietLogger()), WithPreview(true))
	require.NoError(t, err)
	require.NoError(t, w.LoadCorpus(ctx))
	require.True(t, w.Apply(doc, edit.ModifyEntryWeight{PoolIndex: 0, EntryIndex: 0, Weight: 9}))

	reg.Put(registry.KindLootTable, doc, []byte(strings.Replace(treasure, "minecraft:diamond", "minecraft:gold_ingot", 1)))
	reg.Put(registry.KindLootTable, "minecraft:chests/new", []byte(treasure))
	w.Reload(ctx, []registry.Change{
		{Kind: registry.KindLootTable, ID: doc, Op: registry.ChangeModified},
		{Kind: registry.KindLootTable, ID: "minecraft:chests/new", Op: registry.ChangeAdded},
	})

	view, ok := w.View(doc)
	require.True(t, ok)
	assert.Equal(t, 9, view.Pools[0].Entries[0].Weight)
	assert.Equal(t, "minecraft:gold_ingot", view.Pools[0].Entries[1].Identifier)
	assert.Len(t, w.Search(ctx, "gold_ingot"), 1)
	assert.Len(t, w.Search(ctx, "emerald"), 2)
}
