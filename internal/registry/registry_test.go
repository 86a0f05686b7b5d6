package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chest = `{"type":"minecraft:chest","pools":[]}`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func datapack(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "pack.mcmeta", `{}`)
	writeFile(t, root, "data/minecraft/loot_table/chests/desert_pyramid.json", chest)
	writeFile(t, root, "data/minecraft/loot_tables/chests/igloo_chest.json", chest)
	writeFile(t, root, "data/mymod/loot_table/chests/tower/top.json", chest)
	writeFile(t, root, "data/minecraft/worldgen/structure/desert_pyramid.json", `{}`)
	writeFile(t, root, "data/mymod/worldgen/structure/wizard_tower.json", `{}`)
	writeFile(t, root, "data/minecraft/recipe/stick.json", `{}`)
	writeFile(t, root, "data/minecraft/loot_table/chests/readme.txt", "not json")
	return root
}

func TestMemoryRegistry(t *testing.T) {
	m := NewMemoryRegistry()
	m.Put(KindLootTable, "chests/b", []byte(chest))
	m.Put(KindLootTable, "mymod:chests/a", []byte(chest))
	m.Put(KindStructure, "minecraft:igloo", []byte(`{}`))

	assert.Equal(t, []string{"minecraft:chests/b", "mymod:chests/a"}, m.ListIDs(KindLootTable))
	assert.Equal(t, []string{"minecraft:igloo"}, m.ListIDs(KindStructure))

	raw, ok := m.RawJSON("minecraft:chests/b")
	require.True(t, ok)
	assert.JSONEq(t, chest, string(raw))
	_, ok = m.RawJSON("minecraft:igloo")
	assert.False(t, ok, "structures are listed, not served")

	m.Remove(KindLootTable, "chests/b")
	assert.Equal(t, []string{"mymod:chests/a"}, m.ListIDs(KindLootTable))
}

func TestDirRegistryScansDatapack(t *testing.T) {
	d, err := OpenDir(datapack(t))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"minecraft:chests/desert_pyramid",
		"minecraft:chests/igloo_chest",
		"mymod:chests/tower/top",
	}, d.ListIDs(KindLootTable))
	assert.Equal(t, []string{"minecraft:desert_pyramid", "mymod:wizard_tower"}, d.ListIDs(KindStructure))

	raw, ok := d.RawJSON("chests/igloo_chest")
	require.True(t, ok)
	assert.JSONEq(t, chest, string(raw))
	_, ok = d.RawJSON("minecraft:chests/missing")
	assert.False(t, ok)
}

func TestDirRegistryWithoutDataFolder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "minecraft/loot_table/chests/a.json", chest)
	d, err := OpenDir(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"minecraft:chests/a"}, d.ListIDs(KindLootTable))
}

func TestDirRegistryWatch(t *testing.T) {
	root := datapack(t)
	d, err := OpenDir(root, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan []Change, 8)
	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx, func(c []Change) { got <- c }) }()

	// give the watcher time to register its directories
	time.Sleep(100 * time.Millisecond)
	writeFile(t, root, "data/mymod/loot_table/chests/tower/library.json", chest)
	require.NoError(t, os.Remove(filepath.Join(root, "data/minecraft/loot_tables/chests/igloo_chest.json")))

	seen := map[Change]bool{}
	deadline := time.After(5 * time.Second)
	for !seen[Change{Kind: KindLootTable, ID: "mymod:chests/tower/library", Op: ChangeAdded}] ||
		!seen[Change{Kind: KindLootTable, ID: "minecraft:chests/igloo_chest", Op: ChangeRemoved}] {
		select {
		case batch := <-got:
			for _, c := range batch {
				seen[c] = true
			}
		case <-deadline:
			t.Fatalf("changes not reported, saw %v", seen)
		}
	}
	assert.Contains(t, d.ListIDs(KindLootTable), "mymod:chests/tower/library")

	cancel()
	require.NoError(t, <-done)
}

type countingRegistry struct {
	*MemoryRegistry
	raw, lists int
}

func (c *countingRegistry) RawJSON(id string) ([]byte, bool) {
	c.raw++
	return c.MemoryRegistry.RawJSON(id)
}

func (c *countingRegistry) ListIDs(kind Kind) []string {
	c.lists++
	return c.MemoryRegistry.ListIDs(kind)
}

func TestCachedRegistry(t *testing.T) {
	origin := &countingRegistry{MemoryRegistry: NewMemoryRegistry()}
	origin.Put(KindLootTable, "minecraft:chests/a", []byte(chest))
	c := NewCached(origin, CacheConfig{})

	for i := 0; i < 3; i++ {
		raw, ok := c.RawJSON("chests/a")
		require.True(t, ok)
		assert.JSONEq(t, chest, string(raw))
		assert.Equal(t, []string{"minecraft:chests/a"}, c.ListIDs(KindLootTable))
	}
	_, ok := c.RawJSON("minecraft:chests/none")
	assert.False(t, ok)

	assert.Equal(t, 2, origin.raw)
	assert.Equal(t, 1, origin.lists)
	m := c.Metrics()
	assert.Equal(t, uint64(2), m.RawHits)
	assert.Equal(t, uint64(2), m.RawMisses)
	assert.Equal(t, uint64(2), m.ListHits)
	assert.Equal(t, uint64(1), m.Absent)

	origin.Put(KindLootTable, "minecraft:chests/a", []byte(`{"pools":[]}`))
	c.Invalidate([]Change{{Kind: KindLootTable, ID: "minecraft:chests/a", Op: ChangeModified}})
	raw, _ := c.RawJSON("minecraft:chests/a")
	assert.JSONEq(t, `{"pools":[]}`, string(raw))
	c.ListIDs(KindLootTable)
	assert.Equal(t, 2, origin.lists)
}
