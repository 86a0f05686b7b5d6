package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lootforge/internal/edit"
	"lootforge/internal/editor"
	"lootforge/internal/linker"
)

func sample() Snapshot {
	at := time.Date(2026, 5, 4, 3, 2, 1, 500, time.UTC)
	return Snapshot{
		Edits: []editor.EditLog{
			{
				DocumentID:     "minecraft:chests/village/village_weaponsmith",
				Operations:     edit.List{edit.RemovePool{PoolIndex: 1}},
				LastModifiedAt: at,
			},
			{
				DocumentID: "minecraft:chests/desert_pyramid",
				Operations: edit.List{
					edit.ModifyEntryWeight{PoolIndex: 0, EntryIndex: 1, Weight: 5},
					edit.ModifyEntryIdentifier{PoolIndex: 0, EntryIndex: 0, Identifier: "minecraft:emerald"},
				},
				LastModifiedAt: at,
			},
		},
		Bookmarks: []string{"minecraft:chests/igloo_chest", " ", "minecraft:chests/desert_pyramid", "minecraft:chests/igloo_chest"},
		LinkOverrides: linker.Overrides{
			Added: []linker.Pair{{StructureID: "minecraft:swamp_hut", DocumentID: "minecraft:chests/igloo_chest"}},
		},
	}
}

func checkRoundTrip(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Edits)
	assert.Empty(t, empty.Bookmarks)

	require.NoError(t, st.Save(ctx, sample()))
	got, err := st.Load(ctx)
	require.NoError(t, err)

	want := Normalize(sample())
	assert.Equal(t, FormatVersion, got.Version)
	assert.False(t, got.SavedAt.IsZero())
	assert.Equal(t, want.Edits, got.Edits)
	assert.Equal(t, []string{"minecraft:chests/desert_pyramid", "minecraft:chests/igloo_chest"}, got.Bookmarks)
	assert.Equal(t, want.LinkOverrides, got.LinkOverrides)

	// saving again replaces rather than merges
	require.NoError(t, st.Save(ctx, Snapshot{Bookmarks: []string{"minecraft:chests/a"}}))
	got, err = st.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Edits)
	assert.Equal(t, []string{"minecraft:chests/a"}, got.Bookmarks)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	checkRoundTrip(t, NewFileStore(path))
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	checkRoundTrip(t, st)
}

func TestPlaceholderRewrite(t *testing.T) {
	s := &SQLStore{driver: "pgx"}
	assert.Equal(t, "VALUES ($1, $2)", s.q("VALUES (?, ?)"))
	s.driver = "sqlite"
	assert.Equal(t, "VALUES (?, ?)", s.q("VALUES (?, ?)"))
}

func TestEditMapAndNew(t *testing.T) {
	snap := sample()
	m := snap.EditMap()
	require.Len(t, m, 2)
	rebuilt := New(m, snap.Bookmarks, snap.LinkOverrides)
	assert.Equal(t, Normalize(snap).Edits, rebuilt.Edits)
	assert.Equal(t, "minecraft:chests/desert_pyramid", rebuilt.Edits[0].DocumentID)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("LOOTFORGE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("LOOTFORGE_TEST_PG_DSN not set")
	}
	st, err := NewPostgres(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	checkRoundTrip(t, st)
}
