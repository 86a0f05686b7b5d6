package itemidx

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lootforge/internal/loot"
)

func corpus() map[string]loot.Structure {
	emerald := loot.Item("minecraft:emerald", 10)
	emerald.Functions = []loot.Function{loot.SetCount(loot.Uniform{Low: 1, High: 3})}
	return map[string]loot.Structure{
		"minecraft:chests/b": {
			ID: "minecraft:chests/b",
			Pools: []loot.Pool{
				loot.NewPool(loot.Constant{Value: 1}, emerald, loot.Item("minecraft:diamond", 1)),
			},
		},
		"minecraft:chests/a": {
			ID: "minecraft:chests/a",
			Pools: []loot.Pool{
				loot.NewPool(loot.Constant{Value: 1}, loot.Empty(3)),
				loot.NewPool(loot.Constant{Value: 2},
					loot.Tag("minecraft:planks", 2),
					loot.Composite(loot.EntryAlternatives,
						loot.Item("diamond_sword", 1),
						loot.Item("minecraft:diamond", 1),
					),
				),
			},
		},
		"mymod:chests/tower": {
			ID: "mymod:chests/tower",
			Pools: []loot.Pool{
				loot.NewPool(loot.Constant{Value: 1}, loot.TableRef("minecraft:chests/b", 1), loot.Item("mymod:diamond_dust", 4)),
			},
		},
	}
}

func keys(hits []Hit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, fmt.Sprintf("%s/%d/%d", h.DocumentID, h.Pool, h.Entry))
	}
	return out
}

func TestSearchMatchesLocalNameAndDedups(t *testing.T) {
	x := Build(corpus())
	ctx := context.Background()

	hits := x.Search(ctx, "DIAMOND")
	// the alternatives entry holds two matching children but is reported once
	assert.Equal(t, []string{
		"minecraft:chests/a/1/1",
		"minecraft:chests/b/0/1",
		"mymod:chests/tower/0/1",
	}, keys(hits))

	assert.Equal(t, []string{"minecraft:chests/a/1/0"}, keys(x.Search(ctx, "minecraft:plank")))
	assert.Empty(t, x.Search(ctx, "netherite"))
	assert.Empty(t, x.Search(ctx, "  "))
}

func TestSearchByNamespace(t *testing.T) {
	x := Build(corpus())
	hits := x.Search(context.Background(), "mymod:")
	require.Len(t, hits, 1)
	assert.Equal(t, "mymod:diamond_dust", hits[0].Identifier)
}

func TestFindDocumentsForIdentifier(t *testing.T) {
	x := Build(corpus())
	ctx := context.Background()
	assert.Equal(t, []string{"minecraft:chests/a", "minecraft:chests/b"}, x.FindDocumentsForIdentifier(ctx, "minecraft:diamond"))
	// ids without a namespace are normalised both when indexed and when looked up
	assert.Equal(t, []string{"minecraft:chests/a"}, x.FindDocumentsForIdentifier(ctx, "diamond_sword"))
	assert.Equal(t, []string{"mymod:chests/tower"}, x.FindDocumentsForIdentifier(ctx, "minecraft:chests/b"))
	assert.Empty(t, x.FindDocumentsForIdentifier(ctx, "minecraft:stick"))
}

func TestHitContext(t *testing.T) {
	x := Build(corpus())
	hits := x.Find(context.Background(), "minecraft:emerald")
	require.Len(t, hits, 1)
	assert.Equal(t, "pool 0 entry 0: Item minecraft:emerald weight 10/11 count 1-3", hits[0].Context)

	nested := x.Find(context.Background(), "minecraft:diamond_sword")
	require.Len(t, nested, 1)
	assert.Equal(t, 1, nested[0].Entry)
	assert.Contains(t, nested[0].Context, "Alternatives minecraft:diamond_sword (nested)")
}

func TestIdentifiers(t *testing.T) {
	x := Build(corpus())
	assert.Equal(t, []string{
		"minecraft:chests/b",
		"minecraft:diamond",
		"minecraft:diamond_sword",
		"minecraft:emerald",
		"minecraft:planks",
		"mymod:diamond_dust",
	}, x.Identifiers(context.Background()))
	assert.Equal(t, 3, x.Documents())
}

func TestStartFromLoaderMatchesBuild(t *testing.T) {
	docs := corpus()
	loader := LoaderFunc(func(_ context.Context, id string) (loot.Structure, bool, error) {
		s, ok := docs[id]
		return s, ok, nil
	})
	ids := []string{"mymod:chests/tower", "minecraft:chests/a", "minecraft:chests/missing", "minecraft:chests/b", ""}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	x := StartFromLoader(ctx, loader, ids, 2)
	require.NoError(t, x.Wait(ctx))

	want := Build(docs)
	assert.Equal(t, want.Search(ctx, "diamond"), x.Search(ctx, "diamond"))
	assert.Equal(t, 3, x.Documents())
}

func TestStartFromLoaderKeepsFirstError(t *testing.T) {
	boom := errors.New("boom")
	loader := LoaderFunc(func(_ context.Context, id string) (loot.Structure, bool, error) {
		if id == "bad" {
			return loot.Structure{}, false, boom
		}
		return corpus()["minecraft:chests/b"], true, nil
	})
	ctx := context.Background()
	x := StartFromLoader(ctx, loader, []string{"good", "bad"}, 1)
	err := x.Wait(ctx)
	require.ErrorIs(t, err, boom)
	// what loaded is still searchable
	assert.Len(t, x.Search(ctx, "emerald"), 1)
}

func TestStartFromLoaderNil(t *testing.T) {
	x := StartFromLoader(context.Background(), nil, []string{"a"}, 1)
	assert.Error(t, x.Wait(context.Background()))
}

func TestWaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	loader := LoaderFunc(func(ctx context.Context, _ string) (loot.Structure, bool, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return loot.Structure{}, false, nil
	})
	buildCtx, stop := context.WithCancel(context.Background())
	x := StartFromLoader(buildCtx, loader, []string{"a"}, 1)

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, x.Wait(waitCtx), context.DeadlineExceeded)

	stop()
	close(block)
	assert.ErrorIs(t, x.Wait(context.Background()), context.Canceled)
}
