package lootjson

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lootforge/internal/loot"
)

const villageChest = `{
  "type": "minecraft:chest",
  "pools": [
    {
      "rolls": {"type": "minecraft:uniform", "min": 3, "max": 8},
      "bonus_rolls": 0.0,
      "entries": [
        {"type": "minecraft:item", "name": "minecraft:emerald", "weight": 10,
         "functions": [{"function": "minecraft:set_count", "count": {"type": "minecraft:uniform", "min": 1, "max": 3}}]},
        {"type": "minecraft:item", "name": "minecraft:diamond", "weight": 1, "quality": 0},
        {"type": "minecraft:loot_table", "value": "minecraft:chests/shared", "weight": 2},
        {"type": "minecraft:empty", "weight": 5},
        {"type": "minecraft:alternatives", "children": [
          {"type": "minecraft:tag", "name": "minecraft:logs", "expand": true},
          {"type": "mymod:mystery", "payload": {"b": 1, "a": [1, "x", null]}}
        ]}
      ],
      "conditions": [{"condition": "minecraft:random_chance", "chance": 0.5}]
    }
  ],
  "functions": [{"function": "mymod:enchant", "level": 30, "treasure": true}],
  "random_sequence": "minecraft:chests/village",
  "__comment": "kept"
}`

func TestParseVillageChest(t *testing.T) {
	s, err := Parse("minecraft:chests/village", []byte(villageChest))
	require.NoError(t, err)

	assert.Equal(t, "minecraft:chests/village", s.ID)
	assert.Equal(t, "minecraft:chest", s.Kind)
	assert.Equal(t, "minecraft:chests/village", s.RandomSequence)
	require.Len(t, s.Pools, 1)

	pool := s.Pools[0]
	assert.Equal(t, loot.Uniform{Low: 3, High: 8}, pool.Rolls)
	assert.Equal(t, loot.Constant{Value: 0}, pool.BonusRolls)
	require.Len(t, pool.Entries, 5)

	emerald := pool.Entries[0]
	assert.Equal(t, loot.EntryItem, emerald.Kind)
	assert.Equal(t, "minecraft:emerald", emerald.Identifier)
	assert.Equal(t, 10, emerald.Weight)
	count, ok := emerald.Count()
	require.True(t, ok)
	assert.Equal(t, loot.Uniform{Low: 1, High: 3}, count)

	assert.Equal(t, loot.EntryTableRef, pool.Entries[2].Kind)
	assert.Equal(t, "minecraft:chests/shared", pool.Entries[2].Identifier)
	assert.Equal(t, loot.EntryEmpty, pool.Entries[3].Kind)
	assert.Empty(t, pool.Entries[3].Identifier)

	alt := pool.Entries[4]
	assert.Equal(t, loot.EntryAlternatives, alt.Kind)
	require.Len(t, alt.Children, 2)
	assert.Equal(t, loot.EntryTag, alt.Children[0].Kind)
	assert.Equal(t, loot.Params{{Key: "expand", Value: true}}, alt.Children[0].Extra)
	assert.Equal(t, loot.EntryUnknown, alt.Children[1].Kind)
	assert.Equal(t, "mymod:mystery", alt.Children[1].Type)

	require.Len(t, s.Functions, 1)
	assert.Equal(t, []string{"level", "treasure"}, s.Functions[0].Params.Keys())
	assert.Equal(t, []string{"__comment"}, s.Extra.Keys())
}

func TestMarshalDefaultingRules(t *testing.T) {
	s := loot.Structure{
		Kind: "minecraft:chest",
		Pools: []loot.Pool{
			loot.NewPool(loot.Constant{Value: 1},
				loot.Item("minecraft:emerald", 10),
				loot.Item("minecraft:diamond", 1),
			),
		},
	}
	out, err := MarshalCompact(s)
	require.NoError(t, err)
	assert.Equal(t,
		`{"type":"minecraft:chest","pools":[{"rolls":1,"entries":[`+
			`{"type":"minecraft:item","name":"minecraft:emerald","weight":10},`+
			`{"type":"minecraft:item","name":"minecraft:diamond"}]}]}`,
		string(out))
}

func TestMarshalProvidersAndBonusRolls(t *testing.T) {
	pool := loot.Pool{
		Rolls:      loot.Uniform{Low: 2, High: 4},
		BonusRolls: loot.Binomial{N: 3, P: 0.25},
		Entries:    []loot.Entry{loot.Item("minecraft:bone", 1)},
	}
	pool.Entries[0].Quality = 2
	pool.Entries[0].Functions = []loot.Function{loot.SetCount(loot.Constant{Value: 2.5})}

	out, err := MarshalPool(pool)
	require.NoError(t, err)
	assert.Equal(t,
		`{"rolls":{"type":"minecraft:uniform","min":2,"max":4},`+
			`"bonus_rolls":{"type":"minecraft:binomial","n":3,"p":0.25},`+
			`"entries":[{"type":"minecraft:item","name":"minecraft:bone","quality":2,`+
			`"functions":[{"function":"minecraft:set_count","count":2.5}]}]}`,
		string(out))
}

func TestConstantObjectIsEmittedBare(t *testing.T) {
	raw := `{"pools":[{"rolls":{"type":"minecraft:constant","value":2.0},"bonus_rolls":{"type":"minecraft:constant","value":0},"entries":[]}]}`
	s, err := Parse("x", []byte(raw))
	require.NoError(t, err)
	out, err := MarshalCompact(s)
	require.NoError(t, err)
	assert.Equal(t, `{"pools":[{"rolls":2,"entries":[]}]}`, string(out))
}

func TestUnknownProviderIsPreserved(t *testing.T) {
	raw := `{"pools":[{"rolls":{"type":"minecraft:score","target":"this","score":"kills"},"bonus_rolls":{"type":"minecraft:storage","storage":"a:b","path":"x"},"entries":[]}]}`
	s, err := Parse("x", []byte(raw))
	require.NoError(t, err)
	_, opaque := s.Pools[0].Rolls.(loot.Opaque)
	assert.True(t, opaque)
	out, err := MarshalCompact(s)
	require.NoError(t, err)
	assert.Equal(t, raw, string(out))
}

func TestScalarAndNullRollsRoundTrip(t *testing.T) {
	for _, raw := range []string{
		`{"pools":[{"rolls":"2","entries":[]}]}`,
		`{"pools":[{"rolls":null,"entries":[]}]}`,
		`{"pools":[{"rolls":1,"bonus_rolls":null,"entries":[]}]}`,
		`{"pools":[{"rolls":true,"bonus_rolls":"x","entries":[]}]}`,
	} {
		s, err := Parse("x", []byte(raw))
		require.NoError(t, err, raw)
		_, opaque := s.Pools[0].Rolls.(loot.Opaque)
		assert.Equal(t, !strings.Contains(raw, `"rolls":1`), opaque, raw)
		out, err := MarshalCompact(s)
		require.NoError(t, err)
		assert.Equal(t, raw, string(out))
	}
}

func TestUnknownFieldsRoundTripVerbatim(t *testing.T) {
	s, err := Parse("minecraft:chests/village", []byte(villageChest))
	require.NoError(t, err)
	out, err := Marshal(s)
	require.NoError(t, err)

	again, err := Parse("minecraft:chests/village", out)
	require.NoError(t, err)
	assert.Equal(t, s, again)
	assert.Contains(t, string(out), `"__comment": "kept"`)
	assert.Contains(t, string(out), `"type": "mymod:mystery"`)
	assert.NotContains(t, string(out), `"bonus_rolls"`)
}

func TestLegacyTableReferenceName(t *testing.T) {
	raw := `{"pools":[{"rolls":1,"entries":[{"type":"loot_table","name":"minecraft:chests/old"}]}]}`
	s, err := Parse("x", []byte(raw))
	require.NoError(t, err)
	e := s.Pools[0].Entries[0]
	assert.Equal(t, loot.EntryTableRef, e.Kind)
	assert.Equal(t, "minecraft:chests/old", e.Identifier)

	out, err := MarshalCompact(s)
	require.NoError(t, err)
	assert.Equal(t, `{"pools":[{"rolls":1,"entries":[{"type":"loot_table","value":"minecraft:chests/old"}]}]}`, string(out))
}

func TestInlineTableReferenceIsKeptOpaque(t *testing.T) {
	raw := `{"pools":[{"rolls":1,"entries":[{"type":"minecraft:loot_table","value":{"pools":[]}}]}]}`
	s, err := Parse("x", []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, loot.EntryUnknown, s.Pools[0].Entries[0].Kind)
	out, err := MarshalCompact(s)
	require.NoError(t, err)
	assert.Equal(t, raw, string(out))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("bad", []byte(`{"pools": [`))
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.Equal(t, "bad", perr.ID)

	_, err = Parse("shape", []byte(`{"pools": {}}`))
	require.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "pools")

	_, err = Parse("entry", []byte(`{"pools": [{"rolls": 1, "entries": [3]}]}`))
	require.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "pools[0].entries[0]")

	_, err = Parse("empty", []byte("  "))
	assert.ErrorIs(t, err, ErrMissingSource)
}

type mapSource map[string]string

func (m mapSource) RawJSON(id string) ([]byte, bool) {
	raw, ok := m[id]
	return []byte(raw), ok
}

func TestLoadAbsentIsNotAnError(t *testing.T) {
	src := mapSource{"a": `{"pools":[]}`}
	_, ok, err := Load(src, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	s, ok, err := Load(src, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", s.ID)
}

func TestFragmentsRoundTrip(t *testing.T) {
	fn := loot.Function{
		Kind:       "minecraft:enchant_randomly",
		Params:     loot.Params{{Key: "options", Value: "#minecraft:on_random_loot"}},
		Conditions: []loot.Condition{loot.RandomChance(0.3)},
	}
	raw, err := MarshalFunction(fn)
	require.NoError(t, err)
	back, err := UnmarshalFunction(raw)
	require.NoError(t, err)
	assert.Equal(t, fn, back)

	cond := loot.RandomChance(0.1)
	raw, err = MarshalCondition(cond)
	require.NoError(t, err)
	gotCond, err := UnmarshalCondition(raw)
	require.NoError(t, err)
	assert.Equal(t, cond, gotCond)

	raw, err = MarshalProvider(loot.Binomial{N: 4, P: 0.5})
	require.NoError(t, err)
	p, err := UnmarshalProvider(raw)
	require.NoError(t, err)
	assert.Equal(t, loot.Binomial{N: 4, P: 0.5}, p)

	_, err = UnmarshalEntry([]byte(`[]`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRoundTripRandomStructures(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 200; i++ {
		s := randomStructure(rng, fmt.Sprintf("fuzz:table_%d", i))
		out, err := Marshal(s)
		require.NoError(t, err)
		back, err := Parse(s.ID, out)
		require.NoError(t, err, string(out))
		require.Equal(t, s, back, string(out))
	}
}

func randomStructure(rng *rand.Rand, id string) loot.Structure {
	s := loot.Structure{ID: id, Kind: "minecraft:chest"}
	if rng.IntN(3) == 0 {
		s.RandomSequence = id
	}
	for p := rng.IntN(4); p > 0; p-- {
		pool := loot.NewPool(randomProvider(rng))
		if rng.IntN(2) == 0 {
			pool.BonusRolls = loot.Constant{Value: float64(1 + rng.IntN(3))}
		}
		for e := rng.IntN(5); e > 0; e-- {
			pool.Entries = append(pool.Entries, randomEntry(rng, 2))
		}
		if rng.IntN(3) == 0 {
			pool.Conditions = []loot.Condition{loot.RandomChance(float64(rng.IntN(100)) / 100)}
		}
		s.Pools = append(s.Pools, pool)
	}
	if rng.IntN(4) == 0 {
		s.Functions = []loot.Function{{Kind: "minecraft:explosion_decay"}}
	}
	return s
}

func randomProvider(rng *rand.Rand) loot.NumberProvider {
	switch rng.IntN(3) {
	case 0:
		return loot.Constant{Value: float64(rng.IntN(6)) / 2}
	case 1:
		lo := float64(rng.IntN(4))
		return loot.Uniform{Low: lo, High: lo + float64(rng.IntN(4))}
	default:
		return loot.Binomial{N: 1 + rng.IntN(5), P: float64(rng.IntN(10)) / 10}
	}
}

func randomEntry(rng *rand.Rand, depth int) loot.Entry {
	var e loot.Entry
	switch k := rng.IntN(6); {
	case k == 0:
		e = loot.TableRef("minecraft:chests/ref", rng.IntN(20))
	case k == 1:
		e = loot.Tag("minecraft:planks", rng.IntN(20))
	case k == 2:
		e = loot.Empty(rng.IntN(20))
	case k == 3 && depth > 0:
		e = loot.Composite(loot.EntryGroup, randomEntry(rng, depth-1), randomEntry(rng, depth-1))
	default:
		e = loot.Item(fmt.Sprintf("minecraft:item_%d", rng.IntN(50)), rng.IntN(20))
	}
	e.Quality = rng.IntN(3) - 1
	if rng.IntN(2) == 0 {
		e.Functions = []loot.Function{loot.SetCount(randomProvider(rng))}
	}
	if rng.IntN(3) == 0 {
		e.Conditions = []loot.Condition{loot.RandomChance(0.5)}
	}
	return e
}
