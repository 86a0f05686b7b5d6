package droprate

import (
	"math"
	"math/rand/v2"
	"sort"

	"lootforge/internal/loot"
)

const (
	defaultTrials   = 1000
	defaultMaxDepth = 8
)

// Resolver looks up a referenced table. Absent tables simply yield nothing.
type Resolver func(id string) (loot.Structure, bool)

type SimOptions struct {
	Seed     uint64
	Trials   int
	Resolve  Resolver
	MaxDepth int
}

// SimItem aggregates one item over all trials.
type SimItem struct {
	Identifier string  `json:"identifier"`
	Total      int     `json:"total"`
	Mean       float64 `json:"mean"`
	HitRate    float64 `json:"hit_rate"`
}

type SimResult struct {
	Trials int       `json:"trials"`
	Items  []SimItem `json:"items"`
}

type simulator struct {
	rng      *rand.Rand
	resolve  Resolver
	maxDepth int
	counts   map[string]int
}

// Simulate rolls s Trials times with a seeded generator. Only random_chance conditions
// are evaluated; every other condition passes. Identical options give identical results.
func Simulate(s loot.Structure, opts SimOptions) SimResult {
	trials := opts.Trials
	if trials <= 0 {
		trials = defaultTrials
	}
	sim := &simulator{
		rng:      rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		resolve:  opts.Resolve,
		maxDepth: opts.MaxDepth,
	}
	if sim.maxDepth <= 0 {
		sim.maxDepth = defaultMaxDepth
	}

	totals := map[string]int{}
	hits := map[string]int{}
	for i := 0; i < trials; i++ {
		sim.counts = map[string]int{}
		sim.rollTable(s, 0)
		for id, n := range sim.counts {
			totals[id] += n
			if n > 0 {
				hits[id]++
			}
		}
	}

	res := SimResult{Trials: trials, Items: make([]SimItem, 0, len(totals))}
	for id, n := range totals {
		res.Items = append(res.Items, SimItem{
			Identifier: id,
			Total:      n,
			Mean:       float64(n) / float64(trials),
			HitRate:    float64(hits[id]) / float64(trials),
		})
	}
	sort.Slice(res.Items, func(i, j int) bool {
		if res.Items[i].Total != res.Items[j].Total {
			return res.Items[i].Total > res.Items[j].Total
		}
		return res.Items[i].Identifier < res.Items[j].Identifier
	})
	return res
}

func (sim *simulator) rollTable(s loot.Structure, depth int) {
	for _, p := range s.Pools {
		sim.rollPool(p, depth)
	}
}

func (sim *simulator) rollPool(p loot.Pool, depth int) {
	if !sim.passes(p.Conditions) {
		return
	}
	rolls := 1
	if p.Rolls != nil {
		rolls = int(math.Round(p.Rolls.Sample(sim.rng)))
	}
	for r := 0; r < rolls; r++ {
		if e, ok := sim.pick(p.Entries); ok {
			sim.expand(e, depth)
		}
	}
}

// pick chooses among entries whose conditions pass by cumulative weight; ties resolve
// to the earlier entry.
func (sim *simulator) pick(entries []loot.Entry) (loot.Entry, bool) {
	candidates := make([]loot.Entry, 0, len(entries))
	total := 0
	for _, e := range entries {
		if e.Weight <= 0 || !sim.passes(e.Conditions) {
			continue
		}
		candidates = append(candidates, e)
		total += e.Weight
	}
	if total == 0 {
		return loot.Entry{}, false
	}
	r := sim.rng.IntN(total)
	cum := 0
	for _, e := range candidates {
		cum += e.Weight
		if r < cum {
			return e, true
		}
	}
	return loot.Entry{}, false
}

func (sim *simulator) expand(e loot.Entry, depth int) {
	switch e.Kind {
	case loot.EntryItem:
		if n := sim.count(e); n > 0 {
			sim.counts[e.Identifier] += n
		}
	case loot.EntryTableRef:
		if sim.resolve == nil || depth >= sim.maxDepth {
			return
		}
		if ref, ok := sim.resolve(e.Identifier); ok {
			sim.rollTable(ref, depth+1)
		}
	case loot.EntryAlternatives:
		for _, c := range e.Children {
			if sim.passes(c.Conditions) {
				sim.expand(c, depth)
				return
			}
		}
	case loot.EntrySequence:
		for _, c := range e.Children {
			if !sim.passes(c.Conditions) {
				return
			}
			sim.expand(c, depth)
		}
	case loot.EntryGroup:
		for _, c := range e.Children {
			if sim.passes(c.Conditions) {
				sim.expand(c, depth)
			}
		}
	}
}

func (sim *simulator) count(e loot.Entry) int {
	_, fn, ok := e.CountFunction()
	if !ok || !sim.passes(fn.Conditions) {
		return 1
	}
	p, ok := fn.Count()
	if !ok {
		return 1
	}
	return int(math.Round(p.Sample(sim.rng)))
}

func (sim *simulator) passes(conds []loot.Condition) bool {
	for _, c := range conds {
		if !c.IsRandomChance() {
			continue
		}
		chance, ok := c.Params.Float("chance")
		if !ok {
			continue
		}
		if sim.rng.Float64() >= chance {
			return false
		}
	}
	return true
}
