package droprate

import (
	"sort"

	"lootforge/internal/loot"
)

// Rate is the selection probability of one item entry within its pool.
type Rate struct {
	EntryIndex   int     `json:"entry_index"`
	Identifier   string  `json:"identifier"`
	Weight       int     `json:"weight"`
	Probability  float64 `json:"probability"`
	AverageCount float64 `json:"average_count"`
	CountRange   string  `json:"count_range"`
}

// PoolReport summarises one pool. Rates is empty when the pool's total weight is zero.
type PoolReport struct {
	PoolIndex     int     `json:"pool_index"`
	TotalWeight   int     `json:"total_weight"`
	AverageRolls  float64 `json:"average_rolls"`
	ExpectedItems float64 `json:"expected_items"`
	Rates         []Rate  `json:"rates"`
}

// ItemTotal is the expected number of one item per roll of the whole table.
type ItemTotal struct {
	Identifier string  `json:"identifier"`
	Expected   float64 `json:"expected"`
	Pools      []int   `json:"pools"`
}

type Report struct {
	DocumentID string       `json:"document_id"`
	Pools      []PoolReport `json:"pools"`
	Items      []ItemTotal  `json:"items"`
}

// AverageCount is the mean stack size of e: the mean of its set_count provider, or 1.
func AverageCount(e loot.Entry) float64 {
	p, ok := e.Count()
	if !ok {
		return 1
	}
	mean, ok := loot.Mean(p)
	if !ok {
		return 1
	}
	return mean
}

// AverageRolls is the midpoint of the pool's roll range. Bonus rolls only apply with a
// luck attribute and are left out of this baseline.
func AverageRolls(p loot.Pool) float64 {
	if p.Rolls == nil {
		return 1
	}
	if _, ok := p.Rolls.(loot.Opaque); ok {
		return 1
	}
	return (p.Rolls.Min() + p.Rolls.Max()) / 2
}

// ForPool lists the item entries of p by descending probability. Entries of other kinds
// count toward the total weight but are not listed. Equal probabilities keep entry order.
func ForPool(p loot.Pool) []Rate {
	total := p.TotalWeight()
	if total == 0 {
		return nil
	}
	var rates []Rate
	for i, e := range p.Entries {
		if e.Kind != loot.EntryItem {
			continue
		}
		w := e.Weight
		if w < 0 {
			w = 0
		}
		count, _ := e.Count()
		rates = append(rates, Rate{
			EntryIndex:   i,
			Identifier:   e.Identifier,
			Weight:       w,
			Probability:  float64(w) / float64(total),
			AverageCount: AverageCount(e),
			CountRange:   loot.RangeString(count),
		})
	}
	sort.SliceStable(rates, func(i, j int) bool {
		return rates[i].Probability > rates[j].Probability
	})
	return rates
}

// ForPoolReport computes the rates of p together with its expected item count per roll of the table.
func ForPoolReport(index int, p loot.Pool) PoolReport {
	r := PoolReport{
		PoolIndex:    index,
		TotalWeight:  p.TotalWeight(),
		AverageRolls: AverageRolls(p),
		Rates:        ForPool(p),
	}
	for _, rate := range r.Rates {
		r.ExpectedItems += rate.Probability * rate.AverageCount
	}
	r.ExpectedItems *= r.AverageRolls
	if r.Rates == nil {
		r.Rates = []Rate{}
	}
	return r
}

// ForStructure reports every pool of s and the expected total per item.
func ForStructure(s loot.Structure) Report {
	rep := Report{DocumentID: s.ID, Pools: make([]PoolReport, 0, len(s.Pools))}
	totals := map[string]*ItemTotal{}
	for i, p := range s.Pools {
		pr := ForPoolReport(i, p)
		rep.Pools = append(rep.Pools, pr)
		for _, rate := range pr.Rates {
			t := totals[rate.Identifier]
			if t == nil {
				t = &ItemTotal{Identifier: rate.Identifier}
				totals[rate.Identifier] = t
			}
			t.Expected += rate.Probability * rate.AverageCount * pr.AverageRolls
			if n := len(t.Pools); n == 0 || t.Pools[n-1] != i {
				t.Pools = append(t.Pools, i)
			}
		}
	}
	rep.Items = make([]ItemTotal, 0, len(totals))
	for _, t := range totals {
		rep.Items = append(rep.Items, *t)
	}
	sort.Slice(rep.Items, func(i, j int) bool {
		if rep.Items[i].Expected != rep.Items[j].Expected {
			return rep.Items[i].Expected > rep.Items[j].Expected
		}
		return rep.Items[i].Identifier < rep.Items[j].Identifier
	})
	return rep
}
