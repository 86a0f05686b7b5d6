package delta

import (
	"fmt"
	"strconv"

	"lootforge/internal/loot"
)

type ChangeKind string

const (
	AddedPool          ChangeKind = "added_pool"
	RemovedPool        ChangeKind = "removed_pool"
	AddedEntry         ChangeKind = "added_entry"
	RemovedEntry       ChangeKind = "removed_entry"
	ModifiedIdentifier ChangeKind = "modified_identifier"
	ModifiedWeight     ChangeKind = "modified_weight"
	ModifiedCount      ChangeKind = "modified_count"
	ModifiedRolls      ChangeKind = "modified_rolls"
)

// Change records one difference. Entry is -1 for pool-level changes.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	Field  string     `json:"field"`
	Pool   int        `json:"pool"`
	Entry  int        `json:"entry"`
	Before string     `json:"before,omitempty"`
	After  string     `json:"after,omitempty"`
}

// Delta captures the changes between two versions of a structure.
type Delta struct {
	Additions     []Change `json:"additions"`
	Removals      []Change `json:"removals"`
	Modifications []Change `json:"modifications"`
	TotalChanges  int      `json:"total_changes"`
}

// Options controls diff behavior.
type Options struct {
	// MaxChanges stops the walk once this many changes are recorded; <= 0 means no limit.
	MaxChanges int
	// IncludeRolls adds ModifiedRolls changes for common pools.
	IncludeRolls bool
}

// Compare diffs a against b by position: pool i of a is compared with pool i of b and
// entry j with entry j. Indices present on one side only are additions or removals,
// never modifications.
func Compare(a, b loot.Structure) Delta {
	return CompareWith(a, b, Options{})
}

func CompareWith(a, b loot.Structure, opts Options) Delta {
	remaining := -1
	if opts.MaxChanges > 0 {
		remaining = opts.MaxChanges
	}
	d := Delta{}
	common := min(len(a.Pools), len(b.Pools))
	for i := 0; i < common; i++ {
		diffPool(i, a.Pools[i], b.Pools[i], opts, &d, &remaining)
	}
	for i := common; i < len(b.Pools); i++ {
		record(&d.Additions, Change{Kind: AddedPool, Field: poolPath(i), Pool: i, Entry: -1,
			After: describePool(b.Pools[i])}, &remaining)
	}
	for i := common; i < len(a.Pools); i++ {
		record(&d.Removals, Change{Kind: RemovedPool, Field: poolPath(i), Pool: i, Entry: -1,
			Before: describePool(a.Pools[i])}, &remaining)
	}
	Normalize(&d)
	return d
}

func diffPool(pi int, a, b loot.Pool, opts Options, d *Delta, remaining *int) {
	if ra, rb := loot.RangeString(a.Rolls), loot.RangeString(b.Rolls); opts.IncludeRolls && ra != rb {
		record(&d.Modifications, Change{Kind: ModifiedRolls, Field: joinPath(poolPath(pi), "rolls"),
			Pool: pi, Entry: -1, Before: ra, After: rb}, remaining)
	}
	common := min(len(a.Entries), len(b.Entries))
	for j := 0; j < common; j++ {
		diffEntry(pi, j, a.Entries[j], b.Entries[j], d, remaining)
	}
	for j := common; j < len(b.Entries); j++ {
		record(&d.Additions, Change{Kind: AddedEntry, Field: entryPath(pi, j), Pool: pi, Entry: j,
			After: describeEntry(b.Entries[j])}, remaining)
	}
	for j := common; j < len(a.Entries); j++ {
		record(&d.Removals, Change{Kind: RemovedEntry, Field: entryPath(pi, j), Pool: pi, Entry: j,
			Before: describeEntry(a.Entries[j])}, remaining)
	}
}

func diffEntry(pi, ei int, a, b loot.Entry, d *Delta, remaining *int) {
	base := entryPath(pi, ei)
	if a.Identifier != b.Identifier {
		record(&d.Modifications, Change{Kind: ModifiedIdentifier, Field: joinPath(base, "identifier"),
			Pool: pi, Entry: ei, Before: a.Identifier, After: b.Identifier}, remaining)
	}
	if a.Weight != b.Weight {
		record(&d.Modifications, Change{Kind: ModifiedWeight, Field: joinPath(base, "weight"),
			Pool: pi, Entry: ei, Before: strconv.Itoa(a.Weight), After: strconv.Itoa(b.Weight)}, remaining)
	}
	if ca, cb := CountString(a), CountString(b); ca != cb {
		record(&d.Modifications, Change{Kind: ModifiedCount, Field: joinPath(base, "count"),
			Pool: pi, Entry: ei, Before: ca, After: cb}, remaining)
	}
}

// CountString renders the stack size of e: "n" for a point value, "min-max" for a range
// and "1" when the entry sets no count.
func CountString(e loot.Entry) string {
	p, ok := e.Count()
	if !ok {
		return "1"
	}
	return loot.RangeString(p)
}

func record(dst *[]Change, c Change, remaining *int) {
	if remaining != nil && *remaining == 0 {
		return
	}
	*dst = append(*dst, c)
	if remaining != nil && *remaining > 0 {
		*remaining--
	}
}

// Normalize ensures delta slices are non-nil for downstream stability and recomputes
// the total.
func Normalize(d *Delta) {
	if d == nil {
		return
	}
	if d.Additions == nil {
		d.Additions = []Change{}
	}
	if d.Removals == nil {
		d.Removals = []Change{}
	}
	if d.Modifications == nil {
		d.Modifications = []Change{}
	}
	d.TotalChanges = len(d.Additions) + len(d.Removals) + len(d.Modifications)
}

// Empty reports whether d holds no changes.
func (d Delta) Empty() bool {
	return len(d.Additions) == 0 && len(d.Removals) == 0 && len(d.Modifications) == 0
}

func describePool(p loot.Pool) string {
	return fmt.Sprintf("rolls %s, %d entries", loot.RangeString(p.Rolls), len(p.Entries))
}

func describeEntry(e loot.Entry) string {
	if e.Identifier != "" {
		return e.Kind.String() + " " + e.Identifier
	}
	return e.Kind.String()
}

func poolPath(i int) string { return fmt.Sprintf("pools[%d]", i) }

func entryPath(pi, ei int) string { return fmt.Sprintf("pools[%d].entries[%d]", pi, ei) }

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}
