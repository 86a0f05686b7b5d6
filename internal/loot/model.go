package loot

import "strings"

// EntryKind is the closed set of entry variants.
type EntryKind int

const (
	EntryUnknown EntryKind = iota
	EntryItem
	EntryTableRef
	EntryTag
	EntryEmpty
	EntryAlternatives
	EntrySequence
	EntryGroup
	EntryDynamic
)

var entryTypeNames = map[EntryKind]string{
	EntryItem:         "minecraft:item",
	EntryTableRef:     "minecraft:loot_table",
	EntryTag:          "minecraft:tag",
	EntryEmpty:        "minecraft:empty",
	EntryAlternatives: "minecraft:alternatives",
	EntrySequence:     "minecraft:sequence",
	EntryGroup:        "minecraft:group",
	EntryDynamic:      "minecraft:dynamic",
}

func (k EntryKind) String() string {
	switch k {
	case EntryItem:
		return "Item"
	case EntryTableRef:
		return "TableRef"
	case EntryTag:
		return "Tag"
	case EntryEmpty:
		return "Empty"
	case EntryAlternatives:
		return "Alternatives"
	case EntrySequence:
		return "Sequence"
	case EntryGroup:
		return "Group"
	case EntryDynamic:
		return "Dynamic"
	default:
		return "Unknown"
	}
}

// TypeName is the canonical document discriminator for k ("" for Unknown).
func (k EntryKind) TypeName() string {
	return entryTypeNames[k]
}

// HasIdentifier reports whether entries of this kind carry an identifier.
func (k EntryKind) HasIdentifier() bool {
	return k == EntryItem || k == EntryTableRef || k == EntryTag
}

// IsComposite reports whether entries of this kind hold children.
func (k EntryKind) IsComposite() bool {
	return k == EntryAlternatives || k == EntrySequence || k == EntryGroup
}

// KindFromType maps a document "type" value to an entry kind. The namespace is optional.
func KindFromType(t string) EntryKind {
	t = canonicalType(t)
	for k, name := range entryTypeNames {
		if name == t {
			return k
		}
	}
	return EntryUnknown
}

// Condition is a predicate kept as an opaque parameter bag.
type Condition struct {
	Kind   string
	Params Params
}

// Function is a post-selection modifier kept as an opaque parameter bag.
type Function struct {
	Kind       string
	Params     Params
	Conditions []Condition
}

const (
	FunctionSetCount      = "minecraft:set_count"
	ConditionRandomChance = "minecraft:random_chance"
)

// IsSetCount reports whether f sets the stack count.
func (f Function) IsSetCount() bool {
	return canonicalType(f.Kind) == FunctionSetCount
}

// Count decodes the "count" parameter of a set_count function.
func (f Function) Count() (NumberProvider, bool) {
	if !f.IsSetCount() {
		return nil, false
	}
	v, ok := f.Params.Get("count")
	if !ok {
		return nil, false
	}
	p := ProviderFromValue(v)
	return p, p != nil
}

// IsRandomChance reports whether c is the well-known random_chance condition.
func (c Condition) IsRandomChance() bool {
	return canonicalType(c.Kind) == ConditionRandomChance
}

// Entry is one candidate outcome within a pool.
type Entry struct {
	Kind EntryKind
	// Type is the raw discriminator as written in the document.
	Type       string
	Identifier string
	Weight     int
	Quality    int
	Conditions []Condition
	Functions  []Function
	Children   []Entry
	Extra      Params
}

// CountFunction returns the first set_count function of e.
func (e Entry) CountFunction() (int, Function, bool) {
	for i, fn := range e.Functions {
		if fn.IsSetCount() {
			return i, fn, true
		}
	}
	return -1, Function{}, false
}

// Count returns the provider of e's first set_count function.
func (e Entry) Count() (NumberProvider, bool) {
	_, fn, ok := e.CountFunction()
	if !ok {
		return nil, false
	}
	return fn.Count()
}

// Pool is a weighted-selection group rolled Rolls times.
type Pool struct {
	Name       string
	Rolls      NumberProvider
	BonusRolls NumberProvider
	Entries    []Entry
	Conditions []Condition
	Functions  []Function
	Extra      Params
}

// TotalWeight is Σ max(weight, 0) over the pool's entries.
func (p Pool) TotalWeight() int {
	total := 0
	for _, e := range p.Entries {
		if e.Weight > 0 {
			total += e.Weight
		}
	}
	return total
}

// Structure is one parsed loot-table document. Values are treated as immutable.
type Structure struct {
	ID             string
	Kind           string
	Pools          []Pool
	Functions      []Function
	RandomSequence string
	Extra          Params
}

// Item builds an item entry with the given weight.
func Item(id string, weight int) Entry {
	return Entry{Kind: EntryItem, Type: EntryItem.TypeName(), Identifier: id, Weight: weight}
}

// TableRef builds a reference to another loot table.
func TableRef(id string, weight int) Entry {
	return Entry{Kind: EntryTableRef, Type: EntryTableRef.TypeName(), Identifier: id, Weight: weight}
}

// Tag builds an item-tag entry.
func Tag(id string, weight int) Entry {
	return Entry{Kind: EntryTag, Type: EntryTag.TypeName(), Identifier: id, Weight: weight}
}

// Empty builds an entry that yields nothing.
func Empty(weight int) Entry {
	return Entry{Kind: EntryEmpty, Type: EntryEmpty.TypeName(), Weight: weight}
}

// Composite builds an alternatives/sequence/group entry.
func Composite(kind EntryKind, children ...Entry) Entry {
	return Entry{Kind: kind, Type: kind.TypeName(), Weight: 1, Children: children}
}

// NewPool builds a pool with no bonus rolls.
func NewPool(rolls NumberProvider, entries ...Entry) Pool {
	return Pool{Rolls: rolls, BonusRolls: Constant{}, Entries: entries}
}

// SetCount builds a set_count function for count.
func SetCount(count NumberProvider) Function {
	return Function{
		Kind:   FunctionSetCount,
		Params: Params{{Key: "count", Value: ProviderValue(count)}},
	}
}

// RandomChance builds a random_chance condition.
func RandomChance(chance float64) Condition {
	return Condition{
		Kind:   ConditionRandomChance,
		Params: Params{{Key: "chance", Value: Number(chance)}},
	}
}

// DefaultNamespace is assumed for ids written without one.
const DefaultNamespace = "minecraft"

// SplitID splits "ns:path" into namespace and path.
func SplitID(id string) (string, string) {
	id = strings.TrimSpace(id)
	if i := strings.Index(id, ":"); i >= 0 {
		return id[:i], id[i+1:]
	}
	return DefaultNamespace, id
}

// LocalName is the path part of a namespaced id.
func LocalName(id string) string {
	_, path := SplitID(id)
	return path
}

// NormalizeID adds the default namespace when missing.
func NormalizeID(id string) string {
	ns, path := SplitID(id)
	return ns + ":" + path
}
