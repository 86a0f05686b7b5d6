package edit

import (
	"fmt"

	"lootforge/internal/loot"
)

// Kind names an operation variant. It is also the "op" discriminator on the wire.
type Kind string

const (
	KindAddPool              Kind = "add_pool"
	KindRemovePool           Kind = "remove_pool"
	KindModifyPoolRolls      Kind = "modify_pool_rolls"
	KindAddEntry             Kind = "add_entry"
	KindRemoveEntry          Kind = "remove_entry"
	KindModifyEntryWeight    Kind = "modify_entry_weight"
	KindModifyEntryID        Kind = "modify_entry_identifier"
	KindSetEntryCount        Kind = "set_entry_count"
	KindAddEntryFunction     Kind = "add_entry_function"
	KindRemoveEntryFunction  Kind = "remove_entry_function"
	KindAddEntryCondition    Kind = "add_entry_condition"
	KindRemoveEntryCondition Kind = "remove_entry_condition"
	KindAddPoolFunction      Kind = "add_pool_function"
	KindRemovePoolFunction   Kind = "remove_pool_function"
	KindAddPoolCondition     Kind = "add_pool_condition"
	KindRemovePoolCondition  Kind = "remove_pool_condition"
)

// Kinds lists every operation kind in declaration order.
var Kinds = []Kind{
	KindAddPool, KindRemovePool, KindModifyPoolRolls,
	KindAddEntry, KindRemoveEntry, KindModifyEntryWeight, KindModifyEntryID, KindSetEntryCount,
	KindAddEntryFunction, KindRemoveEntryFunction, KindAddEntryCondition, KindRemoveEntryCondition,
	KindAddPoolFunction, KindRemovePoolFunction, KindAddPoolCondition, KindRemovePoolCondition,
}

// Operation is one atomic edit instruction. The set of implementations is closed:
// Apply, the codec and every other consumer switch over all sixteen.
type Operation interface {
	Kind() Kind
	fmt.Stringer
	isOperation()
}

type AddPool struct {
	Pool loot.Pool
}

type RemovePool struct {
	PoolIndex int
}

// ModifyPoolRolls replaces the roll providers of a pool. A nil provider keeps the current one.
type ModifyPoolRolls struct {
	PoolIndex  int
	Rolls      loot.NumberProvider
	BonusRolls loot.NumberProvider
}

type AddEntry struct {
	PoolIndex int
	Entry     loot.Entry
}

type RemoveEntry struct {
	PoolIndex  int
	EntryIndex int
}

type ModifyEntryWeight struct {
	PoolIndex  int
	EntryIndex int
	Weight     int
}

type ModifyEntryIdentifier struct {
	PoolIndex  int
	EntryIndex int
	Identifier string
}

// SetEntryCount rewrites the count of the entry's first set_count function,
// inserting one when the entry has none.
type SetEntryCount struct {
	PoolIndex  int
	EntryIndex int
	Count      loot.NumberProvider
}

type AddEntryFunction struct {
	PoolIndex  int
	EntryIndex int
	Function   loot.Function
}

type RemoveEntryFunction struct {
	PoolIndex     int
	EntryIndex    int
	FunctionIndex int
}

type AddEntryCondition struct {
	PoolIndex  int
	EntryIndex int
	Condition  loot.Condition
}

type RemoveEntryCondition struct {
	PoolIndex      int
	EntryIndex     int
	ConditionIndex int
}

type AddPoolFunction struct {
	PoolIndex int
	Function  loot.Function
}

type RemovePoolFunction struct {
	PoolIndex     int
	FunctionIndex int
}

type AddPoolCondition struct {
	PoolIndex int
	Condition loot.Condition
}

type RemovePoolCondition struct {
	PoolIndex      int
	ConditionIndex int
}

func (AddPool) Kind() Kind               { return KindAddPool }
func (RemovePool) Kind() Kind            { return KindRemovePool }
func (ModifyPoolRolls) Kind() Kind       { return KindModifyPoolRolls }
func (AddEntry) Kind() Kind              { return KindAddEntry }
func (RemoveEntry) Kind() Kind           { return KindRemoveEntry }
func (ModifyEntryWeight) Kind() Kind     { return KindModifyEntryWeight }
func (ModifyEntryIdentifier) Kind() Kind { return KindModifyEntryID }
func (SetEntryCount) Kind() Kind         { return KindSetEntryCount }
func (AddEntryFunction) Kind() Kind      { return KindAddEntryFunction }
func (RemoveEntryFunction) Kind() Kind   { return KindRemoveEntryFunction }
func (AddEntryCondition) Kind() Kind     { return KindAddEntryCondition }
func (RemoveEntryCondition) Kind() Kind  { return KindRemoveEntryCondition }
func (AddPoolFunction) Kind() Kind       { return KindAddPoolFunction }
func (RemovePoolFunction) Kind() Kind    { return KindRemovePoolFunction }
func (AddPoolCondition) Kind() Kind      { return KindAddPoolCondition }
func (RemovePoolCondition) Kind() Kind   { return KindRemovePoolCondition }

func (AddPool) isOperation()               {}
func (RemovePool) isOperation()            {}
func (ModifyPoolRolls) isOperation()       {}
func (AddEntry) isOperation()              {}
func (RemoveEntry) isOperation()           {}
func (ModifyEntryWeight) isOperation()     {}
func (ModifyEntryIdentifier) isOperation() {}
func (SetEntryCount) isOperation()         {}
func (AddEntryFunction) isOperation()      {}
func (RemoveEntryFunction) isOperation()   {}
func (AddEntryCondition) isOperation()     {}
func (RemoveEntryCondition) isOperation()  {}
func (AddPoolFunction) isOperation()       {}
func (RemovePoolFunction) isOperation()    {}
func (AddPoolCondition) isOperation()      {}
func (RemovePoolCondition) isOperation()   {}

func (o AddPool) String() string {
	return fmt.Sprintf("add pool (%d entries)", len(o.Pool.Entries))
}

func (o RemovePool) String() string {
	return fmt.Sprintf("remove pool %d", o.PoolIndex)
}

func (o ModifyPoolRolls) String() string {
	s := fmt.Sprintf("pool %d rolls", o.PoolIndex)
	if o.Rolls != nil {
		s += " = " + loot.RangeString(o.Rolls)
	}
	if o.BonusRolls != nil {
		s += ", bonus = " + loot.RangeString(o.BonusRolls)
	}
	return s
}

func (o AddEntry) String() string {
	if o.Entry.Identifier != "" {
		return fmt.Sprintf("pool %d: add %s %s", o.PoolIndex, o.Entry.Kind, o.Entry.Identifier)
	}
	return fmt.Sprintf("pool %d: add %s entry", o.PoolIndex, o.Entry.Kind)
}

func (o RemoveEntry) String() string {
	return fmt.Sprintf("pool %d: remove entry %d", o.PoolIndex, o.EntryIndex)
}

func (o ModifyEntryWeight) String() string {
	return fmt.Sprintf("pool %d entry %d: weight = %d", o.PoolIndex, o.EntryIndex, o.Weight)
}

func (o ModifyEntryIdentifier) String() string {
	return fmt.Sprintf("pool %d entry %d: identifier = %s", o.PoolIndex, o.EntryIndex, o.Identifier)
}

func (o SetEntryCount) String() string {
	return fmt.Sprintf("pool %d entry %d: count = %s", o.PoolIndex, o.EntryIndex, loot.RangeString(o.Count))
}

func (o AddEntryFunction) String() string {
	return fmt.Sprintf("pool %d entry %d: add function %s", o.PoolIndex, o.EntryIndex, o.Function.Kind)
}

func (o RemoveEntryFunction) String() string {
	return fmt.Sprintf("pool %d entry %d: remove function %d", o.PoolIndex, o.EntryIndex, o.FunctionIndex)
}

func (o AddEntryCondition) String() string {
	return fmt.Sprintf("pool %d entry %d: add condition %s", o.PoolIndex, o.EntryIndex, o.Condition.Kind)
}

func (o RemoveEntryCondition) String() string {
	return fmt.Sprintf("pool %d entry %d: remove condition %d", o.PoolIndex, o.EntryIndex, o.ConditionIndex)
}

func (o AddPoolFunction) String() string {
	return fmt.Sprintf("pool %d: add function %s", o.PoolIndex, o.Function.Kind)
}

func (o RemovePoolFunction) String() string {
	return fmt.Sprintf("pool %d: remove function %d", o.PoolIndex, o.FunctionIndex)
}

func (o AddPoolCondition) String() string {
	return fmt.Sprintf("pool %d: add condition %s", o.PoolIndex, o.Condition.Kind)
}

func (o RemovePoolCondition) String() string {
	return fmt.Sprintf("pool %d: remove condition %d", o.PoolIndex, o.ConditionIndex)
}
