package edit

import "lootforge/internal/loot"

// Apply returns s with op applied. It never mutates s: every slice on the edited path
// is copied. Indices outside the current structure make op a no-op, so a log can be
// replayed against a base that drifted since it was recorded.
func Apply(s loot.Structure, op Operation) loot.Structure {
	switch o := op.(type) {
	case AddPool:
		s.Pools = appendCopy(s.Pools, o.Pool)
		return s
	case RemovePool:
		if !inRange(o.PoolIndex, len(s.Pools)) {
			return s
		}
		s.Pools = removeAt(s.Pools, o.PoolIndex)
		return s
	case ModifyPoolRolls:
		return updatePool(s, o.PoolIndex, func(p loot.Pool) (loot.Pool, bool) {
			if o.Rolls == nil && o.BonusRolls == nil {
				return p, false
			}
			if o.Rolls != nil {
				p.Rolls = o.Rolls
			}
			if o.BonusRolls != nil {
				p.BonusRolls = o.BonusRolls
			}
			return p, true
		})
	case AddEntry:
		return updatePool(s, o.PoolIndex, func(p loot.Pool) (loot.Pool, bool) {
			p.Entries = appendCopy(p.Entries, o.Entry)
			return p, true
		})
	case RemoveEntry:
		return updatePool(s, o.PoolIndex, func(p loot.Pool) (loot.Pool, bool) {
			if !inRange(o.EntryIndex, len(p.Entries)) {
				return p, false
			}
			p.Entries = removeAt(p.Entries, o.EntryIndex)
			return p, true
		})
	case ModifyEntryWeight:
		return updateEntry(s, o.PoolIndex, o.EntryIndex, func(e loot.Entry) (loot.Entry, bool) {
			if o.Weight < 0 {
				return e, false
			}
			e.Weight = o.Weight
			return e, true
		})
	case ModifyEntryIdentifier:
		return updateEntry(s, o.PoolIndex, o.EntryIndex, func(e loot.Entry) (loot.Entry, bool) {
			if !e.Kind.HasIdentifier() || o.Identifier == "" {
				return e, false
			}
			e.Identifier = o.Identifier
			return e, true
		})
	case SetEntryCount:
		return updateEntry(s, o.PoolIndex, o.EntryIndex, func(e loot.Entry) (loot.Entry, bool) {
			if o.Count == nil {
				return e, false
			}
			idx, fn, ok := e.CountFunction()
			if !ok {
				e.Functions = appendCopy(e.Functions, loot.SetCount(o.Count))
				return e, true
			}
			fn.Params = fn.Params.With("count", loot.ProviderValue(o.Count))
			e.Functions = replaceAt(e.Functions, idx, fn)
			return e, true
		})
	case AddEntryFunction:
		return updateEntry(s, o.PoolIndex, o.EntryIndex, func(e loot.Entry) (loot.Entry, bool) {
			e.Functions = appendCopy(e.Functions, o.Function)
			return e, true
		})
	case RemoveEntryFunction:
		return updateEntry(s, o.PoolIndex, o.EntryIndex, func(e loot.Entry) (loot.Entry, bool) {
			if !inRange(o.FunctionIndex, len(e.Functions)) {
				return e, false
			}
			e.Functions = removeAt(e.Functions, o.FunctionIndex)
			return e, true
		})
	case AddEntryCondition:
		return updateEntry(s, o.PoolIndex, o.EntryIndex, func(e loot.Entry) (loot.Entry, bool) {
			e.Conditions = appendCopy(e.Conditions, o.Condition)
			return e, true
		})
	case RemoveEntryCondition:
		return updateEntry(s, o.PoolIndex, o.EntryIndex, func(e loot.Entry) (loot.Entry, bool) {
			if !inRange(o.ConditionIndex, len(e.Conditions)) {
				return e, false
			}
			e.Conditions = removeAt(e.Conditions, o.ConditionIndex)
			return e, true
		})
	case AddPoolFunction:
		return updatePool(s, o.PoolIndex, func(p loot.Pool) (loot.Pool, bool) {
			p.Functions = appendCopy(p.Functions, o.Function)
			return p, true
		})
	case RemovePoolFunction:
		return updatePool(s, o.PoolIndex, func(p loot.Pool) (loot.Pool, bool) {
			if !inRange(o.FunctionIndex, len(p.Functions)) {
				return p, false
			}
			p.Functions = removeAt(p.Functions, o.FunctionIndex)
			return p, true
		})
	case AddPoolCondition:
		return updatePool(s, o.PoolIndex, func(p loot.Pool) (loot.Pool, bool) {
			p.Conditions = appendCopy(p.Conditions, o.Condition)
			return p, true
		})
	case RemovePoolCondition:
		return updatePool(s, o.PoolIndex, func(p loot.Pool) (loot.Pool, bool) {
			if !inRange(o.ConditionIndex, len(p.Conditions)) {
				return p, false
			}
			p.Conditions = removeAt(p.Conditions, o.ConditionIndex)
			return p, true
		})
	default:
		return s
	}
}

// ApplyAll folds ops over original left to right.
func ApplyAll(original loot.Structure, ops []Operation) loot.Structure {
	s := original
	for _, op := range ops {
		s = Apply(s, op)
	}
	return s
}

func updatePool(s loot.Structure, pi int, fn func(loot.Pool) (loot.Pool, bool)) loot.Structure {
	if !inRange(pi, len(s.Pools)) {
		return s
	}
	p, changed := fn(s.Pools[pi])
	if !changed {
		return s
	}
	s.Pools = replaceAt(s.Pools, pi, p)
	return s
}

func updateEntry(s loot.Structure, pi, ei int, fn func(loot.Entry) (loot.Entry, bool)) loot.Structure {
	return updatePool(s, pi, func(p loot.Pool) (loot.Pool, bool) {
		if !inRange(ei, len(p.Entries)) {
			return p, false
		}
		e, changed := fn(p.Entries[ei])
		if !changed {
			return p, false
		}
		p.Entries = replaceAt(p.Entries, ei, e)
		return p, true
	})
}

func inRange(i, n int) bool { return i >= 0 && i < n }

func appendCopy[T any](xs []T, v T) []T {
	out := make([]T, len(xs), len(xs)+1)
	copy(out, xs)
	return append(out, v)
}

func replaceAt[T any](xs []T, i int, v T) []T {
	out := make([]T, len(xs))
	copy(out, xs)
	out[i] = v
	return out
}

// removeAt drops xs[i]; an emptied list becomes nil, the same as a list that was never set.
func removeAt[T any](xs []T, i int) []T {
	if len(xs) == 1 {
		return nil
	}
	out := make([]T, 0, len(xs)-1)
	out = append(out, xs[:i]...)
	return append(out, xs[i+1:]...)
}
