package edit

import (
	"encoding/json"
	"errors"
	"fmt"

	"lootforge/internal/loot"
	"lootforge/internal/lootjson"
)

// ErrInvalidOperation marks an operation payload that cannot be decoded.
var ErrInvalidOperation = errors.New("invalid operation")

// wireOp is the persisted shape: {"op": "<kind>", ...payload}. Model fragments are
// encoded with the document codec so persisted logs read like the documents they edit.
type wireOp struct {
	Op             Kind            `json:"op"`
	PoolIndex      *int            `json:"pool_index,omitempty"`
	EntryIndex     *int            `json:"entry_index,omitempty"`
	FunctionIndex  *int            `json:"function_index,omitempty"`
	ConditionIndex *int            `json:"condition_index,omitempty"`
	Weight         *int            `json:"weight,omitempty"`
	Identifier     *string         `json:"identifier,omitempty"`
	Pool           json.RawMessage `json:"pool,omitempty"`
	Entry          json.RawMessage `json:"entry,omitempty"`
	Function       json.RawMessage `json:"function,omitempty"`
	Condition      json.RawMessage `json:"condition,omitempty"`
	Rolls          json.RawMessage `json:"rolls,omitempty"`
	BonusRolls     json.RawMessage `json:"bonus_rolls,omitempty"`
	Count          json.RawMessage `json:"count,omitempty"`
}

func ptr[T any](v T) *T { return &v }

// MarshalOperation encodes op in its wire form.
func MarshalOperation(op Operation) ([]byte, error) {
	w, err := toWire(op)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalOperation decodes one wire-form operation.
func UnmarshalOperation(raw []byte) (Operation, error) {
	var w wireOp
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	return fromWire(w)
}

func toWire(op Operation) (wireOp, error) {
	if op == nil {
		return wireOp{}, fmt.Errorf("%w: nil operation", ErrInvalidOperation)
	}
	w := wireOp{Op: op.Kind()}
	var err error
	switch o := op.(type) {
	case AddPool:
		w.Pool, err = lootjson.MarshalPool(o.Pool)
	case RemovePool:
		w.PoolIndex = ptr(o.PoolIndex)
	case ModifyPoolRolls:
		w.PoolIndex = ptr(o.PoolIndex)
		if o.Rolls != nil {
			w.Rolls, err = lootjson.MarshalProvider(o.Rolls)
		}
		if err == nil && o.BonusRolls != nil {
			w.BonusRolls, err = lootjson.MarshalProvider(o.BonusRolls)
		}
	case AddEntry:
		w.PoolIndex = ptr(o.PoolIndex)
		w.Entry, err = lootjson.MarshalEntry(o.Entry)
	case RemoveEntry:
		w.PoolIndex, w.EntryIndex = ptr(o.PoolIndex), ptr(o.EntryIndex)
	case ModifyEntryWeight:
		w.PoolIndex, w.EntryIndex = ptr(o.PoolIndex), ptr(o.EntryIndex)
		w.Weight = ptr(o.Weight)
	case ModifyEntryIdentifier:
		w.PoolIndex, w.EntryIndex = ptr(o.PoolIndex), ptr(o.EntryIndex)
		w.Identifier = ptr(o.Identifier)
	case SetEntryCount:
		w.PoolIndex, w.EntryIndex = ptr(o.PoolIndex), ptr(o.EntryIndex)
		w.Count, err = lootjson.MarshalProvider(o.Count)
	case AddEntryFunction:
		w.PoolIndex, w.EntryIndex = ptr(o.PoolIndex), ptr(o.EntryIndex)
		w.Function, err = lootjson.MarshalFunction(o.Function)
	case RemoveEntryFunction:
		w.PoolIndex, w.EntryIndex = ptr(o.PoolIndex), ptr(o.EntryIndex)
		w.FunctionIndex = ptr(o.FunctionIndex)
	case AddEntryCondition:
		w.PoolIndex, w.EntryIndex = ptr(o.PoolIndex), ptr(o.EntryIndex)
		w.Condition, err = lootjson.MarshalCondition(o.Condition)
	case RemoveEntryCondition:
		w.PoolIndex, w.EntryIndex = ptr(o.PoolIndex), ptr(o.EntryIndex)
		w.ConditionIndex = ptr(o.ConditionIndex)
	case AddPoolFunction:
		w.PoolIndex = ptr(o.PoolIndex)
		w.Function, err = lootjson.MarshalFunction(o.Function)
	case RemovePoolFunction:
		w.PoolIndex = ptr(o.PoolIndex)
		w.FunctionIndex = ptr(o.FunctionIndex)
	case AddPoolCondition:
		w.PoolIndex = ptr(o.PoolIndex)
		w.Condition, err = lootjson.MarshalCondition(o.Condition)
	case RemovePoolCondition:
		w.PoolIndex = ptr(o.PoolIndex)
		w.ConditionIndex = ptr(o.ConditionIndex)
	default:
		return wireOp{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidOperation, op)
	}
	if err != nil {
		return wireOp{}, fmt.Errorf("encode %s: %w", op.Kind(), err)
	}
	return w, nil
}

// decoder collects the first missing or malformed field of a wire operation.
type decoder struct {
	w   wireOp
	err error
}

func (d *decoder) index(name string, v *int) int {
	if d.err != nil {
		return 0
	}
	if v == nil {
		d.err = fmt.Errorf("%w: %s: missing %s", ErrInvalidOperation, d.w.Op, name)
		return 0
	}
	return *v
}

func (d *decoder) raw(name string, raw json.RawMessage) []byte {
	if d.err == nil && len(raw) == 0 {
		d.err = fmt.Errorf("%w: %s: missing %s", ErrInvalidOperation, d.w.Op, name)
	}
	return raw
}

func (d *decoder) fail(err error) {
	if d.err == nil && err != nil {
		d.err = fmt.Errorf("%w: %s: %v", ErrInvalidOperation, d.w.Op, err)
	}
}

func (d *decoder) provider(name string, raw json.RawMessage, required bool) loot.NumberProvider {
	if d.err != nil {
		return nil
	}
	if len(raw) == 0 {
		if required {
			d.raw(name, raw)
		}
		return nil
	}
	p, err := lootjson.UnmarshalProvider(raw)
	d.fail(err)
	if d.err == nil && p == nil && required {
		d.err = fmt.Errorf("%w: %s: null %s", ErrInvalidOperation, d.w.Op, name)
	}
	return p
}

func (d *decoder) pool() loot.Pool {
	raw := d.raw("pool", d.w.Pool)
	if d.err != nil {
		return loot.Pool{}
	}
	p, err := lootjson.UnmarshalPool(raw)
	d.fail(err)
	return p
}

func (d *decoder) entry() loot.Entry {
	raw := d.raw("entry", d.w.Entry)
	if d.err != nil {
		return loot.Entry{}
	}
	e, err := lootjson.UnmarshalEntry(raw)
	d.fail(err)
	return e
}

func (d *decoder) function() loot.Function {
	raw := d.raw("function", d.w.Function)
	if d.err != nil {
		return loot.Function{}
	}
	fn, err := lootjson.UnmarshalFunction(raw)
	d.fail(err)
	return fn
}

func (d *decoder) condition() loot.Condition {
	raw := d.raw("condition", d.w.Condition)
	if d.err != nil {
		return loot.Condition{}
	}
	c, err := lootjson.UnmarshalCondition(raw)
	d.fail(err)
	return c
}

func fromWire(w wireOp) (Operation, error) {
	d := &decoder{w: w}
	var op Operation
	switch w.Op {
	case KindAddPool:
		op = AddPool{Pool: d.pool()}
	case KindRemovePool:
		op = RemovePool{PoolIndex: d.index("pool_index", w.PoolIndex)}
	case KindModifyPoolRolls:
		op = ModifyPoolRolls{
			PoolIndex:  d.index("pool_index", w.PoolIndex),
			Rolls:      d.provider("rolls", w.Rolls, false),
			BonusRolls: d.provider("bonus_rolls", w.BonusRolls, false),
		}
	case KindAddEntry:
		op = AddEntry{PoolIndex: d.index("pool_index", w.PoolIndex), Entry: d.entry()}
	case KindRemoveEntry:
		op = RemoveEntry{
			PoolIndex:  d.index("pool_index", w.PoolIndex),
			EntryIndex: d.index("entry_index", w.EntryIndex),
		}
	case KindModifyEntryWeight:
		op = ModifyEntryWeight{
			PoolIndex:  d.index("pool_index", w.PoolIndex),
			EntryIndex: d.index("entry_index", w.EntryIndex),
			Weight:     d.index("weight", w.Weight),
		}
	case KindModifyEntryID:
		o := ModifyEntryIdentifier{
			PoolIndex:  d.index("pool_index", w.PoolIndex),
			EntryIndex: d.index("entry_index", w.EntryIndex),
		}
		if w.Identifier == nil {
			d.fail(errors.New("missing identifier"))
		} else {
			o.Identifier = *w.Identifier
		}
		op = o
	case KindSetEntryCount:
		op = SetEntryCount{
			PoolIndex:  d.index("pool_index", w.PoolIndex),
			EntryIndex: d.index("entry_index", w.EntryIndex),
			Count:      d.provider("count", w.Count, true),
		}
	case KindAddEntryFunction:
		op = AddEntryFunction{
			PoolIndex:  d.index("pool_index", w.PoolIndex),
			EntryIndex: d.index("entry_index", w.EntryIndex),
			Function:   d.function(),
		}
	case KindRemoveEntryFunction:
		op = RemoveEntryFunction{
			PoolIndex:     d.index("pool_index", w.PoolIndex),
			EntryIndex:    d.index("entry_index", w.EntryIndex),
			FunctionIndex: d.index("function_index", w.FunctionIndex),
		}
	case KindAddEntryCondition:
		op = AddEntryCondition{
			PoolIndex:  d.index("pool_index", w.PoolIndex),
			EntryIndex: d.index("entry_index", w.EntryIndex),
			Condition:  d.condition(),
		}
	case KindRemoveEntryCondition:
		op = RemoveEntryCondition{
			PoolIndex:      d.index("pool_index", w.PoolIndex),
			EntryIndex:     d.index("entry_index", w.EntryIndex),
			ConditionIndex: d.index("condition_index", w.ConditionIndex),
		}
	case KindAddPoolFunction:
		op = AddPoolFunction{PoolIndex: d.index("pool_index", w.PoolIndex), Function: d.function()}
	case KindRemovePoolFunction:
		op = RemovePoolFunction{
			PoolIndex:     d.index("pool_index", w.PoolIndex),
			FunctionIndex: d.index("function_index", w.FunctionIndex),
		}
	case KindAddPoolCondition:
		op = AddPoolCondition{PoolIndex: d.index("pool_index", w.PoolIndex), Condition: d.condition()}
	case KindRemovePoolCondition:
		op = RemovePoolCondition{
			PoolIndex:      d.index("pool_index", w.PoolIndex),
			ConditionIndex: d.index("condition_index", w.ConditionIndex),
		}
	case "":
		return nil, fmt.Errorf("%w: missing op", ErrInvalidOperation)
	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidOperation, w.Op)
	}
	if d.err != nil {
		return nil, d.err
	}
	return op, nil
}

// List is an ordered operation log with a JSON array encoding.
type List []Operation

func (l List) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))
	for i, op := range l {
		raw, err := MarshalOperation(op)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

func (l *List) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	ops := make(List, 0, len(raws))
	for i, raw := range raws {
		op, err := UnmarshalOperation(raw)
		if err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	*l = ops
	return nil
}
