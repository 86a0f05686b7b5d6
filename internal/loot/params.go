package loot

import "encoding/json"

// Param is one key/value pair of an opaque parameter bag.
type Param struct {
	Key   string
	Value any
}

// Params is an order-preserving string-keyed bag of dynamically typed values.
// Values are nil, bool, string, json.Number, Params, or []any holding those.
// A Params value is never mutated in place; With/Without return copies.
type Params []Param

// Get returns the value stored under key.
func (p Params) Get(key string) (any, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// String returns the value under key when it is a string.
func (p Params) String(key string) (string, bool) {
	v, ok := p.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float returns the value under key when it is a number.
func (p Params) Float(key string) (float64, bool) {
	v, ok := p.Get(key)
	if !ok {
		return 0, false
	}
	return numberValue(v)
}

// With returns a copy of p where key maps to value. An existing key keeps its position.
func (p Params) With(key string, value any) Params {
	out := make(Params, 0, len(p)+1)
	replaced := false
	for _, kv := range p {
		if kv.Key == key {
			out = append(out, Param{Key: key, Value: value})
			replaced = true
			continue
		}
		out = append(out, kv)
	}
	if !replaced {
		out = append(out, Param{Key: key, Value: value})
	}
	return out
}

// Without returns a copy of p with key removed.
func (p Params) Without(key string) Params {
	if !p.Has(key) {
		return p
	}
	var out Params
	for _, kv := range p {
		if kv.Key != key {
			out = append(out, kv)
		}
	}
	return out
}

// Keys lists the keys in document order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for _, kv := range p {
		keys = append(keys, kv.Key)
	}
	return keys
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
