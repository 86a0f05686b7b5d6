package lootjson

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"

	"lootforge/internal/loot"
)

// Fragment codecs encode single model parts with the same rules as whole documents.
// Operation payloads use them so a persisted log reads like the documents it edits.

func MarshalPool(p loot.Pool) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := writePool(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func UnmarshalPool(raw []byte) (loot.Pool, error) {
	obj, err := fragmentRoot(raw)
	if err != nil {
		return loot.Pool{}, err
	}
	p, perr := parsePool("", "pool", obj)
	if perr != nil {
		return loot.Pool{}, perr
	}
	return p, nil
}

func MarshalEntry(e loot.Entry) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := writeEntry(&buf, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func UnmarshalEntry(raw []byte) (loot.Entry, error) {
	obj, err := fragmentRoot(raw)
	if err != nil {
		return loot.Entry{}, err
	}
	e, perr := parseEntry("", "entry", obj)
	if perr != nil {
		return loot.Entry{}, perr
	}
	return e, nil
}

func MarshalFunction(fn loot.Function) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := writeFunction(&buf, fn); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func UnmarshalFunction(raw []byte) (loot.Function, error) {
	if _, err := fragmentRoot(raw); err != nil {
		return loot.Function{}, err
	}
	fns, perr := parseFunctions("", "function", gjson.ParseBytes(wrapArray(raw)))
	if perr != nil {
		return loot.Function{}, perr
	}
	return fns[0], nil
}

func MarshalCondition(c loot.Condition) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := writeCondition(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func UnmarshalCondition(raw []byte) (loot.Condition, error) {
	if _, err := fragmentRoot(raw); err != nil {
		return loot.Condition{}, err
	}
	conds, perr := parseConditions("", "condition", gjson.ParseBytes(wrapArray(raw)))
	if perr != nil {
		return loot.Condition{}, perr
	}
	return conds[0], nil
}

// MarshalProvider encodes a number provider; constants become bare numbers.
func MarshalProvider(p loot.NumberProvider) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, loot.ProviderValue(p)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalProvider decodes a number provider. "null" yields nil.
func UnmarshalProvider(raw []byte) (loot.NumberProvider, error) {
	if !gjson.ValidBytes(raw) {
		return nil, malformed("", "provider", "invalid json")
	}
	return loot.ProviderFromValue(toValue(gjson.ParseBytes(raw))), nil
}

func fragmentRoot(raw []byte) (gjson.Result, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return gjson.Result{}, &ParseError{Reason: "empty fragment", Err: ErrMissingSource}
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, malformed("", "", "invalid json")
	}
	obj := gjson.ParseBytes(raw)
	if !obj.IsObject() {
		return gjson.Result{}, malformed("", "", "expected object")
	}
	return obj, nil
}

func wrapArray(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+2)
	out = append(out, '[')
	out = append(out, raw...)
	return append(out, ']')
}
