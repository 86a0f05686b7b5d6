package lootjson

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"lootforge/internal/loot"
)

// RawSource supplies raw document text by id.
type RawSource interface {
	RawJSON(id string) ([]byte, bool)
}

// Load fetches id from src and parses it. A document the source does not know yields
// ok=false and no error: references are resolved lazily and may legitimately be absent.
func Load(src RawSource, id string) (loot.Structure, bool, error) {
	if src == nil {
		return loot.Structure{}, false, nil
	}
	raw, ok := src.RawJSON(id)
	if !ok {
		return loot.Structure{}, false, nil
	}
	s, err := Parse(id, raw)
	if err != nil {
		return loot.Structure{}, false, err
	}
	return s, true, nil
}

// Parse maps raw document text onto the structure model. Keys and kinds it does not
// understand are kept in document order and re-emitted by Marshal.
func Parse(id string, raw []byte) (loot.Structure, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return loot.Structure{}, &ParseError{ID: id, Reason: "empty document", Err: ErrMissingSource}
	}
	if !gjson.ValidBytes(raw) {
		return loot.Structure{}, malformed(id, "", "invalid json")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return loot.Structure{}, malformed(id, "", "document root is not an object")
	}

	s := loot.Structure{ID: id}
	var perr *ParseError
	root.ForEach(func(key, value gjson.Result) bool {
		switch key.Str {
		case "type":
			if value.Type != gjson.String {
				perr = malformed(id, "type", "expected string")
				return false
			}
			s.Kind = value.Str
		case "pools":
			s.Pools, perr = parsePools(id, value)
		case "functions":
			s.Functions, perr = parseFunctions(id, "functions", value)
		case "random_sequence":
			if value.Type != gjson.String {
				perr = malformed(id, "random_sequence", "expected string")
				return false
			}
			s.RandomSequence = value.Str
		default:
			s.Extra = append(s.Extra, loot.Param{Key: key.Str, Value: toValue(value)})
		}
		return perr == nil
	})
	if perr != nil {
		return loot.Structure{}, perr
	}
	return s, nil
}

func parsePools(id string, arr gjson.Result) ([]loot.Pool, *ParseError) {
	if !arr.IsArray() {
		return nil, malformed(id, "pools", "expected array")
	}
	var pools []loot.Pool
	var perr *ParseError
	i := 0
	arr.ForEach(func(_, value gjson.Result) bool {
		var p loot.Pool
		p, perr = parsePool(id, fmt.Sprintf("pools[%d]", i), value)
		pools = append(pools, p)
		i++
		return perr == nil
	})
	return pools, perr
}

func parsePool(id, path string, obj gjson.Result) (loot.Pool, *ParseError) {
	if !obj.IsObject() {
		return loot.Pool{}, malformed(id, path, "expected object")
	}
	p := loot.Pool{Rolls: loot.Constant{Value: 1}, BonusRolls: loot.Constant{}}
	var perr *ParseError
	obj.ForEach(func(key, value gjson.Result) bool {
		switch key.Str {
		case "rolls":
			p.Rolls = providerOf(value)
		case "bonus_rolls":
			p.BonusRolls = providerOf(value)
		case "entries":
			p.Entries, perr = parseEntries(id, path+".entries", value)
		case "conditions":
			p.Conditions, perr = parseConditions(id, path+".conditions", value)
		case "functions":
			p.Functions, perr = parseFunctions(id, path+".functions", value)
		case "name":
			if value.Type != gjson.String {
				perr = malformed(id, path+".name", "expected string")
				return false
			}
			p.Name = value.Str
		default:
			p.Extra = append(p.Extra, loot.Param{Key: key.Str, Value: toValue(value)})
		}
		return perr == nil
	})
	if p.Rolls == nil {
		p.Rolls = loot.Constant{Value: 1}
	}
	if p.BonusRolls == nil {
		p.BonusRolls = loot.Constant{}
	}
	return p, perr
}

func parseEntries(id, path string, arr gjson.Result) ([]loot.Entry, *ParseError) {
	if !arr.IsArray() {
		return nil, malformed(id, path, "expected array")
	}
	var entries []loot.Entry
	var perr *ParseError
	i := 0
	arr.ForEach(func(_, value gjson.Result) bool {
		var e loot.Entry
		e, perr = parseEntry(id, fmt.Sprintf("%s[%d]", path, i), value)
		entries = append(entries, e)
		i++
		return perr == nil
	})
	return entries, perr
}

func parseEntry(id, path string, obj gjson.Result) (loot.Entry, *ParseError) {
	if !obj.IsObject() {
		return loot.Entry{}, malformed(id, path, "expected object")
	}
	e := loot.Entry{Weight: 1}
	if t := obj.Get("type"); t.Type == gjson.String {
		e.Type = t.Str
		e.Kind = loot.KindFromType(t.Str)
	}
	idKey := identifierKey(e.Kind, obj)
	if e.Kind.HasIdentifier() && idKey == "" {
		// no usable identifier: keep everything verbatim
		e.Kind = loot.EntryUnknown
	}

	var perr *ParseError
	obj.ForEach(func(key, value gjson.Result) bool {
		k := key.Str
		switch {
		case k == "type" && value.Type == gjson.String:
		case idKey != "" && k == idKey:
			e.Identifier = value.Str
		case k == "weight" && value.Type == gjson.Number:
			e.Weight = int(value.Int())
		case k == "quality" && value.Type == gjson.Number:
			e.Quality = int(value.Int())
		case k == "conditions":
			e.Conditions, perr = parseConditions(id, path+".conditions", value)
		case k == "functions":
			e.Functions, perr = parseFunctions(id, path+".functions", value)
		case k == "children" && e.Kind.IsComposite():
			e.Children, perr = parseEntries(id, path+".children", value)
		default:
			e.Extra = append(e.Extra, loot.Param{Key: k, Value: toValue(value)})
		}
		return perr == nil
	})
	return e, perr
}

// identifierKey picks the key holding the entry identifier, or "" when there is none.
func identifierKey(kind loot.EntryKind, obj gjson.Result) string {
	switch kind {
	case loot.EntryItem, loot.EntryTag:
		if obj.Get("name").Type == gjson.String {
			return "name"
		}
	case loot.EntryTableRef:
		if v := obj.Get("value"); v.Exists() {
			if v.Type == gjson.String {
				return "value"
			}
			// inline table object
			return ""
		}
		if obj.Get("name").Type == gjson.String {
			return "name"
		}
	}
	return ""
}

func parseConditions(id, path string, arr gjson.Result) ([]loot.Condition, *ParseError) {
	if !arr.IsArray() {
		return nil, malformed(id, path, "expected array")
	}
	var out []loot.Condition
	var perr *ParseError
	i := 0
	arr.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			perr = malformed(id, fmt.Sprintf("%s[%d]", path, i), "expected object")
			return false
		}
		c := loot.Condition{}
		value.ForEach(func(key, v gjson.Result) bool {
			if key.Str == "condition" && v.Type == gjson.String {
				c.Kind = v.Str
				return true
			}
			c.Params = append(c.Params, loot.Param{Key: key.Str, Value: toValue(v)})
			return true
		})
		out = append(out, c)
		i++
		return true
	})
	return out, perr
}

func parseFunctions(id, path string, arr gjson.Result) ([]loot.Function, *ParseError) {
	if !arr.IsArray() {
		return nil, malformed(id, path, "expected array")
	}
	var out []loot.Function
	var perr *ParseError
	i := 0
	arr.ForEach(func(_, value gjson.Result) bool {
		fpath := fmt.Sprintf("%s[%d]", path, i)
		if !value.IsObject() {
			perr = malformed(id, fpath, "expected object")
			return false
		}
		fn := loot.Function{}
		value.ForEach(func(key, v gjson.Result) bool {
			switch {
			case key.Str == "function" && v.Type == gjson.String:
				fn.Kind = v.Str
			case key.Str == "conditions" && v.IsArray():
				fn.Conditions, perr = parseConditions(id, fpath+".conditions", v)
			default:
				fn.Params = append(fn.Params, loot.Param{Key: key.Str, Value: toValue(v)})
			}
			return perr == nil
		})
		out = append(out, fn)
		i++
		return perr == nil
	})
	return out, perr
}

// providerOf keeps an explicit null as an opaque value so it is written back as null.
func providerOf(r gjson.Result) loot.NumberProvider {
	if r.Type == gjson.Null {
		return loot.Opaque{Scalar: true}
	}
	return loot.ProviderFromValue(toValue(r))
}

// toValue converts a gjson node into the dynamic value space of loot.Params.
func toValue(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return json.Number(r.Raw)
	case gjson.String:
		return r.Str
	}
	if r.IsArray() {
		out := []any{}
		r.ForEach(func(_, v gjson.Result) bool {
			out = append(out, toValue(v))
			return true
		})
		return out
	}
	if r.IsObject() {
		out := loot.Params{}
		r.ForEach(func(k, v gjson.Result) bool {
			out = append(out, loot.Param{Key: k.Str, Value: toValue(v)})
			return true
		})
		return out
	}
	return nil
}
