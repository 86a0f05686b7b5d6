package lootjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"lootforge/internal/loot"
	"lootforge/internal/util/jsonutil"
)

// Marshal serializes s as indented document text.
func Marshal(s loot.Structure) ([]byte, error) {
	compact, err := MarshalCompact(s)
	if err != nil {
		return nil, err
	}
	return jsonutil.Indent(compact)
}

// MarshalCompact serializes s without insignificant whitespace.
func MarshalCompact(s loot.Structure) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeStructure(&buf, s); err != nil {
		return nil, fmt.Errorf("marshal %s: %w", s.ID, err)
	}
	return buf.Bytes(), nil
}

// objectWriter emits the members of one JSON object in call order.
type objectWriter struct {
	buf *bytes.Buffer
	n   int
	err error
}

func openObject(buf *bytes.Buffer) *objectWriter {
	buf.WriteByte('{')
	return &objectWriter{buf: buf}
}

func (w *objectWriter) key(k string) {
	if w.n > 0 {
		w.buf.WriteByte(',')
	}
	jsonutil.WriteString(w.buf, k)
	w.buf.WriteByte(':')
	w.n++
}

func (w *objectWriter) value(k string, v any) {
	if w.err != nil {
		return
	}
	w.key(k)
	w.err = writeValue(w.buf, v)
}

func (w *objectWriter) raw(k string, fn func(*bytes.Buffer) error) {
	if w.err != nil {
		return
	}
	w.key(k)
	w.err = fn(w.buf)
}

func (w *objectWriter) extras(p loot.Params) {
	for _, kv := range p {
		w.value(kv.Key, kv.Value)
	}
}

func (w *objectWriter) close() error {
	w.buf.WriteByte('}')
	return w.err
}

func writeStructure(buf *bytes.Buffer, s loot.Structure) error {
	w := openObject(buf)
	if s.Kind != "" {
		w.value("type", s.Kind)
	}
	w.raw("pools", func(b *bytes.Buffer) error {
		return writeArray(b, len(s.Pools), func(i int) error { return writePool(b, s.Pools[i]) })
	})
	if len(s.Functions) > 0 {
		w.raw("functions", func(b *bytes.Buffer) error { return writeFunctions(b, s.Functions) })
	}
	if s.RandomSequence != "" {
		w.value("random_sequence", s.RandomSequence)
	}
	w.extras(s.Extra)
	return w.close()
}

func writePool(buf *bytes.Buffer, p loot.Pool) error {
	w := openObject(buf)
	rolls := p.Rolls
	if rolls == nil {
		rolls = loot.Constant{Value: 1}
	}
	w.value("rolls", loot.ProviderValue(rolls))
	if emitBonusRolls(p.BonusRolls) {
		w.value("bonus_rolls", loot.ProviderValue(p.BonusRolls))
	}
	w.raw("entries", func(b *bytes.Buffer) error { return writeEntries(b, p.Entries) })
	if len(p.Conditions) > 0 {
		w.raw("conditions", func(b *bytes.Buffer) error { return writeConditions(b, p.Conditions) })
	}
	if len(p.Functions) > 0 {
		w.raw("functions", func(b *bytes.Buffer) error { return writeFunctions(b, p.Functions) })
	}
	if p.Name != "" {
		w.value("name", p.Name)
	}
	w.extras(p.Extra)
	return w.close()
}

func emitBonusRolls(p loot.NumberProvider) bool {
	switch p.(type) {
	case nil:
		return false
	case loot.Opaque:
		return true
	default:
		return p.Max() > 0
	}
}

func writeEntries(buf *bytes.Buffer, entries []loot.Entry) error {
	return writeArray(buf, len(entries), func(i int) error { return writeEntry(buf, entries[i]) })
}

func writeEntry(buf *bytes.Buffer, e loot.Entry) error {
	w := openObject(buf)
	typ := e.Type
	if typ == "" {
		typ = e.Kind.TypeName()
	}
	if typ != "" {
		w.value("type", typ)
	}
	switch e.Kind {
	case loot.EntryItem, loot.EntryTag:
		w.value("name", e.Identifier)
	case loot.EntryTableRef:
		w.value("value", e.Identifier)
	}
	if e.Weight != 1 {
		w.value("weight", json.Number(strconv.Itoa(e.Weight)))
	}
	if e.Quality != 0 {
		w.value("quality", json.Number(strconv.Itoa(e.Quality)))
	}
	if len(e.Conditions) > 0 {
		w.raw("conditions", func(b *bytes.Buffer) error { return writeConditions(b, e.Conditions) })
	}
	if len(e.Functions) > 0 {
		w.raw("functions", func(b *bytes.Buffer) error { return writeFunctions(b, e.Functions) })
	}
	if e.Kind.IsComposite() && len(e.Children) > 0 {
		w.raw("children", func(b *bytes.Buffer) error { return writeEntries(b, e.Children) })
	}
	w.extras(e.Extra)
	return w.close()
}

func writeConditions(buf *bytes.Buffer, conds []loot.Condition) error {
	return writeArray(buf, len(conds), func(i int) error { return writeCondition(buf, conds[i]) })
}

func writeCondition(buf *bytes.Buffer, c loot.Condition) error {
	w := openObject(buf)
	if c.Kind != "" {
		w.value("condition", c.Kind)
	}
	w.extras(c.Params)
	return w.close()
}

func writeFunctions(buf *bytes.Buffer, fns []loot.Function) error {
	return writeArray(buf, len(fns), func(i int) error { return writeFunction(buf, fns[i]) })
}

func writeFunction(buf *bytes.Buffer, fn loot.Function) error {
	w := openObject(buf)
	if fn.Kind != "" {
		w.value("function", fn.Kind)
	}
	w.extras(fn.Params)
	if len(fn.Conditions) > 0 {
		w.raw("conditions", func(b *bytes.Buffer) error { return writeConditions(b, fn.Conditions) })
	}
	return w.close()
}

func writeArray(buf *bytes.Buffer, n int, item func(i int) error) error {
	buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := item(i); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case string:
		jsonutil.WriteString(buf, t)
	case json.Number:
		if t == "" {
			buf.WriteByte('0')
			return nil
		}
		if _, err := t.Float64(); err != nil {
			return fmt.Errorf("invalid number %q", string(t))
		}
		buf.WriteString(string(t))
	case float64:
		buf.WriteString(loot.FormatNumber(t))
	case int:
		buf.WriteString(strconv.Itoa(t))
	case loot.Params:
		w := openObject(buf)
		w.extras(t)
		return w.close()
	case []any:
		return writeArray(buf, len(t), func(i int) error { return writeValue(buf, t[i]) })
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}
