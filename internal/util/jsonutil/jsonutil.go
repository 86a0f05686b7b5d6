package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalNoEscape encodes v into JSON without escaping <, >, & into \u003c, etc.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Remove trailing newline from json.Encoder.Encode
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalNoEscapeIndent encodes v with two-space indentation and no HTML escaping.
func MarshalNoEscapeIndent(v any) ([]byte, error) {
	raw, err := MarshalNoEscape(v)
	if err != nil {
		return nil, err
	}
	return Indent(raw)
}

// Indent re-indents compact JSON with two spaces. Escapes already present are kept.
func Indent(compact []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("indent json: %w", err)
	}
	return out.Bytes(), nil
}

// WriteString appends s to buf as a JSON string literal without HTML escaping.
func WriteString(buf *bytes.Buffer, s string) {
	raw, err := MarshalNoEscape(s)
	if err != nil {
		// strings always encode; keep the buffer valid regardless
		buf.WriteString(`""`)
		return
	}
	buf.Write(raw)
}

// UnmarshalStrict decodes data into v, rejecting unknown fields and trailing data.
func UnmarshalStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}
