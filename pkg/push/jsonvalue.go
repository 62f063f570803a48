// Package push contains the public domain model for the delivery core:
// providers, profiles, send requests, and results.
package push

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is a recursive JSON value: nil, bool, int64, float64, string,
// []Value, or *Map. It backs every open-ended field in the wire model
// (custom data, contentState, FcmErrorDetails.details).
type Value struct {
	kind  valueKind
	b     bool
	i     int64
	f     float64
	s     string
	arr   []Value
	m     *Map
	isInt bool
}

type valueKind int

const (
	kindNull valueKind = iota
	kindBool
	kindNumber
	kindString
	kindArray
	kindMap
)

func NullValue() Value                 { return Value{kind: kindNull} }
func BoolValue(b bool) Value           { return Value{kind: kindBool, b: b} }
func IntValue(i int64) Value           { return Value{kind: kindNumber, i: i, isInt: true} }
func FloatValue(f float64) Value       { return Value{kind: kindNumber, f: f} }
func StringValue(s string) Value       { return Value{kind: kindString, s: s} }
func ArrayValue(v []Value) Value       { return Value{kind: kindArray, arr: v} }
func MapValue(m *Map) Value            { return Value{kind: kindMap, m: m} }

func (v Value) IsNull() bool { return v.kind == kindNull }

// Map is an insertion-ordered string-to-Value mapping. encoding/json's map
// type does not preserve key order, which the wire codecs rely on when
// merging custom data next to vendor-reserved keys; Map fixes that while
// staying a thin wrapper so it still round-trips through json.Marshal.
type Map struct {
	keys   []string
	values map[string]Value
}

func NewMap() *Map {
	return &Map{values: make(map[string]Value)}
}

func (m *Map) Set(key string, v Value) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *Map) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *Map) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// MarshalJSON drops entries whose value is null at this map's own layer
// (matching the wire expectation that top-level absent-ish fields aren't
// serialized as explicit nulls) while preserving nulls nested inside arrays
// or child maps, since those are encoded via Value.MarshalJSON unchanged.
func (m *Map) MarshalJSON() ([]byte, error) {
	return m.marshal(true)
}

// marshal encodes m in key order; dropNulls skips null entries at this
// layer only.
func (m *Map) marshal(dropNulls bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, k := range m.keys {
		v := m.values[k]
		if dropNulls && v.kind == kindNull {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Map) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	// Recover key order via a second streaming pass; encoding/json's
	// RawMessage map above loses order but gives us validated sub-values.
	order, err := objectKeyOrder(data)
	if err != nil {
		return err
	}
	out := NewMap()
	for _, k := range order {
		sub, ok := raw[k]
		if !ok {
			continue
		}
		var v Value
		if err := json.Unmarshal(sub, &v); err != nil {
			return err
		}
		out.Set(k, v)
	}
	*m = *out
	return nil
}

func objectKeyOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("push: expected JSON object")
	}
	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("push: expected object key")
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindNull:
		return []byte("null"), nil
	case kindBool:
		return json.Marshal(v.b)
	case kindNumber:
		if v.isInt {
			return json.Marshal(v.i)
		}
		return json.Marshal(v.f)
	case kindString:
		return json.Marshal(v.s)
	case kindArray:
		// Nulls inside arrays are preserved: each element marshals through
		// its own MarshalJSON, including the null case above.
		buf := bytes.NewBufferString("[")
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := json.Marshal(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case kindMap:
		if v.m == nil {
			return []byte("null"), nil
		}
		return v.m.marshal(false)
	default:
		return nil, fmt.Errorf("push: unknown value kind %d", v.kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*v = NullValue()
		return nil
	}
	switch trimmed[0] {
	case '{':
		m := NewMap()
		if err := m.UnmarshalJSON(trimmed); err != nil {
			return err
		}
		*v = MapValue(m)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		arr := make([]Value, len(raw))
		for i, r := range raw {
			if err := json.Unmarshal(r, &arr[i]); err != nil {
				return err
			}
		}
		*v = ArrayValue(arr)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
		return nil
	default:
		// Number. Prefer an exact int64 when there's no fractional part or
		// exponent, matching the source's integer/float distinction.
		var i int64
		if err := json.Unmarshal(trimmed, &i); err == nil {
			*v = IntValue(i)
			return nil
		}
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return err
		}
		*v = FloatValue(f)
		return nil
	}
}
