package hunt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Value is a sealed interface for team property values.
// Only String, Int, Bool, List and Map implement it.
// There is no float and no null: both break byte-level equality.
type Value interface {
	value() // Sealed
}

// String is a string property value.
type String string

func (String) value() {}

// Int is an integer property value. Always int64.
type Int int64

func (Int) value() {}

// Bool is a boolean property value.
type Bool bool

func (Bool) value() {}

// List is an ordered list of values.
type List []Value

func (List) value() {}

// Map is a string-keyed map of values.
// Use SortedKeys() for deterministic iteration.
type Map map[string]Value

func (Map) value() {}

// SortedKeys returns keys in UTF-16 code unit order (RFC 8785).
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 orders strings by UTF-16 code units.
// Go's native string comparison uses UTF-8 bytes, which differs for
// characters outside the BMP.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

// NormalizeKey returns the NFC form of a property key.
// Visually identical keys typed on different keyboards map to one row.
func NormalizeKey(key string) string {
	return norm.NFC.String(key)
}

// ValueOf converts a native Go value into a Value.
// Accepts the shapes produced by encoding/json, yaml.v3 and CUE decoding.
func ValueOf(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a property value")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not property values: %s", val)
		}
		return Int(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not property values: %v", val)
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			item, err := ValueOf(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = item
		}
		return list, nil
	case map[string]any:
		m := make(Map, len(val))
		for k, elem := range val {
			item, err := ValueOf(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			m[k] = item
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported property value type: %T", v)
	}
}

// Native converts a Value back to plain Go types
// (string, int64, bool, []any, map[string]any).
func Native(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Native(elem)
		}
		return out
	case Map:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Native(elem)
		}
		return out
	default:
		return nil
	}
}

// MarshalValue produces canonical JSON for a Value.
//
// Canonical form:
//  1. Map keys sorted by UTF-16 code units
//  2. Strings NFC normalized
//  3. No HTML escaping
//  4. No insignificant whitespace
//
// Two values are equal iff their canonical bytes are equal.
func MarshalValue(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case String:
		writeCanonicalString(buf, string(val))
	case Int:
		fmt.Fprintf(buf, "%d", int64(val))
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case List:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Map:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("map[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case nil:
		return fmt.Errorf("nil property value")
	default:
		return fmt.Errorf("unknown property value type: %T", v)
	}
	return nil
}

// writeCanonicalString escapes only quote, backslash and control characters.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	buf.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r < 0x20:
			fmt.Fprintf(buf, `\u%04x`, r)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

// UnmarshalValue decodes JSON into a Value.
// Floats and null are rejected.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return ValueOf(raw)
}

// Equal reports whether two values have identical canonical encodings.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ab, err := MarshalValue(a)
	if err != nil {
		return false
	}
	bb, err := MarshalValue(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
