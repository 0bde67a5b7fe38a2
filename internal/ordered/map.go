// Package ordered provides an insertion-ordered string-keyed map that
// round-trips through JSON without reordering its keys.
//
// SMSHog uses it in two places where key order is observable: the
// MessageAttributes a client sent with a publish (stored verbatim) and the
// response envelopes, whose XML element order must match what SNS emits.
package ordered

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/zauberware/smshog/internal/jsoncodec"
)

// Pair is a single key/value entry of a [Map].
type Pair struct {
	Key   string
	Value any
}

// Map is an ordered list of key/value pairs.
//
// Values may be scalars, nested Maps or []any. Keys are expected to be
// unique; [Map.Set] keeps them that way, while literal construction is left
// to the caller.
type Map []Pair

// Get returns the value stored under key.
func (m Map) Get(key string) (any, bool) {
	for _, p := range m {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of an existing key in place or appends a new pair.
func (m Map) Set(key string, value any) Map {
	for i := range m {
		if m[i].Key == key {
			m[i].Value = value
			return m
		}
	}
	return append(m, Pair{Key: key, Value: value})
}

// Keys returns the keys in order.
func (m Map) Keys() []string {
	keys := make([]string, len(m))
	for i, p := range m {
		keys[i] = p.Key
	}
	return keys
}

// Clone returns a deep copy. Nested Maps and slices are copied; scalar
// values are shared.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for i, p := range m {
		out[i] = Pair{Key: p.Key, Value: cloneValue(p.Value)}
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Map:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON encodes the map as a JSON object in insertion order.
func (m Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := jsoncodec.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		val, err := jsoncodec.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", p.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order at every nesting
// level. Numbers are kept as [json.Number] so they re-encode unchanged.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("ordered: unexpected data after JSON value")
	}
	switch t := v.(type) {
	case nil:
		*m = nil
	case Map:
		*m = t
	default:
		return fmt.Errorf("ordered: expected JSON object, got %T", v)
	}
	return nil
}

// Parse decodes a JSON object into a Map.
func Parse(data []byte) (Map, error) {
	var m Map
	if err := m.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := Map{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, errors.New("ordered: object key is not a string")
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			obj = obj.Set(key, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil

	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil

	default:
		return nil, fmt.Errorf("ordered: unexpected delimiter %q", delim)
	}
}
