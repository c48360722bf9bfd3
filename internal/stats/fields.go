package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
)

// Fields is an insertion-ordered mapping of field name to int32 value.
// Keys are unique; setting an existing key keeps its original position.
// The zero value is an empty, ready-to-use set.
type Fields struct {
	keys   []string
	values map[string]int32
}

// FieldsOf builds a Fields from alternating key/value pairs, mostly useful in
// tests and fixtures: FieldsOf("kills", 2, "deaths", 1).
func FieldsOf(pairs ...any) Fields {
	var f Fields
	for i := 0; i+1 < len(pairs); i += 2 {
		key, _ := pairs[i].(string)
		switch v := pairs[i+1].(type) {
		case int:
			f.Set(key, int32(v))
		case int32:
			f.Set(key, v)
		}
	}
	return f
}

// Set stores v under key.
func (f *Fields) Set(key string, v int32) {
	if f.values == nil {
		f.values = make(map[string]int32)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = v
}

// Get returns the value stored under key.
func (f Fields) Get(key string) (int32, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Len returns the number of fields.
func (f Fields) Len() int { return len(f.keys) }

// Keys returns the field names in insertion order.
func (f Fields) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// All iterates over fields in insertion order.
func (f Fields) All() iter.Seq2[string, int32] {
	return func(yield func(string, int32) bool) {
		for _, k := range f.keys {
			if !yield(k, f.values[k]) {
				return
			}
		}
	}
}

// Clone returns an independent copy.
func (f Fields) Clone() Fields {
	var out Fields
	for k, v := range f.All() {
		out.Set(k, v)
	}
	return out
}

// Equal reports whether both sets hold the same keys, in the same order,
// with the same values.
func (f Fields) Equal(o Fields) bool {
	if len(f.keys) != len(o.keys) {
		return false
	}
	for i, k := range f.keys {
		if o.keys[i] != k || f.values[k] != o.values[k] {
			return false
		}
	}
	return true
}

// MarshalJSON writes the fields as a JSON object preserving order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatInt(int64(f.values[k]), 10))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping the order in which keys appear.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("fields: expected object, got %v", tok)
	}
	*f = Fields{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var v int32
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("fields: value for %q: %w", key, err)
		}
		f.Set(key, v)
	}
	_, err = dec.Token()
	return err
}
