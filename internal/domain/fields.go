package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Fields is the raw field data of an incoming record: lowercase field name to
// one or more string values. A scalar is a one-element slice; a present but
// empty list is kept distinct from an absent field.
type Fields map[string][]string

// NewFields copies raw into a Fields value, lowercasing every key.
func NewFields(raw map[string][]string) Fields {
	f := make(Fields, len(raw))
	for k, v := range raw {
		key := strings.ToLower(k)
		f[key] = append(f[key], v...)
	}
	return f
}

// FieldsFromStrings builds Fields from scalar values.
func FieldsFromStrings(raw map[string]string) Fields {
	f := make(Fields, len(raw))
	for k, v := range raw {
		f[strings.ToLower(k)] = []string{v}
	}
	return f
}

// Lookup returns the values of a field and whether it is present at all.
func (f Fields) Lookup(name string) ([]string, bool) {
	v, ok := f[strings.ToLower(name)]
	return v, ok
}

// Has reports whether the field is present, even if empty.
func (f Fields) Has(name string) bool {
	_, ok := f.Lookup(name)
	return ok
}

// Get returns the field's values joined with commas, or "" when absent.
func (f Fields) Get(name string) string {
	v, _ := f.Lookup(name)
	return strings.Join(v, ",")
}

// Empty reports whether the field is absent or holds only blank values.
func (f Fields) Empty(name string) bool {
	v, ok := f.Lookup(name)
	if !ok {
		return true
	}
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// Set replaces a field with a single value.
func (f Fields) Set(name, value string) {
	f[strings.ToLower(name)] = []string{value}
}

// Flat returns a name -> joined value map, suitable for expression evaluation.
func (f Fields) Flat() map[string]string {
	out := make(map[string]string, len(f))
	for k := range f {
		out[k] = f.Get(k)
	}
	return out
}

// Names returns the field names in sorted order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// UnmarshalJSON accepts each field as a string, number, bool, null or list of
// those. Keys are lowercased the way the upstream transport delivers them.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Fields, len(raw))
	for k, msg := range raw {
		values, err := decodeFieldValue(msg)
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		key := strings.ToLower(k)
		out[key] = append(out[key], values...)
	}
	*f = out
	return nil
}

func decodeFieldValue(msg json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []string{}, nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		values := make([]string, 0, len(items))
		for _, item := range items {
			s, err := decodeScalar(item)
			if err != nil {
				return nil, err
			}
			values = append(values, s)
		}
		return values, nil
	}

	s, err := decodeScalar(trimmed)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

func decodeScalar(msg json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		if val {
			return "1", nil
		}
		return "", nil
	default:
		return "", fmt.Errorf("unsupported value %s", string(msg))
	}
}
