// Package mapping rewrites whole preference documents into the canonical
// vocabulary.
package mapping

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

type Kind int

const (
	KindString Kind = iota
	KindList
	KindRaw
)

// Value is one preference entry: a single label, a list of labels, or any
// other JSON value that is carried through untouched.
type Value struct {
	kind Kind
	str  string
	list []string
	raw  json.RawMessage
}

func String(s string) Value {
	return Value{kind: KindString, str: s}
}

func List(items ...string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{kind: KindList, list: items}
}

// Raw keeps data as compact JSON. Invalid or empty JSON becomes null.
func Raw(data json.RawMessage) Value {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return Value{kind: KindRaw, raw: json.RawMessage("null")}
	}
	return Value{kind: KindRaw, raw: buf.Bytes()}
}

func (v Value) Kind() Kind {
	return v.kind
}

// Labels returns the string labels held by v, or nil for raw values.
func (v Value) Labels() []string {
	switch v.kind {
	case KindString:
		return []string{v.str}
	case KindList:
		return append([]string{}, v.list...)
	default:
		return nil
	}
}

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != other.list[i] {
				return false
			}
		}
		return true
	default:
		return bytes.Equal(v.raw, other.raw)
	}
}

func (v Value) String() string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		if len(v.raw) == 0 {
			return []byte("null"), nil
		}
		return v.raw, nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errors.New("empty preference value")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '[':
		var items []any
		if err := json.Unmarshal(trimmed, &items); err == nil {
			if list, err := decodeValue(items); err == nil && list.Kind() == KindList {
				*v = list
				return nil
			}
		}
	}

	if !json.Valid(trimmed) {
		return fmt.Errorf("invalid preference value %q", trimmed)
	}
	*v = Raw(trimmed)
	return nil
}

// Document maps a category label to its value.
type Document map[string]Value

// Decode builds a document from generic data such as a YAML or JSON tree.
// Lists of strings become list values; any other shape, including a list
// holding numbers, booleans or nulls, is kept raw.
func Decode(data map[string]any) (Document, error) {
	doc := make(Document, len(data))
	for key, raw := range data {
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding %q: %w", key, err)
		}
		doc[key] = v
	}
	return doc, nil
}

func decodeValue(raw any) (Value, error) {
	switch typed := raw.(type) {
	case string:
		return String(typed), nil
	case []any, []string:
		var list []string
		if allStrings(typed) && mapstructure.Decode(typed, &list) == nil {
			return List(list...), nil
		}
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return Value{}, err
	}
	return Raw(data), nil
}

// allStrings reports whether every list element is a string. mapstructure
// turns a nil element into "" without an error.
func allStrings(list any) bool {
	items, ok := list.([]any)
	if !ok {
		return true
	}
	for _, item := range items {
		if _, ok := item.(string); !ok {
			return false
		}
	}
	return true
}
