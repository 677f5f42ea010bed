package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spigell/prefcanon/internal/utils"
)

const (
	fieldCanonicalValues = "canonical_values"
	fieldSynonyms        = "synonyms"
)

// Load reads a schema file. A missing or malformed file is reported as a
// *LoadError; no default schema is substituted.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	s, err := Unmarshal(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	return s, nil
}

// Save writes the schema to path atomically.
func Save(s *Schema, path string) error {
	data, err := Marshal(s)
	if err != nil {
		return &SaveError{Path: path, Err: err}
	}

	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return &SaveError{Path: path, Err: err}
	}

	return nil
}

// Marshal encodes the schema as two-space indented JSON preserving category,
// value, synonym and variant order.
func Marshal(s *Schema) ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('{')
	for i, c := range s.categories {
		if i > 0 {
			compact.WriteByte(',')
		}
		if err := writeString(&compact, c.Name); err != nil {
			return nil, err
		}
		compact.WriteString(`:{"` + fieldCanonicalValues + `":{`)
		for j, v := range c.Values {
			if j > 0 {
				compact.WriteByte(',')
			}
			if err := writeString(&compact, v.Name); err != nil {
				return nil, err
			}
			compact.WriteByte(':')
			if err := writeStrings(&compact, v.Variants); err != nil {
				return nil, err
			}
		}
		compact.WriteString(`},"` + fieldSynonyms + `":`)
		if err := writeStrings(&compact, c.Synonyms); err != nil {
			return nil, err
		}
		compact.WriteByte('}')
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indenting schema: %w", err)
	}
	out.WriteByte('\n')

	return out.Bytes(), nil
}

// Unmarshal decodes a schema document of the shape
// {category: {canonical_values: {value: [variant...]}, synonyms: [alias...]}}.
// Unknown fields, non-object categories and any name, synonym, value or
// variant that would shadow another one (ignoring case) are rejected.
func Unmarshal(data []byte) (*Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	s := New()
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return nil, err
		}

		if name == "" {
			return nil, fmt.Errorf("category: %w", ErrEmptyName)
		}

		c, err := decodeCategory(dec, name)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", name, err)
		}

		if err := s.check(c); err != nil {
			return nil, err
		}

		s.append(c)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after schema object")
	}

	return s, nil
}

func decodeCategory(dec *json.Decoder, name string) (*Category, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	c := &Category{Name: name, Synonyms: []string{}}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}

		switch key {
		case fieldCanonicalValues:
			values, err := decodeValues(dec)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fieldCanonicalValues, err)
			}
			c.Values = values
		case fieldSynonyms:
			var synonyms []string
			if err := dec.Decode(&synonyms); err != nil {
				return nil, fmt.Errorf("%s: %w", fieldSynonyms, err)
			}
			if synonyms != nil {
				c.Synonyms = synonyms
			}
		default:
			return nil, fmt.Errorf("unknown field %q", key)
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}

	return c, nil
}

func decodeValues(dec *json.Decoder) ([]Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var values []Value
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return nil, err
		}

		if name == "" {
			return nil, fmt.Errorf("canonical value: %w", ErrEmptyName)
		}

		var variants []string
		if err := dec.Decode(&variants); err != nil {
			return nil, fmt.Errorf("value %q: %w", name, err)
		}
		if variants == nil {
			variants = []string{}
		}

		values = append(values, Value{Name: name, Variants: variants})
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}

	return values, nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

func writeStrings(buf *bytes.Buffer, list []string) error {
	buf.WriteByte('[')
	for i, s := range list {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, s); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}
