package schema

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleSchema = `{
  "job_type": {
    "canonical_values": {
      "Full-time": [
        "Full Time"
      ],
      "Part-time": []
    },
    "synonyms": [
      "Employment Type"
    ]
  },
  "location": {
    "canonical_values": {},
    "synonyms": []
  }
}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadPreservesOrder(t *testing.T) {
	t.Parallel()

	s, err := Load(writeFile(t, "schema.json", sampleSchema))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := s.Names()
	if len(names) != 2 || names[0] != "job_type" || names[1] != "location" {
		t.Fatalf("unexpected category order: %v", names)
	}

	jobType, ok := s.Category("job_type")
	if !ok {
		t.Fatal("expected job_type category")
	}

	if len(jobType.Values) != 2 || jobType.Values[0].Name != "Full-time" || jobType.Values[1].Name != "Part-time" {
		t.Fatalf("unexpected values: %+v", jobType.Values)
	}

	if jobType.Values[0].Variants[0] != "Full Time" {
		t.Fatalf("unexpected variants: %v", jobType.Values[0].Variants)
	}
}

func TestSaveRoundTripIsByteIdentical(t *testing.T) {
	t.Parallel()

	src := writeFile(t, "schema.json", sampleSchema)
	s, err := Load(src)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	first := filepath.Join(t.TempDir(), "first.json")
	if err := Save(s, first); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := Load(first)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	if !reloaded.Equal(s) {
		t.Fatal("reloaded schema is not structurally equal to the original")
	}

	second := filepath.Join(t.TempDir(), "second.json")
	if err := Save(reloaded, second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if !bytes.Equal(a, b) {
		t.Fatalf("expected identical output:\n%s\n---\n%s", a, b)
	}

	if string(a) != sampleSchema {
		t.Fatalf("expected canonical formatting to match input:\n%s", a)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{name: "empty file", content: ""},
		{name: "not an object", content: `[]`},
		{name: "trailing data", content: `{} {}`},
		{name: "unknown field", content: `{"a": {"canonical_values": {}, "extra": 1}}`},
		{name: "category not object", content: `{"a": "b"}`},
		{name: "duplicate category", content: `{"a": {}, "a": {}}`, want: ErrDuplicateCategory},
		{name: "duplicate value", content: `{"a": {"canonical_values": {"x": [], "x": []}}}`, want: ErrDuplicateValue},
		{name: "value lists itself", content: `{"a": {"canonical_values": {"x": ["x"]}}}`, want: ErrDuplicateVariant},
		{name: "empty category name", content: `{"": {}}`, want: ErrEmptyName},
		{name: "duplicate category ignoring case", content: `{"a": {}, "A": {}}`, want: ErrDuplicateCategory},
		{name: "category equal to earlier synonym", content: `{"a": {"synonyms": ["b"]}, "B": {}}`, want: ErrDuplicateCategory},
		{name: "synonym equal to earlier category", content: `{"a": {}, "b": {"synonyms": ["A"]}}`, want: ErrDuplicateSynonym},
		{name: "value lists itself ignoring case", content: `{"a": {"canonical_values": {"x": ["X"]}}}`, want: ErrDuplicateVariant},
		{name: "variant shared by two values", content: `{"a": {"canonical_values": {"x": ["z"], "y": ["Z"]}}}`, want: ErrDuplicateVariant},
		{name: "variant equal to later value", content: `{"a": {"canonical_values": {"x": ["y"], "y": []}}}`, want: ErrDuplicateValue},
		{name: "duplicate value ignoring case", content: `{"a": {"canonical_values": {"x": [], "X": []}}}`, want: ErrDuplicateValue},
		{name: "synonyms wrong type", content: `{"a": {"synonyms": "b"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load(writeFile(t, "schema.json", tt.content))
			if err == nil {
				t.Fatal("expected error")
			}

			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("expected *LoadError, got %T", err)
			}

			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected *LoadError, got %v", err)
	}

	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist cause, got %v", err)
	}
}

func TestLoadNullFieldsDefaultToEmpty(t *testing.T) {
	t.Parallel()

	s, err := Unmarshal([]byte(`{"a": {"canonical_values": null, "synonyms": null}, "b": {"canonical_values": {"v": null}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if strings.Contains(string(data), "null") {
		t.Fatalf("expected nulls to be normalized, got:\n%s", data)
	}
}

func TestMarshalDoesNotEscapeHTML(t *testing.T) {
	t.Parallel()

	st := NewStore(nil)
	if err := st.AddCategory("R&D <lab>", nil); err != nil {
		t.Fatalf("add: %v", err)
	}

	data, err := Marshal(st.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if !strings.Contains(string(data), `"R&D <lab>"`) {
		t.Fatalf("expected raw characters, got:\n%s", data)
	}
}

func TestDefaultSchema(t *testing.T) {
	t.Parallel()

	s, err := Default()
	if err != nil {
		t.Fatalf("default schema does not parse: %v", err)
	}

	if s.Len() == 0 {
		t.Fatal("expected default categories")
	}

	data, err := Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if !bytes.Equal(data, DefaultBytes()) {
		t.Fatal("expected default schema to be stored in canonical form")
	}
}
