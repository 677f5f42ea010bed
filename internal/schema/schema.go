// Package schema holds the canonical preference vocabulary: categories, their
// canonical values, and the synonyms and variants that resolve to them.
package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Schema is an ordered set of categories. Order is the file order followed by
// insertion order, and is the stable order used for tie-breaking.
type Schema struct {
	categories []*Category
	index      map[string]int
}

// Category is a canonical category with its canonical values and synonyms.
type Category struct {
	Name     string
	Values   []Value
	Synonyms []string
}

// Value is a canonical value together with its alternate spellings.
type Value struct {
	Name     string
	Variants []string
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{index: make(map[string]int)}
}

func (s *Schema) Len() int {
	return len(s.categories)
}

// Names returns category names in schema order.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.categories))
	for _, c := range s.categories {
		names = append(names, c.Name)
	}
	return names
}

// Category returns a copy of the named category.
func (s *Schema) Category(name string) (Category, bool) {
	c := s.lookup(name)
	if c == nil {
		return Category{}, false
	}
	return c.clone(), true
}

// Categories returns copies of all categories in schema order.
func (s *Schema) Categories() []Category {
	out := make([]Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c.clone())
	}
	return out
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	out := New()
	for _, c := range s.categories {
		cp := c.clone()
		out.append(&cp)
	}
	return out
}

// Equal reports whether both schemas hold the same categories in the same order.
func (s *Schema) Equal(other *Schema) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i, c := range s.categories {
		o := other.categories[i]
		if c.Name != o.Name || !slices.Equal(c.Synonyms, o.Synonyms) || len(c.Values) != len(o.Values) {
			return false
		}
		for j, v := range c.Values {
			if v.Name != o.Values[j].Name || !slices.Equal(v.Variants, o.Values[j].Variants) {
				return false
			}
		}
	}
	return true
}

func (s *Schema) lookup(name string) *Category {
	idx, ok := s.index[name]
	if !ok {
		return nil
	}
	return s.categories[idx]
}

func (s *Schema) append(c *Category) {
	s.index[c.Name] = len(s.categories)
	s.categories = append(s.categories, c)
}

// owner returns the category whose name or synonym equals text, ignoring case.
func (s *Schema) owner(text string) *Category {
	text = strings.TrimSpace(text)
	for _, c := range s.categories {
		if c.owns(text) {
			return c
		}
	}
	return nil
}

// resolve maps text to a category by exact name, then by owner.
func (s *Schema) resolve(text string) *Category {
	if c := s.lookup(text); c != nil {
		return c
	}
	return s.owner(text)
}

// check validates a decoded category against the categories already in s.
// Every name and synonym in the schema, and every value name and variant
// inside a category, must be unique ignoring case.
func (s *Schema) check(c *Category) error {
	if other := s.owner(c.Name); other != nil {
		return fmt.Errorf("%w: %q clashes with %q", ErrDuplicateCategory, c.Name, other.Name)
	}

	for i, syn := range c.Synonyms {
		if strings.EqualFold(syn, c.Name) || containsFold(c.Synonyms[:i], syn) {
			return fmt.Errorf("%w: %q repeated in %q", ErrDuplicateSynonym, syn, c.Name)
		}
		if other := s.owner(syn); other != nil {
			return fmt.Errorf("%w: %q already resolves to %q", ErrDuplicateSynonym, syn, other.Name)
		}
	}

	seen := &Category{}
	for _, v := range c.Values {
		if idx := seen.valueOwner(v.Name); idx >= 0 {
			return fmt.Errorf("%w: %q clashes with %q", ErrDuplicateValue, v.Name, seen.Values[idx].Name)
		}
		if containsFold(v.Variants, v.Name) {
			return fmt.Errorf("%w: value %q lists itself as a variant", ErrDuplicateVariant, v.Name)
		}
		seen.Values = append(seen.Values, Value{Name: v.Name})
		for _, variant := range v.Variants {
			if idx := seen.valueOwner(variant); idx >= 0 {
				return fmt.Errorf("%w: %q already resolves to %q", ErrDuplicateVariant, variant, seen.Values[idx].Name)
			}
			last := &seen.Values[len(seen.Values)-1]
			last.Variants = append(last.Variants, variant)
		}
	}

	return nil
}

func (s *Schema) addCategory(name string, synonyms []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("category: %w", ErrEmptyName)
	}

	if other := s.owner(name); other != nil {
		if strings.EqualFold(other.Name, name) {
			return fmt.Errorf("%w: %q already exists as %q", ErrDuplicateCategory, name, other.Name)
		}
		return fmt.Errorf("%w: %q is a synonym of %q", ErrDuplicateCategory, name, other.Name)
	}

	c := &Category{Name: name, Synonyms: []string{}}
	for _, syn := range synonyms {
		syn = strings.TrimSpace(syn)
		if syn == "" || c.owns(syn) || s.owner(syn) != nil {
			continue
		}
		c.Synonyms = append(c.Synonyms, syn)
	}

	s.append(c)
	return nil
}

func (s *Schema) addSynonym(category, synonym string) error {
	c := s.lookup(category)
	if c == nil {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	synonym = strings.TrimSpace(synonym)
	if synonym == "" {
		return fmt.Errorf("synonym: %w", ErrEmptyName)
	}

	if other := s.owner(synonym); other != nil {
		return fmt.Errorf("%w: %q already resolves to %q", ErrDuplicateSynonym, synonym, other.Name)
	}

	c.Synonyms = append(c.Synonyms, synonym)
	return nil
}

func (s *Schema) addValue(category, value string, variants []string) error {
	c := s.lookup(category)
	if c == nil {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("canonical value: %w", ErrEmptyName)
	}

	if idx := c.valueOwner(value); idx >= 0 {
		if strings.EqualFold(c.Values[idx].Name, value) {
			return fmt.Errorf("%w: %q already exists as %q in %q", ErrDuplicateValue, value, c.Values[idx].Name, c.Name)
		}
		return fmt.Errorf("%w: %q is a variant of %q in %q", ErrDuplicateValue, value, c.Values[idx].Name, c.Name)
	}

	v := Value{Name: value, Variants: []string{}}
	for _, variant := range variants {
		variant = strings.TrimSpace(variant)
		if variant == "" || strings.EqualFold(variant, value) || c.valueOwner(variant) >= 0 || containsFold(v.Variants, variant) {
			continue
		}
		v.Variants = append(v.Variants, variant)
	}

	c.Values = append(c.Values, v)
	return nil
}

func (s *Schema) addVariant(category, value, variant string) error {
	c := s.lookup(category)
	if c == nil {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	idx := c.valueIndex(value)
	if idx < 0 {
		return fmt.Errorf("%w: %q in %q", ErrUnknownValue, value, c.Name)
	}

	variant = strings.TrimSpace(variant)
	if variant == "" {
		return fmt.Errorf("variant: %w", ErrEmptyName)
	}

	if owner := c.valueOwner(variant); owner >= 0 {
		return fmt.Errorf("%w: %q already resolves to %q in %q", ErrDuplicateVariant, variant, c.Values[owner].Name, c.Name)
	}

	c.Values[idx].Variants = append(c.Values[idx].Variants, variant)
	return nil
}

func (c *Category) clone() Category {
	out := Category{
		Name:     c.Name,
		Synonyms: slices.Clone(c.Synonyms),
		Values:   make([]Value, 0, len(c.Values)),
	}
	if out.Synonyms == nil {
		out.Synonyms = []string{}
	}
	for _, v := range c.Values {
		variants := slices.Clone(v.Variants)
		if variants == nil {
			variants = []string{}
		}
		out.Values = append(out.Values, Value{Name: v.Name, Variants: variants})
	}
	return out
}

func (c *Category) valueIndex(name string) int {
	for i, v := range c.Values {
		if v.Name == name {
			return i
		}
	}
	return -1
}

func (c *Category) owns(text string) bool {
	return strings.EqualFold(c.Name, text) || containsFold(c.Synonyms, text)
}

// valueOwner returns the index of the value whose name or variant equals
// text, ignoring case, or -1.
func (c *Category) valueOwner(text string) int {
	text = strings.TrimSpace(text)
	for i, v := range c.Values {
		if strings.EqualFold(v.Name, text) || containsFold(v.Variants, text) {
			return i
		}
	}
	return -1
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
