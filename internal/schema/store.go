package schema

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/prefcanon/internal/logger"
)

// Store owns the live schema. All mutations go through it so that the
// read-modify-persist sequence happens under a single lock.
type Store struct {
	mu          sync.RWMutex
	schema      *Schema
	path        string
	autoPersist bool
	logger      *zap.Logger
	subscribers []func(categories []string)
}

type Option func(*Store)

// WithPath sets the file the store persists to.
func WithPath(path string) Option {
	return func(st *Store) { st.path = path }
}

// WithAutoPersist toggles saving after every successful mutation. It is on by
// default and has no effect without a path.
func WithAutoPersist(enabled bool) Option {
	return func(st *Store) { st.autoPersist = enabled }
}

func WithLogger(logger *zap.Logger) Option {
	return func(st *Store) { st.logger = logger }
}

// NewStore takes ownership of s. A nil schema starts empty.
func NewStore(s *Schema, opts ...Option) *Store {
	if s == nil {
		s = New()
	}

	st := &Store{schema: s, autoPersist: true}
	for _, opt := range opts {
		opt(st)
	}
	st.logger = logger.OrNop(st.logger)

	return st
}

func (st *Store) Path() string {
	return st.path
}

// OnChange registers fn to be called with the category names after every
// successful mutation.
func (st *Store) OnChange(fn func(categories []string)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.subscribers = append(st.subscribers, fn)
}

// Tx exposes the mutation operations inside Update.
type Tx struct {
	schema  *Schema
	changed bool
	applied []string
}

func (tx *Tx) record(err error, format string, args ...any) error {
	if err != nil {
		return err
	}
	tx.changed = true
	tx.applied = append(tx.applied, fmt.Sprintf(format, args...))
	return nil
}

func (tx *Tx) AddCategory(name string, synonyms []string) error {
	return tx.record(tx.schema.addCategory(name, synonyms), "add category %q", name)
}

func (tx *Tx) AddCategorySynonym(category, synonym string) error {
	return tx.record(tx.schema.addSynonym(category, synonym), "add synonym %q to %q", synonym, category)
}

func (tx *Tx) AddCanonicalValue(category, value string, variants []string) error {
	return tx.record(tx.schema.addValue(category, value, variants), "add value %q to %q", value, category)
}

func (tx *Tx) AddValueVariant(category, value, variant string) error {
	return tx.record(tx.schema.addVariant(category, value, variant), "add variant %q to %q.%q", variant, category, value)
}

func (tx *Tx) HasCategory(name string) bool {
	return tx.schema.lookup(name) != nil
}

func (tx *Tx) HasValue(category, value string) bool {
	c := tx.schema.lookup(category)
	return c != nil && c.valueIndex(value) >= 0
}

// ResolveCategory maps text to a category name by exact name, or by a
// case-insensitive match on a name or synonym.
func (tx *Tx) ResolveCategory(text string) (string, bool) {
	if c := tx.schema.resolve(text); c != nil {
		return c.Name, true
	}
	return "", false
}

// ResolveValue maps text to a canonical value of category by a
// case-insensitive match on a value name or variant.
func (tx *Tx) ResolveValue(category, text string) (string, bool) {
	c := tx.schema.lookup(category)
	if c == nil {
		return "", false
	}
	if idx := c.valueIndex(text); idx >= 0 {
		return c.Values[idx].Name, true
	}
	if idx := c.valueOwner(text); idx >= 0 {
		return c.Values[idx].Name, true
	}
	return "", false
}

// EnsureCategory returns the category that name resolves to, by exact name
// or ignoring case on a name or synonym, adding it when nothing matches.
func (tx *Tx) EnsureCategory(name string) (string, error) {
	name = strings.TrimSpace(name)
	if c := tx.schema.resolve(name); c != nil {
		return c.Name, nil
	}
	if err := tx.AddCategory(name, nil); err != nil {
		return "", err
	}
	return name, nil
}

// EnsureValue is EnsureCategory followed by the same resolve-or-add for the
// canonical value. It returns the names as stored.
func (tx *Tx) EnsureValue(category, value string) (string, string, error) {
	category, err := tx.EnsureCategory(category)
	if err != nil {
		return "", "", err
	}

	value = strings.TrimSpace(value)
	if resolved, ok := tx.ResolveValue(category, value); ok {
		return category, resolved, nil
	}
	if err := tx.AddCanonicalValue(category, value, nil); err != nil {
		return "", "", err
	}
	return category, value, nil
}

// Update runs fn under the write lock. When fn changed the schema it is
// persisted (if auto-persist is on) and subscribers are notified, even if fn
// returned an error after a partial change. A failed save is returned as a
// *SaveError; the in-memory change is kept.
func (st *Store) Update(fn func(tx *Tx) error) error {
	st.mu.Lock()

	tx := &Tx{schema: st.schema}
	err := fn(tx)
	if !tx.changed {
		st.mu.Unlock()
		return err
	}

	var saveErr error
	if st.autoPersist && st.path != "" {
		saveErr = Save(st.schema, st.path)
	}

	names := st.schema.Names()
	subscribers := append([]func([]string){}, st.subscribers...)
	st.mu.Unlock()

	for _, applied := range tx.applied {
		st.logger.Info("schema updated", zap.String("change", applied))
	}

	if saveErr != nil {
		st.logger.Warn("schema change applied in memory but not persisted",
			zap.String("path", st.path),
			zap.Error(saveErr),
		)
	}

	for _, notify := range subscribers {
		notify(names)
	}

	switch {
	case err == nil:
		return saveErr
	case saveErr == nil:
		return err
	default:
		return errors.Join(err, saveErr)
	}
}

func (st *Store) AddCategory(name string, synonyms []string) error {
	return st.Update(func(tx *Tx) error { return tx.AddCategory(name, synonyms) })
}

func (st *Store) AddCategorySynonym(category, synonym string) error {
	return st.Update(func(tx *Tx) error { return tx.AddCategorySynonym(category, synonym) })
}

func (st *Store) AddCanonicalValue(category, value string, variants []string) error {
	return st.Update(func(tx *Tx) error { return tx.AddCanonicalValue(category, value, variants) })
}

func (st *Store) AddValueVariant(category, value, variant string) error {
	return st.Update(func(tx *Tx) error { return tx.AddValueVariant(category, value, variant) })
}

// ApplyFeedback records a human correction: categoryVariant should have
// resolved to category and valueVariant to value. Missing parents are created.
// A spelling that already resolves somewhere is left alone, with a warning
// when that is not the requested target.
func (st *Store) ApplyFeedback(categoryVariant, valueVariant, category, value string) error {
	return st.Update(func(tx *Tx) error {
		cat, val, err := tx.EnsureValue(category, value)
		if err != nil {
			return err
		}

		if categoryVariant != "" && categoryVariant != cat {
			addErr := tx.AddCategorySynonym(cat, categoryVariant)
			owner, _ := tx.ResolveCategory(categoryVariant)
			if err := KeepExisting(st.logger, addErr, owner, cat); err != nil {
				return err
			}
		}

		if valueVariant != "" && valueVariant != val {
			addErr := tx.AddValueVariant(cat, val, valueVariant)
			owner, _ := tx.ResolveValue(cat, valueVariant)
			if err := KeepExisting(st.logger, addErr, owner, val); err != nil {
				return err
			}
		}

		return nil
	})
}

// KeepExisting treats a duplicate error from adding an alias as a no-op.
// When the alias already resolves to owner rather than target the existing
// mapping wins and a warning is logged. Other errors are returned.
func KeepExisting(log *zap.Logger, err error, owner, target string) error {
	if err == nil || !IsDuplicate(err) {
		return err
	}
	if owner != target {
		log.Warn("alias already resolves elsewhere, left unchanged",
			zap.String("owner", owner),
			zap.String("target", target),
			zap.Error(err),
		)
	}
	return nil
}

// Save writes the current schema to the store path regardless of auto-persist.
func (st *Store) Save() error {
	if st.path == "" {
		return &SaveError{Err: errors.New("store has no path")}
	}

	st.mu.RLock()
	defer st.mu.RUnlock()

	return Save(st.schema, st.path)
}

// Snapshot returns a deep copy of the current schema.
func (st *Store) Snapshot() *Schema {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.schema.Clone()
}

func (st *Store) Names() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.schema.Names()
}

func (st *Store) Category(name string) (Category, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.schema.Category(name)
}

// Values returns the canonical value names of a category.
func (st *Store) Values(category string) ([]string, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	c := st.schema.lookup(category)
	if c == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	names := make([]string, 0, len(c.Values))
	for _, v := range c.Values {
		names = append(names, v.Name)
	}
	return names, nil
}

// Variants returns the variants registered for a canonical value.
func (st *Store) Variants(category, value string) ([]string, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	c := st.schema.lookup(category)
	if c == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	idx := c.valueIndex(value)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q in %q", ErrUnknownValue, value, category)
	}

	return append([]string{}, c.Values[idx].Variants...), nil
}

// Candidate is a matchable surface string and the canonical name it resolves to.
type Candidate struct {
	Text      string
	Canonical string
}

// CategoryCandidates lists every category name followed by its synonyms, in
// schema order.
func (st *Store) CategoryCandidates() []Candidate {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []Candidate
	for _, c := range st.schema.categories {
		out = append(out, Candidate{Text: c.Name, Canonical: c.Name})
		for _, syn := range c.Synonyms {
			out = append(out, Candidate{Text: syn, Canonical: c.Name})
		}
	}
	return out
}

// ValueCandidates lists every canonical value of category followed by its
// variants, in schema order.
func (st *Store) ValueCandidates(category string) ([]Candidate, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	c := st.schema.lookup(category)
	if c == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	var out []Candidate
	for _, v := range c.Values {
		out = append(out, Candidate{Text: v.Name, Canonical: v.Name})
		for _, variant := range v.Variants {
			out = append(out, Candidate{Text: variant, Canonical: v.Name})
		}
	}
	return out, nil
}

// ResolveCategory maps input to a category name by exact key, then by a
// case-insensitive match on a name or synonym.
func (st *Store) ResolveCategory(input string) (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if c := st.schema.resolve(input); c != nil {
		return c.Name, true
	}
	return "", false
}
