// Package profile keeps the user-facing preferences document in step with the
// schema, so every category has an editable entry.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/prefcanon/internal/logger"
	"github.com/spigell/prefcanon/internal/mapping"
	"github.com/spigell/prefcanon/internal/schema"
	"github.com/spigell/prefcanon/internal/utils"
)

// Load reads a preferences document. A missing file is an empty document.
func Load(path string) (mapping.Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return mapping.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading preferences %q: %w", path, err)
	}

	doc := mapping.Document{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding preferences %q: %w", path, err)
	}
	return doc, nil
}

// Save writes doc as indented JSON, replacing the file atomically.
func Save(path string, doc mapping.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	if err := utils.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing preferences %q: %w", path, err)
	}
	return nil
}

type Syncer struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

func NewSyncer(path string, log *zap.Logger) *Syncer {
	return &Syncer{path: path, logger: logger.OrNop(log)}
}

// Sync adds an empty list for every category missing from the document and
// returns the names it added. The file is only written when something was
// added.
func (s *Syncer) Sync(categories []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := Load(s.path)
	if err != nil {
		return nil, err
	}

	var added []string
	for _, name := range categories {
		if _, ok := doc[name]; ok {
			continue
		}
		doc[name] = mapping.List()
		added = append(added, name)
	}

	if len(added) == 0 {
		return nil, nil
	}

	if err := Save(s.path, doc); err != nil {
		return nil, err
	}

	s.logger.Info("preferences document extended", zap.String("path", s.path), zap.Strings("categories", added))
	return added, nil
}

// Attach syncs once with the current schema and then after every change.
// Failures are logged; they never block a schema mutation.
func (s *Syncer) Attach(store *schema.Store) error {
	if _, err := s.Sync(store.Names()); err != nil {
		return err
	}

	store.OnChange(func(categories []string) {
		if _, err := s.Sync(categories); err != nil {
			s.logger.Warn("preferences document not synced", zap.String("path", s.path), zap.Error(err))
		}
	})
	return nil
}
