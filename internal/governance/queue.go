package governance

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/prefcanon/internal/logger"
	"github.com/spigell/prefcanon/internal/schema"
)

// Queue is the durable, ordered list of pending actions. Every mutation
// persists the whole list while holding the queue lock.
type Queue struct {
	mu      sync.Mutex
	actions []PendingAction
	path    string
	store   *schema.Store
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Queue)

func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Open loads the queue stored at path. A missing file starts an empty queue;
// an empty path keeps the queue in memory only.
func Open(path string, store *schema.Store, opts ...Option) (*Queue, error) {
	if store == nil {
		return nil, errors.New("governance queue requires a schema store")
	}

	q := &Queue{
		path:  path,
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = logger.OrNop(q.logger)

	if path != "" {
		actions, err := load(path)
		if err != nil {
			return nil, err
		}
		q.actions = actions
	}

	q.logger.Debug("pending actions loaded", zap.String("path", path), zap.Int("count", len(q.actions)))
	return q, nil
}

func (q *Queue) Path() string {
	return q.path
}

// Add appends the proposal with a fresh id. The action is queued even when
// persisting fails; in that case a *SaveError is returned with the id.
func (q *Queue) Add(p Proposal, score float64) (PendingAction, error) {
	if err := validate(p); err != nil {
		return PendingAction{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	action := PendingAction{
		ID:        q.newID(),
		Proposal:  p,
		Score:     score,
		CreatedAt: q.now().UTC(),
	}
	q.actions = append(q.actions, action)

	q.logger.Info("pending action added",
		append(logger.ActionFields(action.ID, string(action.Type())),
			zap.String("summary", action.String()),
			zap.Float64("score", score),
		)...,
	)

	return action, q.persist()
}

// AddFields queues the action described by the flat fields.
func (q *Queue) AddFields(t ActionType, f Fields, score float64) (PendingAction, error) {
	p, err := NewProposal(t, f)
	if err != nil {
		return PendingAction{}, err
	}
	return q.Add(p, score)
}

// List returns a copy of the queue in insertion order.
func (q *Queue) List() []PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.actions)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

func (q *Queue) Get(id string) (PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.index(id)
	if idx < 0 {
		return PendingAction{}, fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	return q.actions[idx], nil
}

// Approve applies the action to the schema store and removes it from the
// queue. Changes that are already present count as applied. Persistence
// failures of either file are returned after the action has been consumed.
func (q *Queue) Approve(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.index(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	action := q.actions[idx]
	log := logger.WithFields(q.logger, logger.ActionFields(action.ID, string(action.Type()))...)

	applyErr := q.store.Update(func(tx *schema.Tx) error {
		return apply(tx, action.Proposal, log)
	})

	var schemaSave *schema.SaveError
	if applyErr != nil && !errors.As(applyErr, &schemaSave) {
		return fmt.Errorf("approving %s: %w", id, applyErr)
	}

	q.actions = slices.Delete(q.actions, idx, idx+1)
	log.Info("pending action approved", zap.String("summary", action.String()))

	return errors.Join(applyErr, q.persist())
}

// Reject removes the action without touching the schema.
func (q *Queue) Reject(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.index(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	action := q.actions[idx]

	q.actions = slices.Delete(q.actions, idx, idx+1)
	logger.WithFields(q.logger, logger.ActionFields(action.ID, string(action.Type()))...).
		Info("pending action rejected", zap.String("summary", action.String()))

	return q.persist()
}

// apply writes an approved proposal through tx. Parents resolve through
// names and aliases ignoring case. An alias that already resolves somewhere
// is left as is.
func apply(tx *schema.Tx, p Proposal, log *zap.Logger) error {
	switch p := p.(type) {
	case CategoryMapping:
		category, err := tx.EnsureCategory(p.Category)
		if err != nil {
			return err
		}
		err = tx.AddCategorySynonym(category, p.Synonym)
		owner, _ := tx.ResolveCategory(p.Synonym)
		return schema.KeepExisting(log, err, owner, category)
	case ValueMapping:
		category, value, err := tx.EnsureValue(p.Category, p.Value)
		if err != nil {
			return err
		}
		err = tx.AddValueVariant(category, value, p.Variant)
		owner, _ := tx.ResolveValue(category, p.Variant)
		return schema.KeepExisting(log, err, owner, value)
	case CategoryCreation:
		_, err := tx.EnsureCategory(p.Category)
		return err
	case ValueCreation:
		_, _, err := tx.EnsureValue(p.Category, p.Value)
		return err
	case CategoryRejection, ValueRejection:
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrInvalidAction, p)
	}
}

func (q *Queue) index(id string) int {
	return slices.IndexFunc(q.actions, func(a PendingAction) bool { return a.ID == id })
}

func (q *Queue) persist() error {
	if q.path == "" {
		return nil
	}

	if err := save(q.path, q.actions); err != nil {
		q.logger.Warn("pending actions changed in memory but not persisted",
			zap.String("path", q.path),
			zap.Error(err),
		)
		return err
	}
	return nil
}
