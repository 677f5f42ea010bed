// Package matcher resolves free-form labels against the canonical schema and
// queues proposals for anything it is not sure about.
package matcher

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/prefcanon/internal/governance"
	"github.com/spigell/prefcanon/internal/logger"
	"github.com/spigell/prefcanon/internal/schema"
	"github.com/spigell/prefcanon/internal/similarity"
)

const (
	DefaultThreshold = 0.8
	DefaultNearMiss  = 0.5

	// Value-level fuzzy hits inside this band also queue a rejection.
	marginalLow  = 0.7
	marginalHigh = 0.9

	StrategyExact = "exact"
)

// Result is the outcome of one match. Found is false and Confidence is zero
// when nothing reached the threshold.
type Result struct {
	Name       string
	Confidence float64
	Found      bool
	Strategy   string
}

// Options control a single match call.
type Options struct {
	// Threshold outside (0, 1] falls back to the matcher default.
	Threshold          float64
	CreatePending      bool
	ForcePendingForNew bool
}

type Matcher struct {
	store       *schema.Store
	queue       *governance.Queue
	scorer      similarity.Scorer
	tiers       []similarity.Tier
	threshold   float64
	nearMiss    float64
	cacheSize   int
	tierTimeout time.Duration
	logger      *zap.Logger
}

type Option func(*Matcher)

// WithScorer replaces the Levenshtein string scorer.
func WithScorer(scorer similarity.Scorer) Option {
	return func(m *Matcher) { m.scorer = scorer }
}

// WithSemantic adds tiers that are consulted, in order, before the string scorer.
func WithSemantic(tiers ...similarity.Tier) Option {
	return func(m *Matcher) {
		for _, tier := range tiers {
			if tier.Strategy != nil {
				m.tiers = append(m.tiers, tier)
			}
		}
	}
}

func WithNearMiss(bar float64) Option {
	return func(m *Matcher) { m.nearMiss = bar }
}

func WithCacheSize(size int) Option {
	return func(m *Matcher) { m.cacheSize = size }
}

func WithDefaultThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if validThreshold(threshold) {
			m.threshold = threshold
		}
	}
}

// WithTierTimeout bounds each semantic tier call. Zero leaves ctx as is.
func WithTierTimeout(d time.Duration) Option {
	return func(m *Matcher) { m.tierTimeout = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Matcher) { m.logger = logger }
}

// New builds a matcher over store. queue may be nil, in which case no
// pending actions are ever recorded.
func New(store *schema.Store, queue *governance.Queue, opts ...Option) (*Matcher, error) {
	if store == nil {
		return nil, errors.New("matcher requires a schema store")
	}

	m := &Matcher{
		store:     store,
		queue:     queue,
		scorer:    similarity.Levenshtein{},
		threshold: DefaultThreshold,
		nearMiss:  DefaultNearMiss,
		cacheSize: similarity.DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.OrNop(m.logger)

	cached, err := similarity.NewCached(m.scorer, m.cacheSize)
	if err != nil {
		return nil, err
	}
	m.scorer = cached

	return m, nil
}

// Store returns the schema store the matcher reads from.
func (m *Matcher) Store() *schema.Store {
	return m.store
}

// MatchCategory resolves input to a category name.
func (m *Matcher) MatchCategory(ctx context.Context, input string, opts Options) (Result, []governance.PendingAction) {
	input = strings.TrimSpace(input)
	log := m.logger.With(logger.MatchFields(input, "")...)

	res, best := m.match(ctx, log, input, m.store.CategoryCandidates(), opts)
	if !opts.CreatePending || m.queue == nil || input == "" {
		return res, nil
	}

	switch {
	case res.Found && res.Confidence < 1:
		return res, m.propose(log, res.Confidence, governance.CategoryMapping{Category: res.Name, Synonym: input})
	case !res.Found && (best > m.nearMiss || opts.ForcePendingForNew):
		return res, m.propose(log, creationScore(best, m.nearMiss), governance.CategoryCreation{Category: input})
	}
	return res, nil
}

// MatchValue resolves input to a canonical value inside category. The
// category is looked up by name or synonym and is never created here.
func (m *Matcher) MatchValue(ctx context.Context, category, input string, opts Options) (Result, []governance.PendingAction) {
	input = strings.TrimSpace(input)
	log := m.logger.With(logger.MatchFields(category, input)...)

	resolved, ok := m.store.ResolveCategory(category)
	if !ok {
		log.Debug("category not in schema")
		category = strings.TrimSpace(category)
		if opts.CreatePending && opts.ForcePendingForNew && m.queue != nil && input != "" && category != "" {
			return Result{}, m.propose(log, 0, governance.ValueCreation{Category: category, Value: input})
		}
		return Result{}, nil
	}

	// Categories are never removed, so the lookup cannot fail after ResolveCategory.
	candidates, _ := m.store.ValueCandidates(resolved)

	res, best := m.match(ctx, log, input, candidates, opts)
	if !opts.CreatePending || m.queue == nil || input == "" {
		return res, nil
	}

	switch {
	case res.Found && res.Confidence < 1:
		actions := m.propose(log, res.Confidence, governance.ValueMapping{Category: resolved, Value: res.Name, Variant: input})
		if res.Confidence >= marginalLow && res.Confidence <= marginalHigh {
			actions = append(actions, m.propose(log, res.Confidence, governance.ValueRejection{Category: resolved, Value: res.Name, Variant: input})...)
		}
		return res, actions
	case !res.Found && (best > m.nearMiss || opts.ForcePendingForNew):
		return res, m.propose(log, creationScore(best, m.nearMiss), governance.ValueCreation{Category: resolved, Value: input})
	}
	return res, nil
}

// match returns the result and the best string score seen, which feeds the
// near-miss decision.
func (m *Matcher) match(ctx context.Context, log *zap.Logger, input string, candidates []schema.Candidate, opts Options) (Result, float64) {
	if input == "" || len(candidates) == 0 {
		return Result{}, 0
	}

	for _, c := range candidates {
		if strings.EqualFold(input, c.Text) {
			log.Debug("exact match", zap.String("canonical", c.Canonical))
			return Result{Name: c.Canonical, Confidence: 1, Found: true, Strategy: StrategyExact}, 1
		}
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	threshold := m.threshold
	if validThreshold(opts.Threshold) {
		threshold = opts.Threshold
	}

	for _, tier := range m.tiers {
		name := tier.Strategy.Name()
		hit, err := m.bestMatch(ctx, tier.Strategy, input, texts)
		if err != nil {
			log.Warn("semantic tier unavailable, falling back", zap.String("strategy", name), zap.Error(err))
			continue
		}
		if hit.Index < 0 || hit.Index >= len(candidates) {
			continue
		}

		score := similarity.Clamp(hit.Score)
		if score < tier.Threshold {
			log.Debug("semantic tier below threshold",
				zap.String("strategy", name),
				zap.String("candidate", texts[hit.Index]),
				zap.Float64("score", score),
			)
			continue
		}

		log.Debug("semantic match", zap.String("strategy", name), zap.String("canonical", candidates[hit.Index].Canonical), zap.Float64("score", score))
		return Result{Name: candidates[hit.Index].Canonical, Confidence: score, Found: true, Strategy: name}, score
	}

	str := similarity.Pairwise{Scorer: m.scorer}
	hit, _ := str.BestMatch(ctx, input, texts)
	if hit.Index < 0 {
		return Result{}, 0
	}

	if hit.Score >= threshold {
		log.Debug("fuzzy match", zap.String("canonical", candidates[hit.Index].Canonical), zap.Float64("score", hit.Score))
		return Result{Name: candidates[hit.Index].Canonical, Confidence: hit.Score, Found: true, Strategy: str.Name()}, hit.Score
	}

	log.Debug("no match",
		zap.String("closest", texts[hit.Index]),
		zap.Float64("score", hit.Score),
		zap.Float64("threshold", threshold),
	)
	return Result{}, hit.Score
}

func (m *Matcher) bestMatch(ctx context.Context, strategy similarity.Strategy, input string, texts []string) (similarity.Match, error) {
	if m.tierTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.tierTimeout)
		defer cancel()
	}
	return strategy.BestMatch(ctx, input, texts)
}

func (m *Matcher) propose(log *zap.Logger, score float64, p governance.Proposal) []governance.PendingAction {
	action, err := m.queue.Add(p, score)

	var saveErr *governance.SaveError
	switch {
	case err == nil:
	case errors.As(err, &saveErr):
		log.Warn("pending action queued but not persisted", zap.Error(err))
	default:
		log.Warn("pending action not queued", zap.Error(err))
		return nil
	}

	return []governance.PendingAction{action}
}

// creationScore is the near-miss score behind a creation, or zero when the
// creation was forced.
func creationScore(best, nearMiss float64) float64 {
	if best > nearMiss {
		return best
	}
	return 0
}

func validThreshold(t float64) bool {
	return t > 0 && t <= 1
}
