package mapping

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/prefcanon/internal/logger"
	"github.com/spigell/prefcanon/internal/matcher"
)

// Summary counts what a mapping pass did.
type Summary struct {
	Categories int `json:"categories"`
	Values     int `json:"values"`
	Unresolved int `json:"unresolved"`
	Pending    int `json:"pending"`
}

type Mapper struct {
	matcher *matcher.Matcher
	opts    matcher.Options
	logger  *zap.Logger
}

func NewMapper(m *matcher.Matcher, opts matcher.Options, log *zap.Logger) *Mapper {
	return &Mapper{matcher: m, opts: opts, logger: logger.OrNop(log)}
}

// Map returns a canonical copy of doc. Entries that cannot be resolved are
// kept as they are.
func (mp *Mapper) Map(ctx context.Context, doc Document) Document {
	out, _ := mp.MapWithSummary(ctx, doc)
	return out
}

// MapWithSummary is Map plus statistics. Keys are visited in sorted order so
// merges of colliding categories are deterministic.
func (mp *Mapper) MapWithSummary(ctx context.Context, doc Document) (Document, Summary) {
	var summary Summary
	b := builder{out: make(Document, len(doc)), origin: make(map[string]string, len(doc)), logger: mp.logger}

	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		value := doc[key]

		res, actions := mp.matcher.MatchCategory(ctx, key, mp.opts)
		summary.Pending += len(actions)

		if !res.Found {
			summary.Unresolved++
			mp.logger.Debug("category left as is", logger.MatchFields(key, "")...)
			b.put(key, key, value)
			continue
		}

		summary.Categories++
		mapped := mp.mapValue(ctx, res.Name, value, &summary)
		b.put(key, res.Name, mapped)
	}

	mp.logger.Info("preferences mapped",
		zap.Int("categories", summary.Categories),
		zap.Int("values", summary.Values),
		zap.Int("unresolved", summary.Unresolved),
		zap.Int("pending", summary.Pending),
	)

	return b.out, summary
}

func (mp *Mapper) mapValue(ctx context.Context, category string, value Value, summary *Summary) Value {
	switch value.Kind() {
	case KindString:
		return String(mp.mapLabel(ctx, category, value.str, summary))
	case KindList:
		mapped := make([]string, 0, len(value.list))
		for _, label := range value.list {
			mapped = append(mapped, mp.mapLabel(ctx, category, label, summary))
		}
		return List(mapped...)
	default:
		return value
	}
}

func (mp *Mapper) mapLabel(ctx context.Context, category, label string, summary *Summary) string {
	if strings.TrimSpace(label) == "" {
		return label
	}

	res, actions := mp.matcher.MatchValue(ctx, category, label, mp.opts)
	summary.Pending += len(actions)

	if !res.Found {
		summary.Unresolved++
		return label
	}

	summary.Values++
	return res.Name
}

type builder struct {
	out    Document
	origin map[string]string
	logger *zap.Logger
}

// put stores value under key, merging label sets when another input already
// resolved to the same key. Raw values cannot be merged, so on a clash the
// entry whose input key differs from key keeps its input key.
func (b *builder) put(input, key string, value Value) {
	existing, taken := b.out[key]
	if !taken {
		b.out[key] = value
		b.origin[key] = input
		return
	}

	log := b.logger.With(logger.MatchFields(key, input)...)

	if existing.Kind() != KindRaw && value.Kind() != KindRaw {
		b.out[key] = merge(existing, value)
		log.Debug("merged preference values")
		return
	}

	if input != key {
		b.out[input] = value
		b.origin[input] = input
		log.Warn("cannot merge raw preference value, keeping input key")
		return
	}

	// The incoming entry already uses the canonical spelling; move the earlier one.
	prev := b.origin[key]
	b.out[prev] = existing
	b.origin[prev] = prev
	b.out[key] = value
	b.origin[key] = input
	log.Warn("cannot merge raw preference value, keeping input key", zap.String("moved", prev))
}

func merge(a, b Value) Value {
	var labels []string
	for _, label := range append(a.Labels(), b.Labels()...) {
		if !slices.Contains(labels, label) {
			labels = append(labels, label)
		}
	}

	if a.Kind() == KindString && b.Kind() == KindString && len(labels) == 1 {
		return String(labels[0])
	}
	return List(labels...)
}
