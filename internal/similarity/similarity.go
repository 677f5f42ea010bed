// Package similarity scores how alike two labels are.
package similarity

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Scorer returns a similarity ratio in [0, 1]. Implementations must be
// symmetric, reflexive and case-insensitive.
type Scorer interface {
	Score(a, b string) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(a, b string) float64

func (f ScorerFunc) Score(a, b string) float64 { return f(a, b) }

// Levenshtein scores by normalized edit distance over lower-cased runes.
type Levenshtein struct{}

func (Levenshtein) Score(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if a == b {
		return 1
	}

	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}

	distance := levenshtein.ComputeDistance(a, b)
	return clamp(1 - float64(distance)/float64(longest))
}

// Match is the outcome of a best-match search over a candidate list.
type Match struct {
	// Index into the candidates, -1 when there were none.
	Index int
	Score float64
}

// NoMatch is returned when there is nothing to compare against.
var NoMatch = Match{Index: -1}

// Strategy picks the best candidate for a query. On equal scores the lowest
// index wins.
type Strategy interface {
	Name() string
	BestMatch(ctx context.Context, query string, candidates []string) (Match, error)
}

// Pairwise runs a Scorer against every candidate.
type Pairwise struct {
	Scorer Scorer
}

func (p Pairwise) Name() string { return "string" }

func (p Pairwise) BestMatch(_ context.Context, query string, candidates []string) (Match, error) {
	best := NoMatch
	for i, candidate := range candidates {
		score := p.Scorer.Score(query, candidate)
		if score > best.Score || best.Index < 0 {
			best = Match{Index: i, Score: score}
		}
	}
	return best, nil
}

// Tier pairs a strategy with the score it must reach to be trusted.
type Tier struct {
	Strategy  Strategy
	Threshold float64
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Clamp bounds a score to [0, 1]; NaN becomes 0.
func Clamp(v float64) float64 {
	if v != v {
		return 0
	}
	return clamp(v)
}
