package similarity

import (
	"context"
	"math"
	"testing"
)

func TestLevenshteinScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "remote", b: "remote", want: 1},
		{name: "case insensitive", a: "Remote", b: "REMOTE", want: 1},
		{name: "both empty", a: "", b: "", want: 1},
		{name: "one empty", a: "", b: "remote", want: 0},
		{name: "single edit", a: "full-tim", b: "full-time", want: 1 - 1.0/9},
		{name: "space vs hyphen", a: "full time", b: "full-time", want: 1 - 1.0/9},
		{name: "unicode runes", a: "Москва", b: "москва", want: 1},
		{name: "disjoint", a: "abc", b: "xyz", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Levenshtein{}.Score(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Score(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestLevenshteinProperties(t *testing.T) {
	t.Parallel()

	samples := []string{"", "a", "Remote", "remote work", "Full-time", "Permanent", "Part Time", "Hybrid", "On-Site", "日本語"}
	scorer := Levenshtein{}

	for _, a := range samples {
		if got := scorer.Score(a, a); got != 1 {
			t.Fatalf("expected reflexive score for %q, got %v", a, got)
		}

		for _, b := range samples {
			ab := scorer.Score(a, b)
			ba := scorer.Score(b, a)

			if ab < 0 || ab > 1 {
				t.Fatalf("score out of bounds for (%q, %q): %v", a, b, ab)
			}

			if ab != ba {
				t.Fatalf("expected symmetric scores for (%q, %q): %v != %v", a, b, ab, ba)
			}
		}
	}
}

func TestCachedScorer(t *testing.T) {
	t.Parallel()

	calls := 0
	inner := ScorerFunc(func(a, b string) float64 {
		calls++
		return Levenshtein{}.Score(a, b)
	})

	cached, err := NewCached(inner, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := cached.Score("Remote", "remote work")
	second := cached.Score("REMOTE WORK", "remote")

	if first != second {
		t.Fatalf("expected identical cached score, got %v and %v", first, second)
	}

	if calls != 1 {
		t.Fatalf("expected one underlying call, got %d", calls)
	}

	cached.Score("a", "b")
	cached.Score("c", "d")

	if cached.Len() != 2 {
		t.Fatalf("expected cache to stay bounded at 2, got %d", cached.Len())
	}

	cached.Score("Remote", "remote work")
	if calls != 4 {
		t.Fatalf("expected evicted pair to be recomputed, got %d calls", calls)
	}
}

func TestPairwiseBestMatch(t *testing.T) {
	t.Parallel()

	strategy := Pairwise{Scorer: Levenshtein{}}

	match, err := strategy.BestMatch(context.Background(), "alphc", []string{"zzzzz", "alpha", "alphb"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if match.Index != 1 {
		t.Fatalf("expected first of the tied candidates, got index %d", match.Index)
	}

	if math.Abs(match.Score-0.8) > 1e-9 {
		t.Fatalf("expected score 0.8, got %v", match.Score)
	}

	none, _ := strategy.BestMatch(context.Background(), "x", nil)
	if none.Index != -1 || none.Score != 0 {
		t.Fatalf("expected no match, got %+v", none)
	}
}

func TestClamp(t *testing.T) {
	t.Parallel()

	if Clamp(math.NaN()) != 0 || Clamp(-1) != 0 || Clamp(2) != 1 || Clamp(0.5) != 0.5 {
		t.Fatal("unexpected clamp result")
	}
}
