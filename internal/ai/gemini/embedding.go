package gemini

import (
	"context"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/spigell/prefcanon/internal/similarity"
)

const defaultEmbeddingCacheSize = 1024

type embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingStrategy ranks candidates by cosine similarity of their
// embeddings. Vectors are memoized per lower-cased text.
type EmbeddingStrategy struct {
	client embedder
	cache  *lru.Cache[string, []float32]
}

func NewEmbeddingStrategy(client embedder, cacheSize int) (*EmbeddingStrategy, error) {
	if cacheSize <= 0 {
		cacheSize = defaultEmbeddingCacheSize
	}

	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, err
	}

	return &EmbeddingStrategy{client: client, cache: cache}, nil
}

func (s *EmbeddingStrategy) Name() string { return "embedding" }

func (s *EmbeddingStrategy) BestMatch(ctx context.Context, query string, candidates []string) (similarity.Match, error) {
	if len(candidates) == 0 || strings.TrimSpace(query) == "" {
		return similarity.NoMatch, nil
	}

	vectors, err := s.vectors(ctx, append([]string{query}, candidates...))
	if err != nil {
		return similarity.NoMatch, err
	}

	best := similarity.NoMatch
	for i, v := range vectors[1:] {
		score := similarity.Clamp(cosine(vectors[0], v))
		if best.Index < 0 || score > best.Score {
			best = similarity.Match{Index: i, Score: score}
		}
	}
	return best, nil
}

// vectors resolves every text, asking the API only for the ones not cached.
func (s *EmbeddingStrategy) vectors(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var (
		missing []string
		slots   = map[string][]int{}
	)
	for i, text := range texts {
		key := strings.ToLower(strings.TrimSpace(text))
		if v, ok := s.cache.Get(key); ok {
			out[i] = v
			continue
		}
		if _, queued := slots[key]; !queued {
			missing = append(missing, key)
		}
		slots[key] = append(slots[key], i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := s.client.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}

	for i, key := range missing {
		s.cache.Add(key, fetched[i])
		for _, slot := range slots[key] {
			out[slot] = fetched[i]
		}
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}

	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
