package similarity

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 4096

type pairKey struct {
	a, b string
}

// Cached memoizes another Scorer. Keys are the lower-cased pair in sorted
// order, so Score(a, b) and Score(b, a) share an entry.
type Cached struct {
	scorer Scorer
	cache  *lru.Cache[pairKey, float64]
}

// NewCached wraps scorer with a bounded LRU of the given size.
func NewCached(scorer Scorer, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	cache, err := lru.New[pairKey, float64](size)
	if err != nil {
		return nil, err
	}

	return &Cached{scorer: scorer, cache: cache}, nil
}

func (c *Cached) Score(a, b string) float64 {
	key := newPairKey(a, b)
	if score, ok := c.cache.Get(key); ok {
		return score
	}

	score := c.scorer.Score(key.a, key.b)
	c.cache.Add(key, score)
	return score
}

// Len reports the number of memoized pairs.
func (c *Cached) Len() int {
	return c.cache.Len()
}

// Purge drops all memoized pairs.
func (c *Cached) Purge() {
	c.cache.Purge()
}

func newPairKey(a, b string) pairKey {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if b < a {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}
