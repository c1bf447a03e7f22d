package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

/*
Cached memoizes successful embeddings of another Provider.
*/
type Cached struct {
	inner Provider
	cache *lru.Cache[string, []float64]
}

/*
NewCached wraps inner with an LRU cache holding up to size entries.
*/
func NewCached(inner Provider, size int) (*Cached, error) {
	c, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: c}, nil
}

/*
Embed returns a cached copy when present, otherwise calls the wrapped provider.
*/
func (c *Cached) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := c.cache.Get(text); ok {
		return clone(v), nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, clone(v))
	return v, nil
}

/*
Len returns the number of cached entries.
*/
func (c *Cached) Len() int { return c.cache.Len() }

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
