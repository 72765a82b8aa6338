package embeddings

import (
	"fmt"

	"github.com/dgraph-io/ristretto"
)

const defaultCacheItems = 10_000

// cache wraps ristretto with float32-vector typing. Cost is one unit per
// entry; vectors are small and uniform so item count is the right budget.
type cache struct {
	r *ristretto.Cache
}

func newCache(maxItems int64) (*cache, error) {
	if maxItems <= 0 {
		maxItems = defaultCacheItems
	}
	r, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: creating cache: %w", err)
	}
	return &cache{r: r}, nil
}

func (c *cache) get(key string) ([]float32, bool) {
	v, ok := c.r.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (c *cache) set(key string, vec []float32) {
	c.r.Set(key, vec, 1)
}

// wait blocks until buffered writes are applied. Only tests need this.
func (c *cache) wait() {
	c.r.Wait()
}
