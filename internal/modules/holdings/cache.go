package holdings

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// viewCache holds built holdings views per portfolio. Every invalidation bumps a
// generation so a view built from reads that started before it is never stored.
type viewCache struct {
	mu    sync.Mutex
	cache *cache.Cache
	epoch uint64
	gens  map[int64]uint64
}

func newViewCache(ttl time.Duration) *viewCache {
	return &viewCache{
		cache: cache.New(ttl, 2*ttl),
		gens:  make(map[int64]uint64),
	}
}

func (c *viewCache) get(portfolioID int64) ([]HoldingView, bool) {
	cached, ok := c.cache.Get(cacheKey(portfolioID))
	if !ok {
		return nil, false
	}
	return cached.([]HoldingView), true
}

// generation must be taken before the reads that build the view
func (c *viewCache) generation(portfolioID int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch + c.gens[portfolioID]
}

// put stores views built at gen and reports whether they were kept
func (c *viewCache) put(portfolioID int64, gen uint64, views []HoldingView) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch+c.gens[portfolioID] != gen {
		return false
	}
	c.cache.SetDefault(cacheKey(portfolioID), views)
	return true
}

func (c *viewCache) invalidate(portfolioID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[portfolioID]++
	c.cache.Delete(cacheKey(portfolioID))
}

// invalidateAll drops every portfolio, used when shared instrument labels change
func (c *viewCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.cache.Flush()
}

func cacheKey(portfolioID int64) string {
	return "holdings:" + strconv.FormatInt(portfolioID, 10)
}
