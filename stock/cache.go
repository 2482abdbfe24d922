package stock

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultCacheTTL is how long fetched stock data is reused.
const DefaultCacheTTL = 15 * time.Minute

// dataCache holds StockData keyed by "symbol_period". Every entry has
// cost 1, so maxEntries bounds the entry count.
type dataCache struct {
	cache *ristretto.Cache[string, StockData]
	ttl   time.Duration
}

func newDataCache(maxEntries int64, ttl time.Duration) (*dataCache, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, StockData]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &dataCache{cache: c, ttl: ttl}, nil
}

func cacheKey(symbol, period string) string { return symbol + "_" + period }

func (c *dataCache) get(key string) (StockData, bool) {
	return c.cache.Get(key)
}

// set stores data and waits for the write buffer so the next get sees it.
func (c *dataCache) set(key string, data StockData) {
	c.cache.SetWithTTL(key, data, 1, c.ttl)
	c.cache.Wait()
}

func (c *dataCache) close() { c.cache.Close() }
