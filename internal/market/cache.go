package market

import (
	"sort"
	"sync"

	"github.com/rickgao/livepredict/internal/model"
)

// Cache maps match ids to their ledger markets. Entries are replaced as a whole.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string][]model.LedgerMarket
	gens     map[string]uint64 // only matches with a read in flight
	inflight map[string]int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries:  make(map[string][]model.LedgerMarket),
		gens:     make(map[string]uint64),
		inflight: make(map[string]int),
	}
}

// Get returns a copy of the cached markets of a match.
func (c *Cache) Get(matchID string) ([]model.LedgerMarket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	markets, ok := c.entries[matchID]
	if !ok {
		return nil, false
	}
	return copyMarkets(markets), true
}

// Put replaces the entry of a match.
func (c *Cache) Put(matchID string, markets []model.LedgerMarket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(matchID)
	c.entries[matchID] = copyMarkets(markets)
}

// putIfCurrent stores markets only if the entry was not invalidated since gen.
func (c *Cache) putIfCurrent(matchID string, gen uint64, markets []model.LedgerMarket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[matchID] != gen {
		return false
	}
	c.entries[matchID] = copyMarkets(markets)
	return true
}

// begin registers a read of matchID and returns its generation. Every begin must
// be paired with a call to end.
func (c *Cache) begin(matchID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.gens[matchID]
	c.gens[matchID] = gen
	c.inflight[matchID]++
	return gen
}

// end releases a read of matchID and forgets its generation once none are left.
func (c *Cache) end(matchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[matchID]--; c.inflight[matchID] <= 0 {
		delete(c.inflight, matchID)
		delete(c.gens, matchID)
	}
}

// dropLocked removes the entry of a match and makes reads in flight stale.
func (c *Cache) dropLocked(matchID string) {
	delete(c.entries, matchID)
	if c.inflight[matchID] > 0 {
		c.gens[matchID]++
	}
}

// Invalidate removes the entry of a match.
func (c *Cache) Invalidate(matchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(matchID)
}

// InvalidateMarket removes every entry holding the given market and returns the
// affected match ids.
func (c *Cache) InvalidateMarket(marketID int64) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matchIDs []string
	for matchID, markets := range c.entries {
		for _, m := range markets {
			if m.ID == marketID {
				matchIDs = append(matchIDs, matchID)
				break
			}
		}
	}
	for _, matchID := range matchIDs {
		c.dropLocked(matchID)
	}

	sort.Strings(matchIDs)
	return matchIDs
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for matchID := range c.inflight {
		c.gens[matchID]++
	}
	c.entries = make(map[string][]model.LedgerMarket)
}

// Len returns the number of cached matches.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func copyMarkets(in []model.LedgerMarket) []model.LedgerMarket {
	out := make([]model.LedgerMarket, len(in))
	for i, m := range in {
		m.Options = append([]model.MarketOption(nil), m.Options...)
		if m.WinningOption != nil {
			w := *m.WinningOption
			m.WinningOption = &w
		}
		out[i] = m
	}
	return out
}
