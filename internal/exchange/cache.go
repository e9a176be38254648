package exchange

import (
	"sync"
	"time"

	"github.com/rxtech-lab/argo-execution/internal/types"
)

// DefaultFiltersCacheTTL bounds how stale cached exchange info may get.
const DefaultFiltersCacheTTL = 5 * time.Minute

type filtersEntry struct {
	value  types.SymbolFilters
	expiry time.Time
}

// filtersCache caches per-symbol trading rules with an explicit expiry per
// entry. Exchange info is a single bulk endpoint, so a refresh replaces the
// whole table.
type filtersCache struct {
	mu      sync.Mutex
	entries map[string]filtersEntry
	ttl     time.Duration
	now     func() time.Time
}

func newFiltersCache(ttl time.Duration) *filtersCache {
	if ttl <= 0 {
		ttl = DefaultFiltersCacheTTL
	}

	return &filtersCache{
		mu:      sync.Mutex{},
		entries: make(map[string]filtersEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached filters for a symbol if present and not expired.
func (c *filtersCache) Get(symbol string) (types.SymbolFilters, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[symbol]
	if !ok || c.now().After(entry.expiry) {
		return types.SymbolFilters{}, false
	}

	return entry.value, true
}

// ReplaceAll swaps in a freshly fetched filter table.
func (c *filtersCache) ReplaceAll(filters map[string]types.SymbolFilters) {
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]filtersEntry, len(filters))
	for symbol, value := range filters {
		c.entries[symbol] = filtersEntry{value: value, expiry: expiry}
	}
}

// Invalidate drops all cached entries.
func (c *filtersCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]filtersEntry)
}
