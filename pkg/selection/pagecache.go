package selection

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedPage is one cached page of a filtered user listing
type CachedPage struct {
	IDs   []int64
	Total int
}

// PageCache memoizes paginated listing results keyed by (filters, page).
// Invalidate bumps a generation counter instead of walking entries, so
// any mutation-triggered refresh cheaply abandons the whole cache; stale
// generations age out of the LRU on their own.
type PageCache struct {
	cache      *lru.Cache[string, CachedPage]
	generation atomic.Uint64
}

// NewPageCache creates a PageCache holding up to size pages
func NewPageCache(size int) (*PageCache, error) {
	cache, err := lru.New[string, CachedPage](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create page cache: %w", err)
	}
	return &PageCache{cache: cache}, nil
}

func (p *PageCache) key(filterKey string, page int) string {
	return fmt.Sprintf("%d|%s|%d", p.generation.Load(), filterKey, page)
}

// Get returns the cached page for the filter key and page number
func (p *PageCache) Get(filterKey string, page int) (CachedPage, bool) {
	return p.cache.Get(p.key(filterKey, page))
}

// Put stores one page
func (p *PageCache) Put(filterKey string, page int, cached CachedPage) {
	p.cache.Add(p.key(filterKey, page), cached)
}

// Invalidate abandons every cached page
func (p *PageCache) Invalidate() {
	p.generation.Add(1)
}
