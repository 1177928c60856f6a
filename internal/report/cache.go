package report

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ashita-ai/archdoc/internal/model"
)

// DefaultCacheSize is the number of rendered reports kept when no size is given.
const DefaultCacheSize = 256

// Cache memoizes Render for saved projects. Entries are keyed by project id
// and update time, so any change to a project misses the cache.
type Cache struct {
	reports *lru.Cache[string, Report]
}

// NewCache returns a cache holding up to size reports.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, Report](size)
	if err != nil {
		return nil, err
	}
	return &Cache{reports: c}, nil
}

// Render returns the cached report for p, rendering it on a miss.
func (c *Cache) Render(p model.Project) Report {
	key := cacheKey(p.ID, p.UpdatedAt)
	if r, ok := c.reports.Get(key); ok {
		return r
	}
	r := Render(p.SystemDesign)
	c.reports.Add(key, r)
	return r
}

// Len returns the number of cached reports.
func (c *Cache) Len() int { return c.reports.Len() }

func cacheKey(id string, updated time.Time) string {
	return id + "@" + updated.UTC().Format(time.RFC3339Nano)
}
