// Package cache holds trend report caches: an in-process LRU tier and a
// two-tier wrapper that fronts a distributed cache with it.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/periop-risk-mcp-server/internal/domain"
)

// DefaultMaxItems bounds the memory cache when no size is configured.
const DefaultMaxItems = 1000

// DefaultTTL applies when SetReport is called with a zero TTL.
const DefaultTTL = 15 * time.Minute

type entry struct {
	report *domain.TrendReport
	expiry time.Time
}

func (e entry) isExpired(now time.Time) bool {
	return now.After(e.expiry)
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Evictions int64     `json:"evictions"`
	Items     int       `json:"items"`
	LastReset time.Time `json:"last_reset"`
}

// HitRatio returns hits over lookups, or 0 before the first lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// MemoryCache is a size-bounded LRU of trend reports with per-entry expiry.
type MemoryCache struct {
	lru        *lru.Cache[string, entry]
	defaultTTL time.Duration
	now        func() time.Time

	statsMu sync.Mutex
	stats   Stats
}

// NewMemoryCache creates a memory cache holding at most maxItems reports.
func NewMemoryCache(maxItems int, defaultTTL time.Duration) (*MemoryCache, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	c := &MemoryCache{
		defaultTTL: defaultTTL,
		now:        time.Now,
		stats:      Stats{LastReset: time.Now()},
	}
	l, err := lru.NewWithEvict[string, entry](maxItems, func(string, entry) {
		c.statsMu.Lock()
		c.stats.Evictions++
		c.statsMu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	c.lru = l
	return c, nil
}

// GetReport returns a cached report. Expired entries are removed and
// reported as a miss.
func (c *MemoryCache) GetReport(_ context.Context, key string) (*domain.TrendReport, bool, error) {
	e, ok := c.lru.Get(key)
	if ok && e.isExpired(c.now()) {
		c.lru.Remove(key)
		ok = false
	}

	c.statsMu.Lock()
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	c.statsMu.Unlock()

	if !ok {
		return nil, false, nil
	}
	return e.report, true, nil
}

// SetReport caches report under key for ttl, or the default TTL when ttl
// is zero.
func (c *MemoryCache) SetReport(_ context.Context, key string, report *domain.TrendReport, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.lru.Add(key, entry{report: report, expiry: c.now().Add(ttl)})
	return nil
}

// Invalidate removes key.
func (c *MemoryCache) Invalidate(key string) {
	c.lru.Remove(key)
}

// Purge empties the cache.
func (c *MemoryCache) Purge() {
	c.lru.Purge()
}

// Stats returns a snapshot of the counters.
func (c *MemoryCache) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	s := c.stats
	s.Items = c.lru.Len()
	return s
}
