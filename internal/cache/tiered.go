package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/trends"
)

// TieredCache checks the memory tier first and falls back to a shared
// tier. Shared-tier hits are copied into memory. Shared-tier failures are
// logged and treated as misses so a cache outage never fails a report.
type TieredCache struct {
	memory    *MemoryCache
	shared    trends.SummaryCache
	memoryTTL time.Duration
	logger    *logrus.Logger
}

// NewTieredCache creates a two-tier cache. shared may be nil, in which case
// only the memory tier is used.
func NewTieredCache(memory *MemoryCache, shared trends.SummaryCache, memoryTTL time.Duration, logger *logrus.Logger) *TieredCache {
	return &TieredCache{
		memory:    memory,
		shared:    shared,
		memoryTTL: memoryTTL,
		logger:    logger,
	}
}

// GetReport looks up key in memory, then in the shared tier.
func (t *TieredCache) GetReport(ctx context.Context, key string) (*domain.TrendReport, bool, error) {
	if report, ok, _ := t.memory.GetReport(ctx, key); ok {
		t.logger.WithFields(logrus.Fields{
			"cache_key":  key,
			"cache_tier": "memory",
		}).Debug("Cache hit in memory")
		return report, true, nil
	}
	if t.shared == nil {
		return nil, false, nil
	}

	report, ok, err := t.shared.GetReport(ctx, key)
	if err != nil {
		t.logger.WithError(err).WithField("cache_key", key).Warn("Shared cache lookup failed")
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}

	t.logger.WithFields(logrus.Fields{
		"cache_key":  key,
		"cache_tier": "shared",
	}).Debug("Cache hit in shared tier")
	_ = t.memory.SetReport(ctx, key, report, t.memoryTTL)
	return report, true, nil
}

// SetReport writes both tiers. The memory tier never keeps an entry
// longer than ttl.
func (t *TieredCache) SetReport(ctx context.Context, key string, report *domain.TrendReport, ttl time.Duration) error {
	memTTL := t.memoryTTL
	if ttl > 0 && (memTTL <= 0 || ttl < memTTL) {
		memTTL = ttl
	}
	_ = t.memory.SetReport(ctx, key, report, memTTL)

	if t.shared == nil {
		return nil
	}
	if err := t.shared.SetReport(ctx, key, report, ttl); err != nil {
		t.logger.WithError(err).WithField("cache_key", key).Warn("Shared cache write failed")
	}
	return nil
}

// Stats returns the memory tier counters.
func (t *TieredCache) Stats() Stats {
	return t.memory.Stats()
}
