package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/periop-risk-mcp-server/internal/domain"
)

// reportKeyPrefix namespaces trend report keys in a shared Redis.
const reportKeyPrefix = "periop:"

// RedisSummaryCache stores trend reports in Redis.
type RedisSummaryCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewRedisSummaryCache creates a new Redis-backed trend report cache.
func NewRedisSummaryCache(config domain.CacheConfig) (*RedisSummaryCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSummaryCache{
		redis:      client,
		defaultTTL: config.DefaultTTL,
	}, nil
}

// CachedTrendReport represents a cached trend report with metadata
type CachedTrendReport struct {
	Data      *domain.TrendReport `json:"data"`
	CachedAt  time.Time           `json:"cached_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// GetReport retrieves a cached trend report.
func (c *RedisSummaryCache) GetReport(ctx context.Context, key string) (*domain.TrendReport, bool, error) {
	redisKey := reportKeyPrefix + key

	val, err := c.redis.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get trend report cache: %w", err)
	}

	var cached CachedTrendReport
	if err := json.Unmarshal(val, &cached); err != nil || cached.Data == nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, redisKey)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, redisKey)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetReport caches a trend report. A zero ttl uses the configured default.
func (c *RedisSummaryCache) SetReport(ctx context.Context, key string, report *domain.TrendReport, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	cached := CachedTrendReport{
		Data:      report,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal trend report: %w", err)
	}

	return c.redis.Set(ctx, reportKeyPrefix+key, jsonData, ttl).Err()
}

// InvalidatePatient removes every cached report for a patient.
func (c *RedisSummaryCache) InvalidatePatient(ctx context.Context, patientID string) error {
	pattern := reportKeyPrefix + "trend:" + patientID + ":*"
	keys, err := c.redis.Keys(ctx, pattern).Result()
	if err != nil {
		return fmt.Errorf("failed to get keys for pattern %s: %w", pattern, err)
	}

	if len(keys) == 0 {
		return nil
	}

	return c.redis.Del(ctx, keys...).Err()
}

// Ping checks if Redis connection is alive
func (c *RedisSummaryCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisSummaryCache) Close() error {
	return c.redis.Close()
}
