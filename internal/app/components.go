package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/cache"
	"github.com/periop-risk-mcp-server/internal/calculator"
	"github.com/periop-risk-mcp-server/internal/codec"
	"github.com/periop-risk-mcp-server/internal/database"
	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/metrics"
	"github.com/periop-risk-mcp-server/internal/repository"
	"github.com/periop-risk-mcp-server/internal/service"
	"github.com/periop-risk-mcp-server/internal/store"
	"github.com/periop-risk-mcp-server/internal/trends"
	"github.com/periop-risk-mcp-server/pkg/external"
)

// Components is the wired full-mode object graph.
type Components struct {
	Config   *domain.Config
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Catalog  *calculator.Catalog
	Risk     *service.RiskService
	Trends   *trends.Service

	// HealthChecks maps a dependency name to its health check.
	HealthChecks map[string]func(ctx context.Context) error

	db      *database.DB
	store   store.Store
	redis   *external.RedisSummaryCache
	closers []func()
}

// Build connects to PostgreSQL, and Redis when configured, and wires the
// services. Partially built components are released on error.
func Build(ctx context.Context, cm domain.ConfigManager, logger *logrus.Logger) (*Components, error) {
	cfg := cm.GetConfig()
	c := &Components{
		Config:       cfg,
		Logger:       logger,
		Registry:     prometheus.NewRegistry(),
		HealthChecks: make(map[string]func(ctx context.Context) error),
	}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = metrics.New(c.Registry)

	if err := c.build(ctx, cm); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) build(ctx context.Context, cm domain.ConfigManager) error {
	cfg := c.Config

	encoding, err := codec.ParseEncoding(cfg.Storage.ParameterEncoding)
	if err != nil {
		return err
	}

	c.Catalog, err = calculator.LoadCatalog(c.Logger, cfg.Calculators.File)
	if err != nil {
		return fmt.Errorf("failed to load calculators: %w", err)
	}

	c.db, err = database.NewConnection(ctx, database.ConfigFromDomain(cfg.Database), c.Logger)
	if err != nil {
		return err
	}
	c.closers = append(c.closers, c.db.Close)
	c.HealthChecks["database"] = c.db.Health

	c.store, err = store.NewPostgresStoreFromURL(cm.GetDatabaseURL(), store.WithCodec(codec.New(encoding)))
	if err != nil {
		return fmt.Errorf("failed to create calculation store: %w", err)
	}
	c.closers = append(c.closers, func() { _ = c.store.Close() })

	source, err := c.measurementSource(cfg.Measurements)
	if err != nil {
		return err
	}

	reportCache, err := c.reportCache(cfg.Cache)
	if err != nil {
		return err
	}

	c.Risk = service.NewRiskService(
		calculator.NewEngine(c.Catalog),
		c.Logger,
		service.WithStore(c.store),
		service.WithMetrics(c.Metrics),
	)
	c.Trends = trends.NewService(
		source,
		c.Logger,
		trends.WithCache(reportCache, cfg.Cache.DefaultTTL),
		trends.WithMetrics(c.Metrics),
	)

	c.Logger.WithFields(logrus.Fields{
		"calculators":        c.Catalog.Len(),
		"parameter_encoding": encoding,
		"measurements":       cfg.Measurements.Source,
		"redis":              c.redis != nil,
	}).Info("Components initialized")
	return nil
}

func (c *Components) measurementSource(cfg domain.MeasurementsConfig) (domain.MeasurementSource, error) {
	switch cfg.Source {
	case "", "database":
		return repository.NewMeasurementRepository(c.db.Pool, c.Logger), nil
	case "http":
		client := external.NewMeasurementClientFromConfig(cfg, c.Logger)
		c.HealthChecks["measurements"] = func(context.Context) error {
			if h := client.HealthCheck(); !h.Healthy {
				return errors.New(h.Error)
			}
			return nil
		}
		return client, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown measurements source %q", cfg.Source)
	}
}

func (c *Components) reportCache(cfg domain.CacheConfig) (trends.SummaryCache, error) {
	memoryTTL := cfg.DefaultTTL
	if memoryTTL <= 0 {
		memoryTTL = 10 * time.Minute
	}
	memory, err := cache.NewMemoryCache(cfg.MaxItems, memoryTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	if cfg.RedisURL == "" {
		return memory, nil
	}

	c.redis, err = external.NewRedisSummaryCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	c.closers = append(c.closers, func() { _ = c.redis.Close() })
	c.HealthChecks["redis"] = c.redis.Ping
	return cache.NewTieredCache(memory, c.redis, memoryTTL, c.Logger), nil
}

// ExportDir returns the configured export directory.
func (c *Components) ExportDir() string {
	return c.Config.Storage.ExportDir
}

// Close releases connections in reverse order of acquisition.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
