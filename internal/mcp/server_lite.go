package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/app"
	"github.com/periop-risk-mcp-server/internal/cache"
	"github.com/periop-risk-mcp-server/internal/calculator"
	"github.com/periop-risk-mcp-server/internal/codec"
	litecfg "github.com/periop-risk-mcp-server/internal/config"
	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/service"
	"github.com/periop-risk-mcp-server/internal/store"
	"github.com/periop-risk-mcp-server/internal/trends"
	"github.com/periop-risk-mcp-server/pkg/external"
)

// LiteServer is a lightweight MCP server that requires no external databases.
// It uses in-memory caching and SQLite for persistence.
type LiteServer struct {
	*Server

	config *litecfg.LiteConfig
	store  store.Store
	source domain.MeasurementSource
	cache  *cache.MemoryCache
	logger *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithStore sets a custom calculation store.
func WithStore(s store.Store) LiteServerOption {
	return func(ls *LiteServer) error {
		ls.store = s
		return nil
	}
}

// WithMeasurementSource sets the source patient_trend reads from.
func WithMeasurementSource(source domain.MeasurementSource) LiteServerOption {
	return func(ls *LiteServer) error {
		ls.source = source
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(ls *LiteServer) error {
		ls.logger = logger
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config: cfg,
		logger: app.NewLogger(domain.LoggingConfig{Level: cfg.LogLevel, Format: cfg.LogFormat}, true),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	encoding, err := codec.ParseEncoding(cfg.ParameterEncoding)
	if err != nil {
		return nil, err
	}

	catalog, err := calculator.LoadCatalog(server.logger, cfg.CalculatorsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load calculators: %w", err)
	}

	if server.store == nil {
		s, err := store.NewSQLiteStore(cfg.CalculationsDBPath(), store.WithCodec(codec.New(encoding)))
		if err != nil {
			return nil, fmt.Errorf("failed to create calculation store: %w", err)
		}
		server.store = s
	}

	memCache, err := cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
	if err != nil {
		server.closeStore()
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	server.cache = memCache

	if server.source == nil && cfg.MeasurementsURL != "" {
		server.source = external.NewMeasurementClient(external.MeasurementClientConfig{
			BaseURL: cfg.MeasurementsURL,
			APIKey:  cfg.MeasurementsKey,
		}, server.logger)
	}

	risk := service.NewRiskService(calculator.NewEngine(catalog), server.logger, service.WithStore(server.store))
	trendSvc := trends.NewService(server.source, server.logger, trends.WithCache(memCache, cfg.CacheTTL))

	inner, err := newServer(domain.MCPConfig{
		ServerName:    "periop-risk-mcp-server-lite",
		ServerVersion: "v0.1.0",
		TransportType: cfg.Transport,
	}, risk, trendSvc, cfg.ExportDir(), server.logger)
	if err != nil {
		server.closeStore()
		return nil, err
	}
	server.Server = inner

	server.logger.WithField("data_dir", cfg.DataDir).Info("Lite server initialized successfully")
	return server, nil
}

// Start starts the lite MCP server.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.Info("Starting perioperative risk MCP server (lite)...")

	if err := s.mcpServer.Run(ctx, newTransport(s.config.Transport, s.logger)); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Connect serves a single session over t, for embedding the server in
// another process.
func (s *LiteServer) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	s.closeStore()
	return nil
}

func (s *LiteServer) closeStore() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close calculation store")
	}
}

// GetStore returns the calculation store for external access.
func (s *LiteServer) GetStore() store.Store {
	return s.store
}

// GetCache returns the memory cache for external access.
func (s *LiteServer) GetCache() *cache.MemoryCache {
	return s.cache
}
