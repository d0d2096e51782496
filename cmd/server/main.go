package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/api"
	"github.com/periop-risk-mcp-server/internal/app"
	"github.com/periop-risk-mcp-server/internal/config"
)

var version = "dev"

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := app.NewLogger(cfg.Logging, false)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := app.Build(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize components")
	}
	defer components.Close()

	opts := []api.Option{
		api.WithMetrics(components.Metrics, components.Registry),
		api.WithRateLimit(cfg.RateLimit),
		api.WithVersion(version),
	}
	for name, check := range components.HealthChecks {
		opts = append(opts, api.WithHealthCheck(name, check))
	}

	server := api.NewServer(cfg.Server, components.Risk, components.Trends, logger, opts...)

	logger.WithFields(logrus.Fields{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"version": version,
	}).Info("Starting perioperative risk server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}
