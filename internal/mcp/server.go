// Package mcp exposes the risk and trend services as MCP tools. Server is
// the full deployment backed by PostgreSQL; LiteServer needs nothing but a
// data directory.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/app"
	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/mcp/protocol"
	"github.com/periop-risk-mcp-server/internal/mcp/tools"
	"github.com/periop-risk-mcp-server/internal/service"
	"github.com/periop-risk-mcp-server/internal/trends"
)

// Server represents the full perioperative risk MCP server
type Server struct {
	config       domain.MCPConfig
	mcpServer    *mcp.Server
	toolRegistry *tools.ToolRegistry
	components   *app.Components
	logger       *logrus.Logger
}

// NewServer connects to the configured backends and creates the MCP
// server. Logs go to stderr since stdout carries the protocol.
func NewServer(ctx context.Context, configManager domain.ConfigManager) (*Server, error) {
	cfg := configManager.GetConfig()
	logger := app.NewLogger(cfg.Logging, true)

	components, err := app.Build(ctx, configManager, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	server, err := newServer(cfg.MCP, components.Risk, components.Trends, components.ExportDir(), logger)
	if err != nil {
		components.Close()
		return nil, err
	}
	server.components = components
	return server, nil
}

// newServer registers the tools backed by risk and trendSvc.
func newServer(cfg domain.MCPConfig, risk *service.RiskService, trendSvc *trends.Service, exportDir string, logger *logrus.Logger) (*Server, error) {
	router := protocol.NewMessageRouter(logger)
	toolRegistry := tools.NewToolRegistry(logger, router, risk, trendSvc, exportDir)
	if err := toolRegistry.RegisterAllTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := toolRegistry.ValidateAllTools(); err != nil {
		return nil, fmt.Errorf("tool validation failed: %w", err)
	}

	name := cfg.ServerName
	if name == "" {
		name = "periop-risk-mcp-server"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "v0.1.0"
	}
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	registerMCPTools(mcpServer, toolRegistry, cfg.RequestTimeout, logger)

	return &Server{
		config:       cfg,
		mcpServer:    mcpServer,
		toolRegistry: toolRegistry,
		logger:       logger,
	}, nil
}

// Start serves MCP over the configured transport until ctx is done or the
// client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"transport_type": s.config.TransportType,
		"tools":          len(s.toolRegistry.GetRegisteredToolsInfo()),
	}).Info("Starting perioperative risk MCP server...")

	if err := s.mcpServer.Run(ctx, newTransport(s.config.TransportType, s.logger)); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close releases the backends.
func (s *Server) Close() error {
	if s.components != nil {
		s.components.Close()
	}
	return nil
}

// Tools returns the registered tools.
func (s *Server) Tools() []protocol.ToolInfo {
	return s.toolRegistry.GetRegisteredToolsInfo()
}
