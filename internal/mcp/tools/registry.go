package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/mcp/protocol"
	"github.com/periop-risk-mcp-server/internal/service"
	"github.com/periop-risk-mcp-server/internal/trends"
)

// ToolRegistry manages registration of all MCP tools
type ToolRegistry struct {
	logger    *logrus.Logger
	router    *protocol.MessageRouter
	risk      *service.RiskService
	trends    *trends.Service
	exportDir string
}

// NewToolRegistry creates a new tool registry
func NewToolRegistry(logger *logrus.Logger, router *protocol.MessageRouter, risk *service.RiskService, trendSvc *trends.Service, exportDir string) *ToolRegistry {
	return &ToolRegistry{
		logger:    logger,
		router:    router,
		risk:      risk,
		trends:    trendSvc,
		exportDir: exportDir,
	}
}

// RegisterAllTools registers the risk and trend tools with the router.
// Storage tools are only registered when the risk service has a store and
// patient_trend only when the trend service has a measurement source.
func (tr *ToolRegistry) RegisterAllTools() error {
	if tr.risk == nil {
		return fmt.Errorf("risk service is required")
	}
	tr.logger.Info("Registering perioperative risk tools")

	handlers := []protocol.ToolHandler{
		NewListCalculatorsTool(tr.logger, tr.risk),
		NewDescribeCalculatorTool(tr.logger, tr.risk),
		NewEvaluateRiskTool(tr.logger, tr.risk),
		NewClassifyRiskTool(tr.logger, tr.risk),
	}

	if tr.risk.HasStore() {
		handlers = append(handlers,
			NewSaveCalculationTool(tr.logger, tr.risk),
			NewListCalculationsTool(tr.logger, tr.risk),
			NewGetCalculationTool(tr.logger, tr.risk),
			NewUpdateCalculationNotesTool(tr.logger, tr.risk),
			NewDeleteCalculationTool(tr.logger, tr.risk),
			NewClearEventLinksTool(tr.logger, tr.risk),
			NewImportCalculationsTool(tr.logger, tr.risk),
		)
		if tr.exportDir != "" {
			handlers = append(handlers, NewExportCalculationsTool(tr.logger, tr.risk, tr.exportDir))
		}
	} else {
		tr.logger.Warn("No calculation store configured, storage tools disabled")
	}

	if tr.trends != nil {
		handlers = append(handlers, NewComputeTrendTool(tr.logger, tr.trends))
		if tr.trends.HasSource() {
			handlers = append(handlers, NewPatientTrendTool(tr.logger, tr.trends))
		} else {
			tr.logger.Warn("No measurement source configured, patient_trend disabled")
		}
	}

	for _, h := range handlers {
		name := h.GetToolInfo().Name
		tr.router.RegisterToolHandler(name, h)
		tr.logger.WithField("tool", name).Debug("Registered tool")
	}

	tr.logger.WithField("count", len(handlers)).Info("Successfully registered perioperative risk tools")
	return nil
}

// GetRegisteredToolsInfo returns information about all registered tools,
// sorted by name.
func (tr *ToolRegistry) GetRegisteredToolsInfo() []protocol.ToolInfo {
	toolHandlers := tr.router.GetToolHandlers()
	toolsInfo := make([]protocol.ToolInfo, 0, len(toolHandlers))

	for _, handler := range toolHandlers {
		toolsInfo = append(toolsInfo, handler.GetToolInfo())
	}
	sort.Slice(toolsInfo, func(i, j int) bool { return toolsInfo[i].Name < toolsInfo[j].Name })

	return toolsInfo
}

// ValidateAllTools checks that every registered tool describes itself
// completely.
func (tr *ToolRegistry) ValidateAllTools() error {
	tr.logger.Info("Validating all registered tools")

	for name, handler := range tr.router.GetToolHandlers() {
		info := handler.GetToolInfo()
		if info.Name != name {
			return fmt.Errorf("tool %q registered under name %q", info.Name, name)
		}
		if info.Description == "" {
			return fmt.Errorf("tool %q is missing a description", name)
		}
		if info.InputSchema == nil || info.InputSchema["type"] != "object" {
			return fmt.Errorf("tool %q input schema must be an object", name)
		}
	}

	tr.logger.Info("Tool validation completed")
	return nil
}

// ExecuteTool dispatches a tool call through the router.
func (tr *ToolRegistry) ExecuteTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	return tr.router.CallTool(ctx, req)
}
