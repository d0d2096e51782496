package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/mcp/protocol"
	"github.com/periop-risk-mcp-server/internal/mcp/tools"
)

// toolError is the JSON body of a failed tool call.
type toolError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewMCPToolHandler bridges SDK tool calls to a tool in the registry.
// Tool failures are reported in-band as an error result so the model can
// read them; only a result that cannot be encoded fails the call itself.
// A positive timeout bounds each call.
func NewMCPToolHandler(toolRegistry *tools.ToolRegistry, toolName string, timeout time.Duration, logger *logrus.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger.WithField("tool", toolName).Debug("Handling MCP tool call")

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		args := json.RawMessage(`{}`)
		if req != nil && req.Params != nil && len(req.Params.Arguments) > 0 {
			args = req.Params.Arguments
		}

		response := toolRegistry.ExecuteTool(ctx, &protocol.JSONRPC2Request{
			JSONRPC: "2.0",
			Method:  toolName,
			Params:  args,
		})

		if response.Error != nil {
			body, err := json.Marshal(toolError{
				Code:    response.Error.Code,
				Message: response.Error.Message,
				Data:    response.Error.Data,
			})
			if err != nil {
				body = []byte(response.Error.Message)
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
				IsError: true,
			}, nil
		}

		body, err := json.Marshal(response.Result)
		if err != nil {
			return nil, fmt.Errorf("encoding %s result: %w", toolName, err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		}, nil
	}
}

// registerMCPTools registers every tool in the registry with the SDK server.
func registerMCPTools(mcpServer *mcp.Server, toolRegistry *tools.ToolRegistry, timeout time.Duration, logger *logrus.Logger) int {
	logger.Info("Registering tools with MCP SDK...")

	toolsInfo := toolRegistry.GetRegisteredToolsInfo()
	for _, toolInfo := range toolsInfo {
		toolDef := &mcp.Tool{
			Name:        toolInfo.Name,
			Description: toolInfo.Description,
			InputSchema: toolInfo.InputSchema,
		}
		mcpServer.AddTool(toolDef, NewMCPToolHandler(toolRegistry, toolInfo.Name, timeout, logger))
		logger.WithField("tool_name", toolInfo.Name).Debug("Registered MCP tool")
	}

	logger.WithField("tool_count", len(toolsInfo)).Info("Successfully registered all tools")
	return len(toolsInfo)
}

// newTransport returns the SDK transport for the configured type. Only
// stdio is supported; anything else falls back to it with a warning.
func newTransport(transportType string, logger *logrus.Logger) mcp.Transport {
	switch transportType {
	case "", "stdio":
	default:
		logger.WithField("transport_type", transportType).Warn("Unsupported transport, using stdio")
	}
	return &mcp.StdioTransport{}
}
