package protocol

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ToolHandler defines the interface for MCP tool handlers
type ToolHandler interface {
	HandleTool(ctx context.Context, req *JSONRPC2Request) *JSONRPC2Response
	GetToolInfo() ToolInfo
	ValidateParams(params interface{}) error
}

// ToolInfo contains metadata about a tool
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// MessageRouter routes tool calls to the registered handlers
type MessageRouter struct {
	logger       *logrus.Logger
	toolHandlers map[string]ToolHandler
	mu           sync.RWMutex
}

// NewMessageRouter creates a new message router
func NewMessageRouter(logger *logrus.Logger) *MessageRouter {
	return &MessageRouter{
		logger:       logger,
		toolHandlers: make(map[string]ToolHandler),
	}
}

// RegisterToolHandler registers a tool handler. A second registration
// under the same name replaces the first.
func (mr *MessageRouter) RegisterToolHandler(name string, handler ToolHandler) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	mr.toolHandlers[name] = handler
	mr.logger.WithField("tool", name).Debug("Registered tool handler")
}

// GetToolHandler returns a specific tool handler
func (mr *MessageRouter) GetToolHandler(name string) (ToolHandler, bool) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	handler, exists := mr.toolHandlers[name]
	return handler, exists
}

// GetToolHandlers returns a copy of all registered tool handlers
func (mr *MessageRouter) GetToolHandlers() map[string]ToolHandler {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	handlers := make(map[string]ToolHandler, len(mr.toolHandlers))
	for name, handler := range mr.toolHandlers {
		handlers[name] = handler
	}
	return handlers
}

// ToolNames returns the registered tool names in sorted order.
func (mr *MessageRouter) ToolNames() []string {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	names := make([]string, 0, len(mr.toolHandlers))
	for name := range mr.toolHandlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallTool dispatches req to the handler registered under req.Method.
func (mr *MessageRouter) CallTool(ctx context.Context, req *JSONRPC2Request) *JSONRPC2Response {
	handler, ok := mr.GetToolHandler(req.Method)
	if !ok {
		return NewErrorResponse(req.ID, MethodNotFound, "Tool not found", fmt.Sprintf("unknown tool %q", req.Method))
	}

	start := time.Now()
	resp := handler.HandleTool(ctx, req)
	if resp == nil {
		resp = NewErrorResponse(req.ID, InternalError, "Tool returned no response", nil)
	}
	resp.JSONRPC = "2.0"
	resp.ID = req.ID

	fields := logrus.Fields{
		"tool":     req.Method,
		"duration": time.Since(start),
	}
	if resp.Error != nil {
		fields["error_code"] = resp.Error.Code
		mr.logger.WithFields(fields).Warn("Tool call failed")
	} else {
		mr.logger.WithFields(fields).Debug("Tool call completed")
	}
	return resp
}
