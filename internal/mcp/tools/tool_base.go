// Package tools implements the MCP tools of the risk engine. Each tool
// reports its schema, validates its parameters and answers with a JSON-RPC
// style response; the server package bridges them into the MCP SDK.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/mcp/protocol"
	"github.com/periop-risk-mcp-server/internal/service"
	"github.com/periop-risk-mcp-server/internal/trends"
	"github.com/periop-risk-mcp-server/pkg/external"
)

// ParseParams parses and validates generic parameters from interface{} to a target struct.
// Raw JSON is decoded as is; anything else goes through a marshal round trip.
//
// Usage:
//
//	var params MyParams
//	if err := ParseParams(req.Params, &params); err != nil {
//	    return invalidParamsError("Invalid parameters", err.Error())
//	}
func ParseParams(params interface{}, target interface{}) error {
	if params == nil {
		return fmt.Errorf("missing required parameters")
	}

	var paramsBytes []byte
	switch p := params.(type) {
	case json.RawMessage:
		paramsBytes = p
	case []byte:
		paramsBytes = p
	default:
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal parameters: %w", err)
		}
		paramsBytes = b
	}
	if len(paramsBytes) == 0 {
		return fmt.Errorf("missing required parameters")
	}

	if err := json.Unmarshal(paramsBytes, target); err != nil {
		return fmt.Errorf("failed to parse parameters: %w", err)
	}

	return nil
}

// Error response helpers to reduce boilerplate
func invalidParamsError(msg string, data ...string) *protocol.JSONRPC2Response {
	resp := &protocol.JSONRPC2Response{
		Error: &protocol.RPCError{
			Code:    protocol.InvalidParams,
			Message: msg,
		},
	}
	if len(data) > 0 && data[0] != "" {
		resp.Error.Data = data[0]
	}
	return resp
}

func internalError(msg string, data string) *protocol.JSONRPC2Response {
	return &protocol.JSONRPC2Response{
		Error: &protocol.RPCError{
			Code:    protocol.InternalError,
			Message: msg,
			Data:    data,
		},
	}
}

func success(result interface{}) *protocol.JSONRPC2Response {
	return &protocol.JSONRPC2Response{Result: result}
}

// errorResponse maps a service error onto a JSON-RPC error.
func errorResponse(err error) *protocol.JSONRPC2Response {
	var paramErrs domain.ParameterErrors
	switch {
	case errors.As(err, &paramErrs):
		return &protocol.JSONRPC2Response{
			Error: &protocol.RPCError{
				Code:    protocol.InvalidParams,
				Message: "Invalid calculator inputs",
				Data: map[string]interface{}{
					"parameters": paramErrs.Parameters(),
					"details":    paramErrs.Error(),
				},
			},
		}
	case errors.Is(err, domain.ErrValidation):
		return invalidParamsError(err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return &protocol.JSONRPC2Response{
			Error: &protocol.RPCError{
				Code:    protocol.MethodNotFound,
				Message: "Not found",
				Data:    err.Error(),
			},
		}
	case errors.Is(err, service.ErrNoStore), errors.Is(err, trends.ErrNoSource), errors.Is(err, external.ErrServiceUnavailable):
		return &protocol.JSONRPC2Response{
			Error: &protocol.RPCError{
				Code:    protocol.MCPUnavailable,
				Message: "Service unavailable",
				Data:    err.Error(),
			},
		}
	case errors.Is(err, domain.ErrCorruptPayload):
		return internalError("Corrupt parameter payload", err.Error())
	default:
		return internalError("Tool execution failed", err.Error())
	}
}

// objectSchema builds a JSON schema object with the given properties.
func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func dateTimeProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"format":      "date-time",
		"description": description,
	}
}

func samplesProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": "Measurements with date (RFC 3339), value and optional is_abnormal and reference_range",
		"items": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"date":        dateTimeProp("Measurement time"),
				"value":       map[string]interface{}{"type": "number"},
				"is_abnormal": map[string]interface{}{"type": "boolean"},
				"reference_range": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"low":  map[string]interface{}{"type": "number"},
						"high": map[string]interface{}{"type": "number"},
						"unit": map[string]interface{}{"type": "string"},
					},
				},
			},
			"required": []string{"date", "value"},
		},
	}
}

func inputsProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": "Calculator inputs keyed by parameter name. Booleans, numbers and choice strings as described by describe_calculator.",
		"additionalProperties": map[string]interface{}{
			"type": []string{"boolean", "number", "string"},
		},
	}
}
