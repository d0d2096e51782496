package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/mcp/protocol"
	"github.com/periop-risk-mcp-server/internal/service"
)

// =============================================================================
// List Calculators Tool
// =============================================================================

// ListCalculatorsTool implements the list_calculators MCP tool
type ListCalculatorsTool struct {
	logger *logrus.Logger
	risk   *service.RiskService
}

// CalculatorSummary is one catalog entry without its parameter schema.
type CalculatorSummary struct {
	CalculationType  domain.CalculationType `json:"calculation_type"`
	Name             string                 `json:"name"`
	ShortDescription string                 `json:"short_description,omitempty"`
	ParameterCount   int                    `json:"parameter_count"`
}

// ListCalculatorsResult defines the result of list_calculators
type ListCalculatorsResult struct {
	Calculators []CalculatorSummary `json:"calculators"`
	Count       int                 `json:"count"`
}

// NewListCalculatorsTool creates a new list_calculators tool
func NewListCalculatorsTool(logger *logrus.Logger, risk *service.RiskService) *ListCalculatorsTool {
	return &ListCalculatorsTool{logger: logger, risk: risk}
}

// GetToolInfo returns the tool information for list_calculators
func (t *ListCalculatorsTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        "list_calculators",
		Description: "List the available perioperative risk calculators.",
		InputSchema: objectSchema(map[string]interface{}{}),
	}
}

// ValidateParams validates the input parameters
func (t *ListCalculatorsTool) ValidateParams(params interface{}) error {
	return nil
}

// HandleTool handles the list_calculators tool request
func (t *ListCalculatorsTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	defs := t.risk.ListCalculators()
	result := ListCalculatorsResult{
		Calculators: make([]CalculatorSummary, 0, len(defs)),
		Count:       len(defs),
	}
	for _, d := range defs {
		result.Calculators = append(result.Calculators, CalculatorSummary{
			CalculationType:  d.Type,
			Name:             d.Name,
			ShortDescription: d.ShortDescription,
			ParameterCount:   len(d.Parameters),
		})
	}
	return success(result)
}

// =============================================================================
// Describe Calculator Tool
// =============================================================================

// DescribeCalculatorTool implements the describe_calculator MCP tool
type DescribeCalculatorTool struct {
	logger *logrus.Logger
	risk   *service.RiskService
}

// CalculatorParams names a calculator.
type CalculatorParams struct {
	CalculationType string `json:"calculation_type"`
}

// NewDescribeCalculatorTool creates a new describe_calculator tool
func NewDescribeCalculatorTool(logger *logrus.Logger, risk *service.RiskService) *DescribeCalculatorTool {
	return &DescribeCalculatorTool{logger: logger, risk: risk}
}

// GetToolInfo returns the tool information for describe_calculator
func (t *DescribeCalculatorTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        "describe_calculator",
		Description: "Describe one calculator: its purpose and the name, kind, choices, unit and bounds of every input parameter.",
		InputSchema: objectSchema(map[string]interface{}{
			"calculation_type": stringProp("Calculator identifier, e.g. rcri or ariscat"),
		}, "calculation_type"),
	}
}

// ValidateParams validates the input parameters
func (t *DescribeCalculatorTool) ValidateParams(params interface{}) error {
	_, err := parseCalculatorParams(params)
	return err
}

func parseCalculatorParams(params interface{}) (CalculatorParams, error) {
	var p CalculatorParams
	if err := ParseParams(params, &p); err != nil {
		return p, err
	}
	return p, validateCalculationType(p.CalculationType)
}

// HandleTool handles the describe_calculator tool request
func (t *DescribeCalculatorTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	params, err := parseCalculatorParams(req.Params)
	if err != nil {
		return invalidParamsError("Invalid parameters", err.Error())
	}

	def, err := t.risk.DescribeCalculator(domain.CalculationType(params.CalculationType))
	if err != nil {
		return errorResponse(err)
	}
	return success(def)
}

// =============================================================================
// Evaluate Risk Tool
// =============================================================================

// EvaluateRiskTool implements the evaluate_risk MCP tool
type EvaluateRiskTool struct {
	logger *logrus.Logger
	risk   *service.RiskService
}

// EvaluateRiskParams defines parameters for the evaluate_risk tool
type EvaluateRiskParams struct {
	CalculationType string                  `json:"calculation_type"`
	Inputs          map[string]domain.Value `json:"inputs"`
}

// NewEvaluateRiskTool creates a new evaluate_risk tool
func NewEvaluateRiskTool(logger *logrus.Logger, risk *service.RiskService) *EvaluateRiskTool {
	return &EvaluateRiskTool{logger: logger, risk: risk}
}

// GetToolInfo returns the tool information for evaluate_risk
func (t *EvaluateRiskTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        "evaluate_risk",
		Description: "Run a risk calculator on a set of inputs and classify the resulting percentage. All invalid inputs are reported at once.",
		InputSchema: objectSchema(map[string]interface{}{
			"calculation_type": stringProp("Calculator identifier"),
			"inputs":           inputsProp(),
		}, "calculation_type", "inputs"),
	}
}

// ValidateParams validates the input parameters
func (t *EvaluateRiskTool) ValidateParams(params interface{}) error {
	var p EvaluateRiskParams
	if err := ParseParams(params, &p); err != nil {
		return err
	}
	return validateCalculationType(p.CalculationType)
}

// HandleTool handles the evaluate_risk tool request
func (t *EvaluateRiskTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	var params EvaluateRiskParams
	if err := ParseParams(req.Params, &params); err != nil {
		return invalidParamsError("Invalid parameters", err.Error())
	}
	if err := validateCalculationType(params.CalculationType); err != nil {
		return invalidParamsError(err.Error())
	}

	eval, err := t.risk.Evaluate(ctx, domain.CalculationType(params.CalculationType), params.Inputs)
	if err != nil {
		return errorResponse(err)
	}
	return success(eval)
}

// =============================================================================
// Classify Risk Tool
// =============================================================================

// ClassifyRiskTool implements the classify_risk MCP tool
type ClassifyRiskTool struct {
	logger *logrus.Logger
	risk   *service.RiskService
}

// ClassifyRiskParams defines parameters for the classify_risk tool. A
// missing or null percentage classifies as unknown.
type ClassifyRiskParams struct {
	Percentage *float64 `json:"percentage"`
}

// NewClassifyRiskTool creates a new classify_risk tool
func NewClassifyRiskTool(logger *logrus.Logger, risk *service.RiskService) *ClassifyRiskTool {
	return &ClassifyRiskTool{logger: logger, risk: risk}
}

// GetToolInfo returns the tool information for classify_risk
func (t *ClassifyRiskTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        "classify_risk",
		Description: "Map a risk percentage (0-100) to its band: very-low, low, moderate, high, very-high, or unknown when absent.",
		InputSchema: objectSchema(map[string]interface{}{
			"percentage": map[string]interface{}{
				"type":        []string{"number", "null"},
				"description": "Risk percentage on the 0-100 scale",
			},
		}),
	}
}

// ValidateParams validates the input parameters
func (t *ClassifyRiskTool) ValidateParams(params interface{}) error {
	var p ClassifyRiskParams
	return ParseParams(params, &p)
}

// HandleTool handles the classify_risk tool request
func (t *ClassifyRiskTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	var params ClassifyRiskParams
	if err := ParseParams(req.Params, &params); err != nil {
		return invalidParamsError("Invalid parameters", err.Error())
	}
	return success(t.risk.Classify(params.Percentage))
}

func validateCalculationType(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("calculation_type is required")
	}
	if !domain.CalculationType(s).IsValid() {
		return fmt.Errorf("calculation_type %q is not a valid identifier", s)
	}
	return nil
}
