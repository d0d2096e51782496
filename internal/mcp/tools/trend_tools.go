package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/mcp/protocol"
	"github.com/periop-risk-mcp-server/internal/trends"
)

// ComputeTrendTool implements the compute_trend MCP tool
type ComputeTrendTool struct {
	logger *logrus.Logger
	trends *trends.Service
}

// ComputeTrendParams defines parameters for the compute_trend tool
type ComputeTrendParams struct {
	Samples []domain.ParameterDataPoint `json:"samples"`
}

// NewComputeTrendTool creates a new compute_trend tool
func NewComputeTrendTool(logger *logrus.Logger, trendSvc *trends.Service) *ComputeTrendTool {
	return &ComputeTrendTool{logger: logger, trends: trendSvc}
}

// GetToolInfo returns the tool information for compute_trend
func (t *ComputeTrendTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name: "compute_trend",
		Description: "Summarize a series of measurements given in chronological order: min, max, mean, median, " +
			"standard deviation, percent change and trend direction, plus monthly averages and abnormal counts. " +
			"Fewer than two samples yield a no-data or insufficient-data status.",
		InputSchema: objectSchema(map[string]interface{}{
			"samples": samplesProp(),
		}, "samples"),
	}
}

// ValidateParams validates the input parameters
func (t *ComputeTrendTool) ValidateParams(params interface{}) error {
	var p ComputeTrendParams
	return ParseParams(params, &p)
}

// HandleTool handles the compute_trend tool request
func (t *ComputeTrendTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	var params ComputeTrendParams
	if err := ParseParams(req.Params, &params); err != nil {
		return invalidParamsError("Invalid parameters", err.Error())
	}
	report, err := t.trends.Compute(params.Samples)
	if err != nil {
		return errorResponse(err)
	}
	return success(report)
}

// PatientTrendTool implements the patient_trend MCP tool
type PatientTrendTool struct {
	logger *logrus.Logger
	trends *trends.Service
}

// PatientTrendParams defines parameters for the patient_trend tool
type PatientTrendParams struct {
	PatientID     string `json:"patient_id"`
	ParameterName string `json:"parameter_name"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
}

// Query converts the parameters into a validated trend query.
func (p PatientTrendParams) Query() (domain.TrendQuery, error) {
	q := domain.TrendQuery{PatientID: p.PatientID, ParameterName: p.ParameterName}
	var err error
	if p.From != "" {
		if q.From, err = time.Parse(time.RFC3339, p.From); err != nil {
			return q, fmt.Errorf("from must be an RFC 3339 timestamp: %w", err)
		}
	}
	if p.To != "" {
		if q.To, err = time.Parse(time.RFC3339, p.To); err != nil {
			return q, fmt.Errorf("to must be an RFC 3339 timestamp: %w", err)
		}
	}
	return q, q.Validate()
}

// NewPatientTrendTool creates a new patient_trend tool
func NewPatientTrendTool(logger *logrus.Logger, trendSvc *trends.Service) *PatientTrendTool {
	return &PatientTrendTool{logger: logger, trends: trendSvc}
}

// GetToolInfo returns the tool information for patient_trend
func (t *PatientTrendTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        "patient_trend",
		Description: "Fetch a patient's measurements of one parameter from the record source and summarize their trend over an optional time window.",
		InputSchema: objectSchema(map[string]interface{}{
			"patient_id":     stringProp("Patient identifier"),
			"parameter_name": stringProp("Measured parameter, e.g. hemoglobin or creatinine"),
			"from":           dateTimeProp("Window start (inclusive)"),
			"to":             dateTimeProp("Window end (inclusive)"),
		}, "patient_id", "parameter_name"),
	}
}

// ValidateParams validates the input parameters
func (t *PatientTrendTool) ValidateParams(params interface{}) error {
	var p PatientTrendParams
	if err := ParseParams(params, &p); err != nil {
		return err
	}
	_, err := p.Query()
	return err
}

// HandleTool handles the patient_trend tool request
func (t *PatientTrendTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	var params PatientTrendParams
	if err := ParseParams(req.Params, &params); err != nil {
		return invalidParamsError("Invalid parameters", err.Error())
	}
	q, err := params.Query()
	if err != nil {
		return invalidParamsError(err.Error())
	}

	report, err := t.trends.Report(ctx, q)
	if err != nil {
		t.logger.WithError(err).WithFields(logrus.Fields{
			"patient_id": q.PatientID,
			"parameter":  q.ParameterName,
		}).Warn("Failed to build patient trend")
		return errorResponse(err)
	}
	return success(report)
}
