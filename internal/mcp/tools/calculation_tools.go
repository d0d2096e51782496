package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/mcp/protocol"
	"github.com/periop-risk-mcp-server/internal/service"
)

// =============================================================================
// Save Calculation Tool
// =============================================================================

// SaveCalculationTool implements the save_calculation MCP tool
type SaveCalculationTool struct {
	logger *logrus.Logger
	risk   *service.RiskService
}

// SaveCalculationParams defines parameters for the save_calculation tool
type SaveCalculationParams struct {
	PatientID       string                  `json:"patient_id"`
	CalculationType string                  `json:"calculation_type"`
	Inputs          map[string]domain.Value `json:"inputs"`
	Notes           string                  `json:"notes,omitempty"`
	RelatedEventID  *string                 `json:"related_event_id,omitempty"`
	CalculationDate string                  `json:"calculation_date,omitempty"`
}

// SaveCalculationResult defines the result of save_calculation
type SaveCalculationResult struct {
	Success     bool                      `json:"success"`
	Message     string                    `json:"message"`
	Calculation *domain.StoredCalculation `json:"calculation"`
}

// NewSaveCalculationTool creates a new save_calculation tool
func NewSaveCalculationTool(logger *logrus.Logger, risk *service.RiskService) *SaveCalculationTool {
	return &SaveCalculationTool{logger: logger, risk: risk}
}

// GetToolInfo returns the tool information for save_calculation
func (t *SaveCalculationTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        "save_calculation",
		Description: "Evaluate a calculator for a patient and store the inputs with a snapshot of the result. Nothing is stored when the inputs are invalid.",
		InputSchema: objectSchema(map[string]interface{}{
			"patient_id":       stringProp("Patient identifier"),
			"calculation_type": stringProp("Calculator identifier"),
			"inputs":           inputsProp(),
			"notes":            stringProp("Free-text notes (optional)"),
			"related_event_id": stringProp("Clinical event the calculation belongs to (optional)"),
			"calculation_date": dateTimeProp("When the calculation applies (optional, defaults to now)"),
		}, "patient_id", "calculation_type", "inputs"),
	}
}

// ValidateParams validates the input parameters
func (t *SaveCalculationTool) ValidateParams(params interface{}) error {
	var p SaveCalculationParams
	if err := ParseParams(params, &p); err != nil {
		return err
	}
	_, err := p.toService()
	return err
}

func (p SaveCalculationParams) toService() (service.SaveCalculationParams, error) {
	out := service.SaveCalculationParams{
		PatientID:       p.PatientID,
		CalculationType: domain.CalculationType(p.CalculationType),
		Inputs:          p.Inputs,
		Notes:           p.Notes,
		RelatedEventID:  p.RelatedEventID,
	}
	if strings.TrimSpace(p.PatientID) == "" {
		return out, fmt.Errorf("patient_id is required")
	}
	if err := validateCalculationType(p.CalculationType); err != nil {
		return out, err
	}
	if p.CalculationDate != "" {
		d, err := time.Parse(time.RFC3339, p.CalculationDate)
		if err != nil {
			return out, fmt.Errorf("calculation_date must be an RFC 3339 timestamp: %w", err)
		}
		out.CalculationDate = d.UTC()
	}
	return out, nil
}

// HandleTool handles the save_calculation tool request
func (t *SaveCalculationTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	var params SaveCalculationParams
	if err := ParseParams(req.Params, &params); err != nil {
		return invalidParamsError("Invalid parameters", err.Error())
	}
	svcParams, err := params.toService()
	if err != nil {
		return invalidParamsError(err.Error())
	}

	calc, err := t.risk.SaveCalculation(ctx, svcParams)
	if err != nil {
		return errorResponse(err)
	}
	return success(SaveCalculationResult{
		Success:     true,
		Message:     fmt.Sprintf("Saved %s calculation %s (%.1f%%, %s)", calc.CalculatorName, calc.ID, calc.ResultPercentage, calc.RiskBand),
		Calculation: calc,
	})
}

// =============================================================================
// List Calculations Tool
// =============================================================================

// ListCalculationsTool implements the list_calculations MCP tool
type ListCalculationsTool struct {
	logger *logrus.Logger
	risk   *service.RiskService
}

// ListCalculationsParams defines parameters for the list_calculations tool
type ListCalculationsParams struct {
	PatientID       string `json:"patient_id,omitempty"`
	CalculationType string `json:"calculation_type,omitempty"`
	RelatedEventID  string `json:"related_event_id,omitempty"`
	Limit           int    `json:"limit,omitempty"`
	Offset          int    `json:"offset,omitempty"`
}

// NewListCalculationsTool creates a new list_calculations tool
func NewListCalculationsTool(logger *logrus.Logger, risk *service.RiskService) *ListCalculationsTool {
	return &ListCalculationsTool{logger: logger, risk: risk}
}

// GetToolInfo returns the tool information for list_calculations
func (t *ListCalculationsTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        "list_calculations",
		Description: "List stored calculations, newest first, optionally filtered by patient, calculator or clinical event.",
		InputSchema: objectSchema(map[string]interface{}{
			"patient_id":       stringProp("Patient identifier"),
			"calculation_type": stringProp("Calculator identifier"),
			"related_event_id": stringProp("Clinical event identifier"),
			"limit": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"maximum":     1000,
				"description": "Page size (default 100)",
			},
			"offset": map[string]interface{}{
				"type":    "integer",
				"minimum": 0,
			},
		}),
	}
}

// ValidateParams validates the input parameters
func (t *ListCalculationsTool) ValidateParams(params interface{}) error {
	_, err := parseListCalculations(params)
	return err
}

func parseListCalculations(params interface{}) (ListCalculationsParams, error) {
	var p ListCalculationsParams
	if err := ParseParams(params, &p); err != nil {
		return p, err
	}
	if p.Limit < 0 || p.Limit > 1000 {
		return p, fmt.Errorf("limit must be between 1 and 1000")
	}
	if p.Offset < 0 {
		return p, fmt.Errorf("offset must not be negative")
	}
	return p, nil
}

// HandleTool handles the list_calculations tool request
func (t *ListCalculationsTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	params, err := parseListCalculations(req.Params)
	if err != nil {
		return invalidParamsError("Invalid parameters", err.Error())
	}

	page, err := t.risk.ListCalculations(ctx, domain.CalculationFilter{
		PatientID:       params.PatientID,
		CalculationType: domain.CalculationType(params.CalculationType),
		RelatedEventID:  params.RelatedEventID,
		Limit:           params.Limit,
		Offset:          params.Offset,
	})
	if err != nil {
		return errorResponse(err)
	}
	return success(page)
}

// =============================================================================
// Get Calculation Tool
// =============================================================================

// GetCalculationTool implements the get_calculation MCP tool
type GetCalculationTool struct {
	logger *logrus.Logger
	risk   *service.RiskService
}

// CalculationIDParams names a stored calculation.
type CalculationIDParams struct {
	ID string `json:"id"`
}

func parseCalculationID(params interface{}) (string, error) {
	var p CalculationIDParams
	if err := ParseParams(params, &p); err != nil {
		return "", err
	}
	if strings.TrimSpace(p.ID) == "" {
		return "", fmt.Errorf("id is required")
	}
	return p.ID, nil
}

// NewGetCalculationTool creates a new get_calculation tool
func NewGetCalculationTool(logger *logrus.Logger, risk *service.RiskService) *GetCalculationTool {
	return &GetCalculationTool{logger: logger, risk: risk}
}

// GetToolInfo returns the tool information for get_calculation
func (t *GetCalculationTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        "get_calculation",
		Description: "Retrieve one stored calculation with its inputs, result snapshot and risk band.",
		InputSchema: objectSchema(map[string]interface{}{
			"id": stringProp("Calculation identifier"),
		}, "id"),
	}
}

// ValidateParams validates the input parameters
func (t *GetCalculationTool) ValidateParams(params interface{}) error {
	_, err := parseCalculationID(params)
	return err
}

// HandleTool handles the get_calculation tool request
func (t *GetCalculationTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	id, err := parseCalculationID(req.Params)
	if err != nil {
		return invalidParamsError("Invalid parameters", err.Error())
	}
	calc, err := t.risk.GetCalculation(ctx, id)
	if err != nil {
		return errorResponse(err)
	}
	return success(calc)
}

// =============================================================================
// Update Calculation Notes Tool
// =============================================================================

// UpdateCalculationNotesTool implements the update_calculation_notes MCP tool
type UpdateCalculationNotesTool struct {
	logger *logrus.Logger
	risk   *service.RiskService
}

// UpdateNotesParams defines parameters for the update_calculation_notes tool
type UpdateNotesParams struct {
	ID    string  `json:"id"`
	Notes *string `json:"notes"`
}

// NewUpdateCalculationNotesTool creates a new update_calculation_notes tool
func NewUpdateCalculationNotesTool(logger *logrus.Logger, risk *service.RiskService) *UpdateCalculationNotesTool {
	return &UpdateCalculationNotesTool{logger: logger, risk: risk}
}

// GetToolInfo returns the tool information for update_calculation_notes
func (t *UpdateCalculationNotesTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        "update_calculation_notes",
		Description: "Replace the notes of a stored calculation. Results and inputs are never changed.",
		InputSchema: objectSchema(map[string]interface{}{
			"id":    stringProp("Calculation identifier"),
			"notes": stringProp("New notes; an empty string clears them"),
		}, "id", "notes"),
	}
}

// ValidateParams validates the input parameters
func (t *UpdateCalculationNotesTool) ValidateParams(params interface{}) error {
	_, err := parseUpdateNotes(params)
	return err
}

func parseUpdateNotes(params interface{}) (UpdateNotesParams, error) {
	var p UpdateNotesParams
	if err := ParseParams(params, &p); err != nil {
		return p, err
	}
	if strings.TrimSpace(p.ID) == "" {
		return p, fmt.Errorf("id is required")
	}
	if p.Notes == nil {
		return p, fmt.Errorf("notes is required")
	}
	return p, nil
}

// HandleTool handles the update_calculation_notes tool request
func (t *UpdateCalculationNotesTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	params, err := parseUpdateNotes(req.Params)
	if err != nil {
		return invalidParamsError("Invalid parameters", err.Error())
	}

	calc, err := t.risk.UpdateNotes(ctx, params.ID, *params.Notes)
	if err != nil {
		return errorResponse(err)
	}
	return success(calc)
}

// =============================================================================
// Delete Calculation Tool
// =============================================================================

// DeleteCalculationTool implements the delete_calculation MCP tool
type DeleteCalculationTool struct {
	logger *logrus.Logger
	risk   *service.RiskService
}

// NewDeleteCalculationTool creates a new delete_calculation tool
func NewDeleteCalculationTool(logger *logrus.Logger, risk *service.RiskService) *DeleteCalculationTool {
	return &DeleteCalculationTool{logger: logger, risk: risk}
}

// GetToolInfo returns the tool information for delete_calculation
func (t *DeleteCalculationTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        "delete_calculation",
		Description: "Delete a stored calculation.",
		InputSchema: objectSchema(map[string]interface{}{
			"id": stringProp("Calculation identifier"),
		}, "id"),
	}
}

// ValidateParams validates the input parameters
func (t *DeleteCalculationTool) ValidateParams(params interface{}) error {
	_, err := parseCalculationID(params)
	return err
}

// HandleTool handles the delete_calculation tool request
func (t *DeleteCalculationTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	id, err := parseCalculationID(req.Params)
	if err != nil {
		return invalidParamsError("Invalid parameters", err.Error())
	}
	if err := t.risk.DeleteCalculation(ctx, id); err != nil {
		return errorResponse(err)
	}
	return success(map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Deleted calculation %s", id),
	})
}

// =============================================================================
// Clear Event Links Tool
// =============================================================================

// ClearEventLinksTool implements the clear_event_links MCP tool
type ClearEventLinksTool struct {
	logger *logrus.Logger
	risk   *service.RiskService
}

// ClearEventLinksParams defines parameters for the clear_event_links tool
type ClearEventLinksParams struct {
	EventID string `json:"event_id"`
}

// NewClearEventLinksTool creates a new clear_event_links tool
func NewClearEventLinksTool(logger *logrus.Logger, risk *service.RiskService) *ClearEventLinksTool {
	return &ClearEventLinksTool{logger: logger, risk: risk}
}

// GetToolInfo returns the tool information for clear_event_links
func (t *ClearEventLinksTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        "clear_event_links",
		Description: "Detach all stored calculations from a clinical event that was removed. The calculations are kept.",
		InputSchema: objectSchema(map[string]interface{}{
			"event_id": stringProp("Clinical event identifier"),
		}, "event_id"),
	}
}

// ValidateParams validates the input parameters
func (t *ClearEventLinksTool) ValidateParams(params interface{}) error {
	_, err := parseClearEventLinks(params)
	return err
}

func parseClearEventLinks(params interface{}) (ClearEventLinksParams, error) {
	var p ClearEventLinksParams
	if err := ParseParams(params, &p); err != nil {
		return p, err
	}
	if strings.TrimSpace(p.EventID) == "" {
		return p, fmt.Errorf("event_id is required")
	}
	return p, nil
}

// HandleTool handles the clear_event_links tool request
func (t *ClearEventLinksTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	params, err := parseClearEventLinks(req.Params)
	if err != nil {
		return invalidParamsError("Invalid parameters", err.Error())
	}

	n, err := t.risk.ClearEventLinks(ctx, params.EventID)
	if err != nil {
		return errorResponse(err)
	}
	return success(map[string]interface{}{
		"related_event_id": params.EventID,
		"unlinked":         n,
	})
}
