package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/mcp/protocol"
	"github.com/periop-risk-mcp-server/internal/service"
)

// =============================================================================
// Export Calculations Tool
// =============================================================================

// ExportCalculationsTool implements the export_calculations MCP tool
type ExportCalculationsTool struct {
	logger    *logrus.Logger
	risk      *service.RiskService
	exportDir string
	now       func() time.Time
}

// ExportCalculationsResult defines the result of export_calculations
type ExportCalculationsResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FilePath string `json:"file_path"`
	Bytes    int    `json:"bytes"`
}

// NewExportCalculationsTool creates a new export_calculations tool
func NewExportCalculationsTool(logger *logrus.Logger, risk *service.RiskService, exportDir string) *ExportCalculationsTool {
	return &ExportCalculationsTool{
		logger:    logger,
		risk:      risk,
		exportDir: exportDir,
		now:       time.Now,
	}
}

// GetToolInfo returns the tool information for export_calculations
func (t *ExportCalculationsTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        "export_calculations",
		Description: "Export all stored calculations to a JSON file in the export directory for backup.",
		InputSchema: objectSchema(map[string]interface{}{}),
	}
}

// ValidateParams validates the input parameters
func (t *ExportCalculationsTool) ValidateParams(params interface{}) error {
	return nil
}

// HandleTool handles the export_calculations tool request
func (t *ExportCalculationsTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	if err := os.MkdirAll(t.exportDir, 0o755); err != nil {
		return internalError("Failed to create export directory", err.Error())
	}

	var buf bytes.Buffer
	if err := t.risk.ExportCalculations(ctx, &buf); err != nil {
		t.logger.WithError(err).Error("Failed to export calculations")
		return errorResponse(err)
	}

	filename := fmt.Sprintf("calculations_export_%s.json", t.now().Format("20060102_150405"))
	filePath := filepath.Join(t.exportDir, filename)
	if err := os.WriteFile(filePath, buf.Bytes(), 0o600); err != nil {
		return internalError("Failed to write export file", err.Error())
	}

	t.logger.WithField("file_path", filePath).Info("Calculations exported")
	return success(ExportCalculationsResult{
		Success:  true,
		Message:  fmt.Sprintf("Exported calculations to %s", filePath),
		FilePath: filePath,
		Bytes:    buf.Len(),
	})
}

// =============================================================================
// Import Calculations Tool
// =============================================================================

// ImportCalculationsTool implements the import_calculations MCP tool
type ImportCalculationsTool struct {
	logger *logrus.Logger
	risk   *service.RiskService
}

// ImportCalculationsParams defines parameters for the import_calculations
// tool. Exactly one of FilePath and Data is set.
type ImportCalculationsParams struct {
	FilePath string          `json:"file_path,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// ImportCalculationsResult defines the result of import_calculations
type ImportCalculationsResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
}

// NewImportCalculationsTool creates a new import_calculations tool
func NewImportCalculationsTool(logger *logrus.Logger, risk *service.RiskService) *ImportCalculationsTool {
	return &ImportCalculationsTool{logger: logger, risk: risk}
}

// GetToolInfo returns the tool information for import_calculations
func (t *ImportCalculationsTool) GetToolInfo() protocol.ToolInfo {
	return protocol.ToolInfo{
		Name:        "import_calculations",
		Description: "Import calculations from an export file or inline export document. Calculations whose id already exists are skipped.",
		InputSchema: objectSchema(map[string]interface{}{
			"file_path": stringProp("Path of a JSON export file"),
			"data": map[string]interface{}{
				"type":        "object",
				"description": "An export document as produced by export_calculations",
			},
		}),
	}
}

// ValidateParams validates the input parameters
func (t *ImportCalculationsTool) ValidateParams(params interface{}) error {
	_, err := parseImportCalculations(params)
	return err
}

func parseImportCalculations(params interface{}) (ImportCalculationsParams, error) {
	var p ImportCalculationsParams
	if err := ParseParams(params, &p); err != nil {
		return p, err
	}
	hasFile := p.FilePath != ""
	hasData := len(p.Data) > 0 && string(p.Data) != "null"
	if hasFile == hasData {
		return p, fmt.Errorf("exactly one of file_path and data is required")
	}
	return p, nil
}

// HandleTool handles the import_calculations tool request
func (t *ImportCalculationsTool) HandleTool(ctx context.Context, req *protocol.JSONRPC2Request) *protocol.JSONRPC2Response {
	params, err := parseImportCalculations(req.Params)
	if err != nil {
		return invalidParamsError("Invalid parameters", err.Error())
	}

	data := []byte(params.Data)
	if params.FilePath != "" {
		b, err := os.ReadFile(params.FilePath)
		if err != nil {
			return invalidParamsError("Failed to read import file", err.Error())
		}
		data = b
	}

	imported, skipped, err := t.risk.ImportCalculations(ctx, bytes.NewReader(data))
	if err != nil {
		t.logger.WithError(err).Error("Failed to import calculations")
		return invalidParamsError("Failed to import calculations", err.Error())
	}
	return success(ImportCalculationsResult{
		Success:  true,
		Message:  fmt.Sprintf("Imported %d calculations, skipped %d existing", imported, skipped),
		Imported: imported,
		Skipped:  skipped,
	})
}
