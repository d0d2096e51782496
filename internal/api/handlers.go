package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/service"
	"github.com/periop-risk-mcp-server/internal/trends"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleListCalculators(c *gin.Context) {
	defs := s.risk.ListCalculators()
	c.JSON(http.StatusOK, gin.H{
		"calculators": defs,
		"count":       len(defs),
	})
}

func (s *Server) handleDescribeCalculator(c *gin.Context) {
	var uri calculatorURI
	if err := c.ShouldBindUri(&uri); err != nil {
		s.respondBindError(c, err)
		return
	}
	def, err := s.risk.DescribeCalculator(domain.CalculationType(uri.Type))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) handleEvaluate(c *gin.Context) {
	var uri calculatorURI
	if err := c.ShouldBindUri(&uri); err != nil {
		s.respondBindError(c, err)
		return
	}
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}

	eval, err := s.risk.Evaluate(c.Request.Context(), domain.CalculationType(uri.Type), req.Inputs)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (s *Server) handleClassify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.risk.Classify(req.Percentage))
}

func (s *Server) handleComputeTrend(c *gin.Context) {
	var req computeTrendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}
	report, err := s.trends.Compute(req.Samples)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// trendQuery reads the patient, parameter and optional RFC 3339 window.
func (s *Server) trendQuery(c *gin.Context) (domain.TrendQuery, bool) {
	var uri trendURI
	if err := c.ShouldBindUri(&uri); err != nil {
		s.respondBindError(c, err)
		return domain.TrendQuery{}, false
	}
	var window trendWindow
	if err := c.ShouldBindQuery(&window); err != nil {
		s.respondBindError(c, err)
		return domain.TrendQuery{}, false
	}

	q := domain.TrendQuery{PatientID: uri.PatientID, ParameterName: uri.Parameter}
	if window.From != "" {
		q.From, _ = time.Parse(time.RFC3339, window.From)
	}
	if window.To != "" {
		q.To, _ = time.Parse(time.RFC3339, window.To)
	}
	if err := q.Validate(); err != nil {
		s.respondError(c, err)
		return domain.TrendQuery{}, false
	}
	return q, true
}

func (s *Server) handlePatientTrend(c *gin.Context) {
	q, ok := s.trendQuery(c)
	if !ok {
		return
	}
	report, err := s.trends.Report(c.Request.Context(), q)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleExportTrend(c *gin.Context) {
	q, ok := s.trendQuery(c)
	if !ok {
		return
	}
	report, err := s.trends.Report(c.Request.Context(), q)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := trends.WriteXLSX(report, &buf); err != nil {
		s.respondError(c, err)
		return
	}
	filename := fmt.Sprintf("trend-%s-%s.xlsx", q.PatientID, q.ParameterName)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (s *Server) handleSaveCalculation(c *gin.Context) {
	var uri patientURI
	if err := c.ShouldBindUri(&uri); err != nil {
		s.respondBindError(c, err)
		return
	}
	var req saveCalculationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}

	params := service.SaveCalculationParams{
		PatientID:       uri.PatientID,
		CalculationType: domain.CalculationType(req.CalculationType),
		Inputs:          req.Inputs,
		Notes:           req.Notes,
		RelatedEventID:  req.RelatedEventID,
	}
	if req.CalculationDate != "" {
		params.CalculationDate, _ = time.Parse(time.RFC3339, req.CalculationDate)
	}

	calc, err := s.risk.SaveCalculation(c.Request.Context(), params)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, calc)
}

func (s *Server) handleListCalculations(c *gin.Context) {
	var uri patientURI
	if err := c.ShouldBindUri(&uri); err != nil {
		s.respondBindError(c, err)
		return
	}
	var query listCalculationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		s.respondBindError(c, err)
		return
	}

	page, err := s.risk.ListCalculations(c.Request.Context(), domain.CalculationFilter{
		PatientID:       uri.PatientID,
		CalculationType: domain.CalculationType(query.CalculationType),
		RelatedEventID:  query.RelatedEventID,
		Limit:           query.Limit,
		Offset:          query.Offset,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleGetCalculation(c *gin.Context) {
	var uri calculationURI
	if err := c.ShouldBindUri(&uri); err != nil {
		s.respondBindError(c, err)
		return
	}
	calc, err := s.risk.GetCalculation(c.Request.Context(), uri.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, calc)
}

func (s *Server) handleUpdateNotes(c *gin.Context) {
	var uri calculationURI
	if err := c.ShouldBindUri(&uri); err != nil {
		s.respondBindError(c, err)
		return
	}
	var req updateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBindError(c, err)
		return
	}
	calc, err := s.risk.UpdateNotes(c.Request.Context(), uri.ID, *req.Notes)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, calc)
}

func (s *Server) handleDeleteCalculation(c *gin.Context) {
	var uri calculationURI
	if err := c.ShouldBindUri(&uri); err != nil {
		s.respondBindError(c, err)
		return
	}
	if err := s.risk.DeleteCalculation(c.Request.Context(), uri.ID); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearEventLinks(c *gin.Context) {
	var uri eventURI
	if err := c.ShouldBindUri(&uri); err != nil {
		s.respondBindError(c, err)
		return
	}
	n, err := s.risk.ClearEventLinks(c.Request.Context(), uri.EventID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"related_event_id": uri.EventID,
		"unlinked":         n,
	})
}
