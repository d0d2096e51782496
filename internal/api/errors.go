package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/middleware"
	"github.com/periop-risk-mcp-server/internal/service"
	"github.com/periop-risk-mcp-server/internal/trends"
	"github.com/periop-risk-mcp-server/pkg/external"
)

// statusFor maps an error onto its HTTP status and error code.
func statusFor(err error) (int, string) {
	var paramErrs domain.ParameterErrors
	switch {
	case errors.As(err, &paramErrs):
		return http.StatusUnprocessableEntity, domain.ErrCodeValidation
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.ErrCodeNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, domain.ErrCodeInvalidInput
	case errors.Is(err, domain.ErrCorruptPayload):
		return http.StatusInternalServerError, domain.ErrCodeCorruptPayload
	case errors.Is(err, service.ErrNoStore), errors.Is(err, trends.ErrNoSource):
		return http.StatusServiceUnavailable, domain.ErrCodeInternalServer
	case errors.Is(err, external.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, domain.ErrCodeExternalSource
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, domain.ErrCodeInternalServer
	default:
		return http.StatusInternalServerError, domain.ErrCodeInternalServer
	}
}

// respondError writes err as an MCPError body. Internal details are only
// logged.
func (s *Server) respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	body := domain.NewMCPError(code, err.Error(), "", c.GetString(middleware.CorrelationIDKey))

	var paramErrs domain.ParameterErrors
	if errors.As(err, &paramErrs) {
		body.Message = "invalid calculator inputs"
		body.Details = paramErrs.Error()
		body.Fields = paramErrs.Parameters()
	}
	var fieldErr *domain.ValidationError
	if errors.As(err, &fieldErr) {
		body.Fields = []string{fieldErr.Field}
	}

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(map[string]any{
			"correlation_id": body.RequestID,
			"path":           c.FullPath(),
		}).Error("Request failed")
		if code == domain.ErrCodeInternalServer {
			body.Message = http.StatusText(status)
		}
	}
	c.AbortWithStatusJSON(status, body)
}

// respondBindError reports a malformed request body or path.
func (s *Server) respondBindError(c *gin.Context, err error) {
	body := domain.NewMCPError(domain.ErrCodeInvalidInput, "invalid request", err.Error(), c.GetString(middleware.CorrelationIDKey))
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			body.Fields = append(body.Fields, fe.Field())
		}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
