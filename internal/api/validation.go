package api

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/periop-risk-mcp-server/internal/domain"
)

var registerOnce sync.Once

// registerValidators installs the custom binding tags on gin's validator
// and reports JSON field names in validation errors.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("calctype", validateCalculationType)
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "uri", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})
	})
}

// validateCalculationType accepts any well-formed catalog key. Whether
// the calculator exists is decided by the catalog.
func validateCalculationType(fl validator.FieldLevel) bool {
	return domain.CalculationType(fl.Field().String()).IsValid()
}

type calculatorURI struct {
	Type string `uri:"type" binding:"required,calctype"`
}

type calculationURI struct {
	ID string `uri:"id" binding:"required"`
}

type patientURI struct {
	PatientID string `uri:"patientId" binding:"required"`
}

type trendURI struct {
	PatientID string `uri:"patientId" binding:"required"`
	Parameter string `uri:"parameter" binding:"required"`
}

type eventURI struct {
	EventID string `uri:"eventId" binding:"required"`
}

type evaluateRequest struct {
	Inputs map[string]domain.Value `json:"inputs"`
}

type classifyRequest struct {
	Percentage *float64 `json:"percentage"`
}

type computeTrendRequest struct {
	Samples []domain.ParameterDataPoint `json:"samples"`
}

type trendWindow struct {
	From string `form:"from" binding:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To   string `form:"to" binding:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type saveCalculationRequest struct {
	CalculationType string                  `json:"calculation_type" binding:"required,calctype"`
	Inputs          map[string]domain.Value `json:"inputs"`
	Notes           string                  `json:"notes" binding:"max=4000"`
	RelatedEventID  *string                 `json:"related_event_id" binding:"omitempty,min=1"`
	CalculationDate string                  `json:"calculation_date" binding:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type listCalculationsQuery struct {
	CalculationType string `form:"calculation_type" binding:"omitempty,calctype"`
	RelatedEventID  string `form:"related_event_id"`
	Limit           int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset          int    `form:"offset" binding:"omitempty,min=0"`
}

type updateNotesRequest struct {
	Notes *string `json:"notes" binding:"required,max=4000"`
}
