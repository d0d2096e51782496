package domain

import (
	"strings"
	"time"
)

// StoredCalculation is a persisted snapshot of one scoring invocation.
// Result fields are copied at computation time and never recomputed; only
// Notes may change after creation. RelatedEventID is a weak lookup to the
// originating clinical event: removing that event clears the link and
// leaves the calculation in place.
type StoredCalculation struct {
	ID                   string           `json:"id"`
	PatientID            string           `json:"patient_id"`
	CalculationType      CalculationType  `json:"calculation_type"`
	CalculatorName       string           `json:"calculator_name"`
	CalculationDate      time.Time        `json:"calculation_date"`
	ResultScore          *float64         `json:"result_score,omitempty"`
	ResultPercentage     float64          `json:"result_percentage"`
	ResultInterpretation string           `json:"result_interpretation,omitempty"`
	InputParameters      map[string]Value `json:"input_parameters"`
	Notes                string           `json:"notes,omitempty"`
	RelatedEventID       *string          `json:"related_event_id,omitempty"`
	RiskBand             RiskBand         `json:"risk_band,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// Validate ensures the record carries its identity and provenance.
func (c *StoredCalculation) Validate() error {
	if c.ID == "" {
		return NewValidationError("id", "id is required", c.ID)
	}
	if strings.TrimSpace(c.PatientID) == "" {
		return NewValidationError("patient_id", "patient id is required", c.PatientID)
	}
	if strings.TrimSpace(c.CalculatorName) == "" {
		return NewValidationError("calculator_name", "calculator name is required", c.CalculatorName)
	}
	if c.CalculationDate.IsZero() {
		return NewValidationError("calculation_date", "calculation date is required", nil)
	}
	if c.RelatedEventID != nil && strings.TrimSpace(*c.RelatedEventID) == "" {
		return NewValidationError("related_event_id", "related event id must not be blank", *c.RelatedEventID)
	}
	return nil
}

// Result returns the stored copy of the risk result.
func (c *StoredCalculation) Result() RiskResult {
	return RiskResult{
		Score:          c.ResultScore,
		Percentage:     c.ResultPercentage,
		Interpretation: c.ResultInterpretation,
	}
}

// LogFields returns structured logging fields for audit trails. Input
// values are left out.
func (c *StoredCalculation) LogFields() map[string]any {
	fields := map[string]any{
		"calculation_id":    c.ID,
		"patient_id":        c.PatientID,
		"calculation_type":  string(c.CalculationType),
		"result_percentage": c.ResultPercentage,
	}
	if c.RelatedEventID != nil {
		fields["related_event_id"] = *c.RelatedEventID
	}
	return fields
}

// CalculationFilter narrows a listing of stored calculations. Zero fields
// do not filter.
type CalculationFilter struct {
	PatientID       string          `json:"patient_id,omitempty"`
	CalculationType CalculationType `json:"calculation_type,omitempty"`
	RelatedEventID  string          `json:"related_event_id,omitempty"`
	Limit           int             `json:"limit,omitempty"`
	Offset          int             `json:"offset,omitempty"`
}

// DefaultListLimit caps listings when the caller gives no limit.
const DefaultListLimit = 100

// Normalize applies the default limit and clamps negative paging values.
func (f CalculationFilter) Normalize() CalculationFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
