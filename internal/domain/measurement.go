package domain

import (
	"fmt"
	"strings"
	"time"
)

// ReferenceRange is the clinically normal interval of a measured parameter.
// Either bound may be absent.
type ReferenceRange struct {
	Low  *float64 `json:"low,omitempty"`
	High *float64 `json:"high,omitempty"`
	Unit string   `json:"unit,omitempty"`
}

// Contains reports whether v lies within the range, bounds inclusive.
func (r ReferenceRange) Contains(v float64) bool {
	if r.Low != nil && v < *r.Low {
		return false
	}
	if r.High != nil && v > *r.High {
		return false
	}
	return true
}

// ParameterDataPoint is one time-stamped measurement. It is built fresh for
// every trends query and never persisted by the engine.
type ParameterDataPoint struct {
	MeasurementID  string          `json:"measurement_id,omitempty"`
	PatientID      string          `json:"patient_id,omitempty"`
	ParameterName  string          `json:"parameter_name,omitempty"`
	Date           time.Time       `json:"date"`
	Value          float64         `json:"value"`
	IsAbnormal     bool            `json:"is_abnormal"`
	ReferenceRange *ReferenceRange `json:"reference_range,omitempty"`
}

// TrendDirection classifies the net change of a series.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
	TrendUnknown    TrendDirection = "unknown"
)

// IsValid reports whether the direction is one of the defined values.
func (t TrendDirection) IsValid() bool {
	switch t {
	case TrendIncreasing, TrendDecreasing, TrendStable, TrendUnknown:
		return true
	default:
		return false
	}
}

func (t TrendDirection) String() string {
	return string(t)
}

// StatisticalSummary describes an ordered series of at least two samples.
type StatisticalSummary struct {
	Count             int                `json:"count"`
	Min               float64            `json:"min"`
	Max               float64            `json:"max"`
	Mean              float64            `json:"mean"`
	Median            float64            `json:"median"`
	StandardDeviation float64            `json:"standard_deviation"`
	PercentChange     float64            `json:"percent_change"`
	Trend             TrendDirection     `json:"trend"`
	First             ParameterDataPoint `json:"first"`
	Last              ParameterDataPoint `json:"last"`
}

// TrendQuery selects one patient's samples of one parameter within a
// window. Zero From or To leaves that side of the window open.
type TrendQuery struct {
	PatientID     string    `json:"patient_id"`
	ParameterName string    `json:"parameter_name"`
	From          time.Time `json:"from,omitempty"`
	To            time.Time `json:"to,omitempty"`
}

// Validate checks the query before it reaches a measurement source.
func (q TrendQuery) Validate() error {
	if strings.TrimSpace(q.PatientID) == "" {
		return NewValidationError("patient_id", "patient id is required", q.PatientID)
	}
	if strings.TrimSpace(q.ParameterName) == "" {
		return NewValidationError("parameter_name", "parameter name is required", q.ParameterName)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return NewValidationError("to", "window end precedes window start", q.To)
	}
	return nil
}

// CacheKey returns a stable key for caching the query's report.
func (q TrendQuery) CacheKey() string {
	return fmt.Sprintf("trend:%s:%s:%d:%d", q.PatientID, q.ParameterName, unixOrZero(q.From), unixOrZero(q.To))
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// MonthlyAverage is the mean of the samples falling in one calendar month.
type MonthlyAverage struct {
	Month   string  `json:"month"` // YYYY-MM
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// AbnormalCounts splits a series by its abnormal flag.
type AbnormalCounts struct {
	Abnormal int `json:"abnormal"`
	Normal   int `json:"normal"`
}

// TrendStatus tells apart the three outcomes of a trend computation.
type TrendStatus string

const (
	TrendStatusOK               TrendStatus = "ok"
	TrendStatusNoData           TrendStatus = "no-data"
	TrendStatusInsufficientData TrendStatus = "insufficient-data"
)

// TrendReport bundles a summary with its presentation projections.
type TrendReport struct {
	Query       TrendQuery           `json:"query"`
	Status      TrendStatus          `json:"status"`
	Summary     *StatisticalSummary  `json:"summary,omitempty"`
	Monthly     []MonthlyAverage     `json:"monthly"`
	Counts      AbnormalCounts       `json:"counts"`
	Samples     []ParameterDataPoint `json:"samples"`
	GeneratedAt time.Time            `json:"generated_at"`
}
