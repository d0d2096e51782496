package calculator

import (
	"math"

	"github.com/periop-risk-mcp-server/internal/domain"
)

// Band thresholds on the 0-100 risk scale. A percentage equal to a
// threshold belongs to the higher band.
const (
	veryLowBelow  = 1.0
	lowBelow      = 5.0
	moderateBelow = 10.0
	highBelow     = 20.0
)

// Classify maps a risk percentage to its band. It is total: nil and NaN
// classify as unknown.
func Classify(percentage *float64) domain.RiskBand {
	if percentage == nil || math.IsNaN(*percentage) {
		return domain.BandUnknown
	}
	p := *percentage
	switch {
	case p < veryLowBelow:
		return domain.BandVeryLow
	case p < lowBelow:
		return domain.BandLow
	case p < moderateBelow:
		return domain.BandModerate
	case p < highBelow:
		return domain.BandHigh
	default:
		return domain.BandVeryHigh
	}
}

// ClassifyResult classifies the percentage of a completed calculation.
func ClassifyResult(r domain.RiskResult) domain.RiskBand {
	p := r.Percentage
	return Classify(&p)
}
