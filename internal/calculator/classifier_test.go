package calculator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/periop-risk-mcp-server/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		percentage *float64
		expected   domain.RiskBand
	}{
		{"zero", domain.Float(0), domain.BandVeryLow},
		{"half percent", domain.Float(0.5), domain.BandVeryLow},
		{"exactly one", domain.Float(1.0), domain.BandLow},
		{"just below five", domain.Float(4.999), domain.BandLow},
		{"exactly five", domain.Float(5.0), domain.BandModerate},
		{"just below ten", domain.Float(9.999), domain.BandModerate},
		{"exactly ten", domain.Float(10.0), domain.BandHigh},
		{"just below twenty", domain.Float(19.999), domain.BandHigh},
		{"exactly twenty", domain.Float(20.0), domain.BandVeryHigh},
		{"above hundred", domain.Float(140), domain.BandVeryHigh},
		{"negative", domain.Float(-3), domain.BandVeryLow},
		{"positive infinity", domain.Float(math.Inf(1)), domain.BandVeryHigh},
		{"NaN", domain.Float(math.NaN()), domain.BandUnknown},
		{"null", nil, domain.BandUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.percentage))
		})
	}
}

func TestClassifyResult(t *testing.T) {
	assert.Equal(t, domain.BandModerate, ClassifyResult(domain.RiskResult{Percentage: 6}))
	assert.Equal(t, domain.BandVeryLow, ClassifyResult(domain.RiskResult{Score: domain.Float(3)}))
}
