// Package trends derives descriptive statistics and a trend direction from
// time-stamped clinical measurements.
package trends

import (
	"fmt"
	"math"
	"sort"

	"github.com/periop-risk-mcp-server/internal/domain"
)

// StableBand is the half-width, in percent, of the change treated as
// stable.
const StableBand = 5.0

// ComputeTrend summarizes samples in the order given; the first and last
// elements are the chronological endpoints. An empty series yields a nil
// summary and no error. A single sample yields domain.ErrInsufficientData.
func ComputeTrend(samples []domain.ParameterDataPoint) (*domain.StatisticalSummary, error) {
	switch len(samples) {
	case 0:
		return nil, nil
	case 1:
		return nil, fmt.Errorf("trend needs at least two samples, got 1: %w", domain.ErrInsufficientData)
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}

	first, last := samples[0], samples[len(samples)-1]
	pc, trend := PercentChange(first.Value, last.Value)

	return &domain.StatisticalSummary{
		Count:             len(values),
		Min:               minOf(values),
		Max:               maxOf(values),
		Mean:              Mean(values),
		Median:            Median(values),
		StandardDeviation: StandardDeviation(values),
		PercentChange:     pc,
		Trend:             trend,
		First:             first,
		Last:              last,
	}, nil
}

// PercentChange returns the change from first to last in percent of first
// and its direction. A zero first value reports 0 and TrendUnknown.
func PercentChange(first, last float64) (float64, domain.TrendDirection) {
	if first == 0 {
		return 0, domain.TrendUnknown
	}
	pc := (last - first) / first * 100
	return pc, Classify(pc)
}

// Classify maps a percent change to a direction.
func Classify(pc float64) domain.TrendDirection {
	switch {
	case math.IsNaN(pc):
		return domain.TrendUnknown
	case math.Abs(pc) < StableBand:
		return domain.TrendStable
	case pc > 0:
		return domain.TrendIncreasing
	default:
		return domain.TrendDecreasing
	}
}

// Mean returns the arithmetic mean of values, or 0 for none.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median returns the middle of the sorted values, averaging the two middle
// values for an even count. values is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// StandardDeviation returns the population standard deviation.
func StandardDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	sq := 0.0
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
