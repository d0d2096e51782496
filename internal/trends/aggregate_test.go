package trends

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/periop-risk-mcp-server/internal/domain"
)

func point(date time.Time, value float64, abnormal bool) domain.ParameterDataPoint {
	return domain.ParameterDataPoint{Date: date, Value: value, IsAbnormal: abnormal}
}

func TestGroupByMonth(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	samples := []domain.ParameterDataPoint{
		point(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), 10, false),
		point(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), 4, false),
		point(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), 6, true),
		// 2024-02-29 21:00 EST is 2024-03-01 02:00 UTC.
		point(time.Date(2024, 2, 29, 21, 0, 0, 0, est), 20, false),
		point(time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC), 1, false),
	}

	months := GroupByMonth(samples)

	assert.Equal(t, []domain.MonthlyAverage{
		{Month: "2023-12", Average: 1, Count: 1},
		{Month: "2024-01", Average: 5, Count: 2},
		{Month: "2024-03", Average: 15, Count: 2},
	}, months)
}

func TestGroupByMonth_Empty(t *testing.T) {
	assert.Empty(t, GroupByMonth(nil))
}

func TestCountAbnormal(t *testing.T) {
	samples := []domain.ParameterDataPoint{
		point(baseDate, 1, true),
		point(baseDate, 2, false),
		point(baseDate, 3, true),
	}

	assert.Equal(t, domain.AbnormalCounts{Abnormal: 2, Normal: 1}, CountAbnormal(samples))
	assert.Equal(t, domain.AbnormalCounts{}, CountAbnormal(nil))
}

func TestSortChronologically(t *testing.T) {
	samples := []domain.ParameterDataPoint{
		{MeasurementID: "c", Date: baseDate.Add(2 * time.Hour)},
		{MeasurementID: "a", Date: baseDate},
		{MeasurementID: "b1", Date: baseDate.Add(time.Hour)},
		{MeasurementID: "b2", Date: baseDate.Add(time.Hour)},
	}

	SortChronologically(samples)

	ids := make([]string, len(samples))
	for i, s := range samples {
		ids[i] = s.MeasurementID
	}
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids)
}

func TestFlagAbnormal(t *testing.T) {
	rng := &domain.ReferenceRange{Low: domain.Float(0.6), High: domain.Float(1.2), Unit: "mg/dL"}
	samples := []domain.ParameterDataPoint{
		{Value: 0.9, ReferenceRange: rng},
		{Value: 1.5, ReferenceRange: rng},
		{Value: 0.9, ReferenceRange: rng, IsAbnormal: true},
		{Value: 99},
	}

	FlagAbnormal(samples)

	assert.False(t, samples[0].IsAbnormal)
	assert.True(t, samples[1].IsAbnormal)
	assert.True(t, samples[2].IsAbnormal, "source flag is kept")
	assert.False(t, samples[3].IsAbnormal)
}
