package trends

import (
	"sort"

	"github.com/periop-risk-mcp-server/internal/domain"
)

const monthLayout = "2006-01"

// GroupByMonth averages samples per UTC calendar month, oldest month first.
func GroupByMonth(samples []domain.ParameterDataPoint) []domain.MonthlyAverage {
	type acc struct {
		sum   float64
		count int
	}
	byMonth := make(map[string]*acc)
	for _, s := range samples {
		key := s.Date.UTC().Format(monthLayout)
		a, ok := byMonth[key]
		if !ok {
			a = &acc{}
			byMonth[key] = a
		}
		a.sum += s.Value
		a.count++
	}

	months := make([]domain.MonthlyAverage, 0, len(byMonth))
	for key, a := range byMonth {
		months = append(months, domain.MonthlyAverage{
			Month:   key,
			Average: a.sum / float64(a.count),
			Count:   a.count,
		})
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Month < months[j].Month })
	return months
}

// CountAbnormal splits samples by their abnormal flag.
func CountAbnormal(samples []domain.ParameterDataPoint) domain.AbnormalCounts {
	var c domain.AbnormalCounts
	for _, s := range samples {
		if s.IsAbnormal {
			c.Abnormal++
		} else {
			c.Normal++
		}
	}
	return c
}

// SortChronologically orders samples by date in place. Samples with equal
// dates keep their relative order.
func SortChronologically(samples []domain.ParameterDataPoint) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Date.Before(samples[j].Date)
	})
}

// FlagAbnormal sets IsAbnormal from the reference range for samples that
// carry one. Samples without a range keep the flag from their source.
func FlagAbnormal(samples []domain.ParameterDataPoint) {
	for i := range samples {
		if r := samples[i].ReferenceRange; r != nil && (r.Low != nil || r.High != nil) {
			samples[i].IsAbnormal = samples[i].IsAbnormal || !r.Contains(samples[i].Value)
		}
	}
}
