package trends

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/metrics"
)

// ErrNoSource is returned by Service.Report when no measurement source is
// configured.
var ErrNoSource = errors.New("no measurement source configured")

// SummaryCache stores finished trend reports by query key.
type SummaryCache interface {
	GetReport(ctx context.Context, key string) (*domain.TrendReport, bool, error)
	SetReport(ctx context.Context, key string, report *domain.TrendReport, ttl time.Duration) error
}

// Service builds trend reports from a measurement source.
type Service struct {
	source   domain.MeasurementSource
	cache    SummaryCache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache enables report caching for ttl.
func WithCache(cache SummaryCache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithMetrics records report outcomes.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the clock used to stamp reports.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a trend service over source. source may be nil, in
// which case Report fails with ErrNoSource and only Compute is usable.
func NewService(source domain.MeasurementSource, logger *logrus.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		source: source,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasSource reports whether Report can fetch samples.
func (s *Service) HasSource() bool {
	return s.source != nil
}

// Report fetches the samples selected by q, orders them by date and
// summarizes them.
func (s *Service) Report(ctx context.Context, q domain.TrendQuery) (*domain.TrendReport, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if s.source == nil {
		return nil, ErrNoSource
	}

	key := q.CacheKey()
	if s.cache != nil {
		cached, ok, err := s.cache.GetReport(ctx, key)
		if err != nil {
			s.logger.WithError(err).WithField("cache_key", key).Warn("Trend cache lookup failed")
		} else if ok {
			s.logger.WithField("cache_key", key).Debug("Trend report served from cache")
			return cached, nil
		}
	}

	samples, err := s.source.Samples(ctx, q)
	if err != nil {
		s.metrics.RecordTrendReport("error")
		return nil, fmt.Errorf("failed to fetch samples for %s/%s: %w", q.PatientID, q.ParameterName, err)
	}
	SortChronologically(samples)

	report, err := BuildReport(q, samples, s.now().UTC())
	if err != nil {
		s.metrics.RecordTrendReport("error")
		return nil, err
	}
	s.metrics.RecordTrendReport(string(report.Status))

	s.logger.WithFields(logrus.Fields{
		"patient_id": q.PatientID,
		"parameter":  q.ParameterName,
		"samples":    len(samples),
		"status":     report.Status,
	}).Info("Built trend report")

	if s.cache != nil {
		if err := s.cache.SetReport(ctx, key, report, s.cacheTTL); err != nil {
			s.logger.WithError(err).WithField("cache_key", key).Warn("Failed to cache trend report")
		}
	}
	return report, nil
}

// Compute summarizes caller-supplied samples in the order given.
func (s *Service) Compute(samples []domain.ParameterDataPoint) (*domain.TrendReport, error) {
	report, err := BuildReport(domain.TrendQuery{}, samples, s.now().UTC())
	if err != nil {
		s.metrics.RecordTrendReport("error")
		return nil, err
	}
	s.metrics.RecordTrendReport(string(report.Status))
	return report, nil
}

// BuildReport computes the summary and presentation projections of
// samples. Insufficient data is reported through the status rather than
// as an error.
func BuildReport(q domain.TrendQuery, samples []domain.ParameterDataPoint, generatedAt time.Time) (*domain.TrendReport, error) {
	if samples == nil {
		samples = []domain.ParameterDataPoint{}
	}
	report := &domain.TrendReport{
		Query:       q,
		Monthly:     GroupByMonth(samples),
		Counts:      CountAbnormal(samples),
		Samples:     samples,
		GeneratedAt: generatedAt,
	}

	summary, err := ComputeTrend(samples)
	switch {
	case errors.Is(err, domain.ErrInsufficientData):
		report.Status = domain.TrendStatusInsufficientData
	case err != nil:
		return nil, err
	case summary == nil:
		report.Status = domain.TrendStatusNoData
	default:
		report.Status = domain.TrendStatusOK
		report.Summary = summary
	}
	return report, nil
}
