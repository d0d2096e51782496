// Package metrics defines the Prometheus instruments of the risk engine.
// All recording methods are safe to call on a nil *Metrics, which records
// nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "periop_risk"

// Metrics holds all application metrics
type Metrics struct {
	// Scoring metrics
	Evaluations        *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
	RiskBands          *prometheus.CounterVec

	// Trend metrics
	TrendReports *prometheus.CounterVec

	// Store metrics
	StoreOperations *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "evaluations_total",
			Help:      "Total number of calculator evaluations by outcome",
		}, []string{"calculation_type", "outcome"}),
		EvaluationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent validating inputs and running calculator formulas",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}, []string{"calculation_type"}),
		RiskBands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "risk_band_total",
			Help:      "Total number of classified results per risk band",
		}, []string{"band"}),
		TrendReports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "trend_reports_total",
			Help:      "Total number of trend reports by status",
		}, []string{"status"}),
		StoreOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "store_operations_total",
			Help:      "Total number of calculation store operations",
		}, []string{"operation", "status"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// RecordEvaluation counts one evaluation. outcome is "success",
// "invalid", "not_found" or "error".
func (m *Metrics) RecordEvaluation(calculationType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(calculationType, outcome).Inc()
	m.EvaluationDuration.WithLabelValues(calculationType).Observe(elapsed.Seconds())
}

// RecordBand counts one classified result.
func (m *Metrics) RecordBand(band string) {
	if m == nil {
		return
	}
	m.RiskBands.WithLabelValues(band).Inc()
}

// RecordTrendReport counts one trend report.
func (m *Metrics) RecordTrendReport(status string) {
	if m == nil {
		return
	}
	m.TrendReports.WithLabelValues(status).Inc()
}

// RecordStoreOperation counts one store call.
func (m *Metrics) RecordStoreOperation(operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperations.WithLabelValues(operation, status).Inc()
}

// RecordHTTPRequest counts one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
