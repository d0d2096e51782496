package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/periop-risk-mcp-server/internal/calculator"
	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/metrics"
	"github.com/periop-risk-mcp-server/internal/service"
	"github.com/periop-risk-mcp-server/internal/store"
	"github.com/periop-risk-mcp-server/internal/trends"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSource struct {
	samples []domain.ParameterDataPoint
	err     error
}

func (f *fakeSource) Samples(_ context.Context, _ domain.TrendQuery) ([]domain.ParameterDataPoint, error) {
	return f.samples, f.err
}

func newTestServer(t *testing.T, source domain.MeasurementSource, opts ...Option) *Server {
	t.Helper()
	logger, _ := test.NewNullLogger()

	catalog, err := calculator.NewDefaultCatalog(logger)
	require.NoError(t, err)
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "calcs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	risk := service.NewRiskService(calculator.NewEngine(catalog), logger, service.WithStore(s))
	trendSvc := trends.NewService(source, logger)
	return NewServer(domain.ServerConfig{RequestTimeout: 5 * time.Second}, risk, trendSvc, logger, opts...)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) domain.MCPError {
	t.Helper()
	var e domain.MCPError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func rcriBody(positives int) map[string]any {
	names := []string{"high_risk_surgery", "ischemic_heart_disease", "heart_failure", "cerebrovascular_disease", "insulin_diabetes", "creatinine_above_2"}
	in := make(map[string]any, len(names))
	for i, n := range names {
		in[n] = i < positives
	}
	return in
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil,
		WithHealthCheck("database", func(context.Context) error { return nil }),
		WithVersion("1.2.3"))

	w := doJSON(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"1.2.3"`)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))

	srv = newTestServer(t, nil, WithHealthCheck("database", func(context.Context) error { return errors.New("down") }))
	w = doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := newTestServer(t, nil, WithMetrics(metrics.New(reg), reg))

	doJSON(t, srv, http.MethodGet, "/api/v1/calculators", nil)
	w := doJSON(t, srv, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "periop_risk_http_requests_total")
}

func TestCalculators(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/api/v1/calculators", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"calculation_type":"rcri"`)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/calculators/rcri", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "heart_failure")

	w = doJSON(t, srv, http.MethodGet, "/api/v1/calculators/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.ErrCodeNotFound, decodeError(t, w).Code)
}

func TestEvaluate(t *testing.T) {
	srv := newTestServer(t, nil)

	// Act
	w := doJSON(t, srv, http.MethodPost, "/api/v1/calculators/rcri/evaluate", map[string]any{"inputs": rcriBody(3)})

	// Assert
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var eval service.Evaluation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &eval))
	assert.Equal(t, 15.0, eval.Result.Percentage)
	assert.Equal(t, domain.BandHigh, eval.RiskBand.Band)
}

func TestEvaluate_InvalidInputs(t *testing.T) {
	srv := newTestServer(t, nil)
	inputs := rcriBody(0)
	delete(inputs, "heart_failure")
	inputs["insulin_diabetes"] = "yes"

	w := doJSON(t, srv, http.MethodPost, "/api/v1/calculators/rcri/evaluate", map[string]any{"inputs": inputs})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, domain.ErrCodeValidation, e.Code)
	assert.ElementsMatch(t, []string{"heart_failure", "insulin_diabetes"}, e.Fields)
}

func TestEvaluate_MalformedBody(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/calculators/rcri/evaluate", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassify(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/classify", map[string]any{"percentage": 10})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"band":"high"`)

	w = doJSON(t, srv, http.MethodPost, "/api/v1/classify", map[string]any{"percentage": nil})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"band":"unknown"`)
}

func TestComputeTrend(t *testing.T) {
	srv := newTestServer(t, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/trends/compute", map[string]any{
		"samples": []domain.ParameterDataPoint{
			{Date: base, Value: 10},
			{Date: base.AddDate(0, 1, 0), Value: 20},
		},
	})

	require.Equal(t, http.StatusOK, w.Code)
	var report domain.TrendReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, domain.TrendStatusOK, report.Status)
	require.NotNil(t, report.Summary)
	assert.Equal(t, domain.TrendIncreasing, report.Summary.Trend)
	assert.Equal(t, 100.0, report.Summary.PercentChange)
}

func TestPatientTrend(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{samples: []domain.ParameterDataPoint{
		{Date: base.AddDate(0, 1, 0), Value: 12},
		{Date: base, Value: 10},
	}}
	srv := newTestServer(t, source)

	w := doJSON(t, srv, http.MethodGet, "/api/v1/patients/p-1/trends/hemoglobin?from=2023-12-01T00:00:00Z", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report domain.TrendReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "p-1", report.Query.PatientID)
	require.Len(t, report.Samples, 2)
	assert.Equal(t, 10.0, report.Samples[0].Value, "samples are ordered by date")

	w = doJSON(t, srv, http.MethodGet, "/api/v1/patients/p-1/trends/hemoglobin?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/patients/p-1/trends/hemoglobin?from=2024-02-01T00:00:00Z&to=2024-01-01T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPatientTrend_NoSource(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/api/v1/patients/p-1/trends/hemoglobin", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestExportTrend(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := newTestServer(t, &fakeSource{samples: []domain.ParameterDataPoint{
		{Date: base, Value: 10},
		{Date: base.AddDate(0, 0, 7), Value: 14, IsAbnormal: true},
	}})

	w := doJSON(t, srv, http.MethodGet, "/api/v1/patients/p-1/trends/creatinine/export", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "trend-p-1-creatinine.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Samples")
}

func TestCalculationLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	// Save
	w := doJSON(t, srv, http.MethodPost, "/api/v1/patients/p-9/calculations", map[string]any{
		"calculation_type": "rcri",
		"inputs":           rcriBody(1),
		"notes":            "clinic",
		"related_event_id": "event-1",
		"calculation_date": "2024-03-04T09:30:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var saved domain.StoredCalculation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.Equal(t, "p-9", saved.PatientID)
	assert.Equal(t, domain.BandModerate, saved.RiskBand)

	// List
	w = doJSON(t, srv, http.MethodGet, "/api/v1/patients/p-9/calculations?calculation_type=rcri", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page service.CalculationPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(1), page.Total)

	// Update notes
	w = doJSON(t, srv, http.MethodPatch, "/api/v1/calculations/"+saved.ID+"/notes", map[string]any{"notes": "reviewed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"notes":"reviewed"`)

	// Clear event links
	w = doJSON(t, srv, http.MethodDelete, "/api/v1/events/event-1/calculation-links", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unlinked":1`)

	// Get
	w = doJSON(t, srv, http.MethodGet, "/api/v1/calculations/"+saved.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "related_event_id")

	// Delete
	w = doJSON(t, srv, http.MethodDelete, "/api/v1/calculations/"+saved.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, srv, http.MethodGet, "/api/v1/calculations/"+saved.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveCalculation_BadRequests(t *testing.T) {
	srv := newTestServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/patients/p-9/calculations", map[string]any{"inputs": rcriBody(0)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Fields, "calculation_type")

	w = doJSON(t, srv, http.MethodPost, "/api/v1/patients/p-9/calculations", map[string]any{
		"calculation_type": "rcri",
		"inputs":           map[string]any{},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, srv, http.MethodPatch, "/api/v1/calculations/missing/notes", map[string]any{"notes": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, srv, http.MethodPatch, "/api/v1/calculations/missing/notes", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, nil, WithRateLimit(domain.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}))

	assert.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/api/v1/calculators", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, doJSON(t, srv, http.MethodGet, "/api/v1/calculators", nil).Code)
}
