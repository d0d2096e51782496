package external

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/periop-risk-mcp-server/internal/domain"
)

// StatusError reports a non-2xx response from the record service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("measurement service returned status %d: %s", e.StatusCode, e.Body)
}

// MeasurementClientConfig represents configuration for the remote
// measurement client.
type MeasurementClientConfig struct {
	BaseURL        string               `json:"base_url"`
	APIKey         string               `json:"api_key"`
	Timeout        time.Duration        `json:"timeout"`
	RateLimit      int                  `json:"rate_limit"` // requests per second
	RetryCount     int                  `json:"retry_count"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
}

// MeasurementClient fetches measurement samples from a remote record
// service. It implements domain.MeasurementSource.
type MeasurementClient struct {
	httpClient *resty.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// measurementResponse is the record service's sample listing.
type measurementResponse struct {
	Measurements []struct {
		ID             string                 `json:"id"`
		Date           time.Time              `json:"date"`
		Value          float64                `json:"value"`
		IsAbnormal     bool                   `json:"is_abnormal"`
		ReferenceRange *domain.ReferenceRange `json:"reference_range,omitempty"`
	} `json:"measurements"`
}

// NewMeasurementClientFromConfig adapts the application config.
func NewMeasurementClientFromConfig(cfg domain.MeasurementsConfig, logger *logrus.Logger) *MeasurementClient {
	return NewMeasurementClient(MeasurementClientConfig{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		RetryCount: cfg.RetryCount,
	}, logger)
}

// NewMeasurementClient creates a new remote measurement client.
func NewMeasurementClient(config MeasurementClientConfig, logger *logrus.Logger) *MeasurementClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(config.Timeout).
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")
	if config.APIKey != "" {
		client.SetAuthToken(config.APIKey)
	}

	return &MeasurementClient{
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:    newCircuitBreaker("MeasurementService", config.CircuitBreaker, logger),
		logger:     logger,
	}
}

// Samples fetches the samples of one parameter for one patient. A 404 from
// the service means the patient has no samples for the parameter.
func (c *MeasurementClient) Samples(ctx context.Context, q domain.TrendQuery) ([]domain.ParameterDataPoint, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, q)
	})
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"patient_id":     q.PatientID,
			"parameter_name": q.ParameterName,
		}).Warn("Measurement fetch failed")
		return nil, breakerError("measurement query", err)
	}

	return result.([]domain.ParameterDataPoint), nil
}

func (c *MeasurementClient) fetch(ctx context.Context, q domain.TrendQuery) ([]domain.ParameterDataPoint, error) {
	req := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("patientId", q.PatientID).
		SetQueryParam("parameter", q.ParameterName)
	if !q.From.IsZero() {
		req.SetQueryParam("from", q.From.UTC().Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		req.SetQueryParam("to", q.To.UTC().Format(time.RFC3339))
	}

	var body measurementResponse
	resp, err := req.SetResult(&body).Get("/patients/{patientId}/measurements")
	if err != nil {
		return nil, fmt.Errorf("failed to call measurement service: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return []domain.ParameterDataPoint{}, nil
	case resp.IsError():
		return nil, &StatusError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 200)}
	}

	samples := make([]domain.ParameterDataPoint, 0, len(body.Measurements))
	for _, m := range body.Measurements {
		samples = append(samples, domain.ParameterDataPoint{
			MeasurementID:  m.ID,
			PatientID:      q.PatientID,
			ParameterName:  q.ParameterName,
			Date:           m.Date,
			Value:          m.Value,
			IsAbnormal:     m.IsAbnormal,
			ReferenceRange: m.ReferenceRange,
		})
	}

	c.logger.WithFields(logrus.Fields{
		"patient_id":     q.PatientID,
		"parameter_name": q.ParameterName,
		"sample_count":   len(samples),
	}).Debug("Fetched measurements")

	return samples, nil
}

// HealthCheck reports whether the breaker currently admits requests.
func (c *MeasurementClient) HealthCheck() ServiceHealth {
	state := c.breaker.State()
	health := ServiceHealth{
		Service:   "measurements",
		Healthy:   state != gobreaker.StateOpen,
		State:     state.String(),
		LastCheck: time.Now(),
	}
	if !health.Healthy {
		health.Error = ErrServiceUnavailable.Error()
	}
	return health
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
