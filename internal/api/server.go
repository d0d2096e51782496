// Package api exposes the risk engine over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/metrics"
	"github.com/periop-risk-mcp-server/internal/middleware"
	"github.com/periop-risk-mcp-server/internal/service"
	"github.com/periop-risk-mcp-server/internal/trends"
)

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP server
type Server struct {
	cfg      domain.ServerConfig
	risk     *service.RiskService
	trends   *trends.Service
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	checks   map[string]HealthCheck
	limit    *domain.RateLimitConfig
	version  string
	logger   *logrus.Logger
	router   *gin.Engine
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics instruments requests and serves gatherer on /metrics.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithHealthCheck adds a named dependency check to /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithRateLimit enables the token bucket.
func WithRateLimit(cfg domain.RateLimitConfig) Option {
	return func(s *Server) {
		if cfg.Enabled && cfg.RequestsPerSecond > 0 {
			s.limit = &cfg
		}
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates a new HTTP server instance
func NewServer(cfg domain.ServerConfig, risk *service.RiskService, trendSvc *trends.Service, logger *logrus.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		risk:    risk,
		trends:  trendSvc,
		checks:  make(map[string]HealthCheck),
		version: "dev",
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	registerValidators()

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.AuditLogger(logger))
	if s.metrics != nil {
		router.Use(middleware.Metrics(s.metrics))
	}
	if s.limit != nil {
		router.Use(middleware.NewRateLimiter(middleware.RateLimiterConfigFromDomain(*s.limit)).RateLimit())
	}
	router.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	s.router = router
	s.setupRoutes()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		var err error
		if s.cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/calculators", s.handleListCalculators)
		v1.GET("/calculators/:type", s.handleDescribeCalculator)
		v1.POST("/calculators/:type/evaluate", s.handleEvaluate)
		v1.POST("/classify", s.handleClassify)
		v1.POST("/trends/compute", s.handleComputeTrend)

		patients := v1.Group("/patients/:patientId")
		patients.GET("/trends/:parameter", s.handlePatientTrend)
		patients.GET("/trends/:parameter/export", s.handleExportTrend)
		patients.POST("/calculations", s.handleSaveCalculation)
		patients.GET("/calculations", s.handleListCalculations)

		v1.GET("/calculations/:id", s.handleGetCalculation)
		v1.PATCH("/calculations/:id/notes", s.handleUpdateNotes)
		v1.DELETE("/calculations/:id", s.handleDeleteCalculation)
		v1.DELETE("/events/:eventId/calculation-links", s.handleClearEventLinks)
	}
}

// handleHealth runs every registered dependency check.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"timestamp":    time.Now().UTC(),
		"version":      s.version,
		"calculators":  s.risk.Catalog().Len(),
		"dependencies": deps,
	})
}
