package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/metrics"
)

// RateLimiterConfig configures the token bucket.
type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
}

// RateLimiterConfigFromDomain converts the rate_limit config block.
func RateLimiterConfigFromDomain(cfg domain.RateLimitConfig) RateLimiterConfig {
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return RateLimiterConfig{Rate: rate.Limit(cfg.RequestsPerSecond), Burst: burst}
}

// RateLimiter rejects requests once the shared bucket is empty.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter from config.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(config.Rate, config.Burst),
	}
}

// RateLimit returns the gin middleware.
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewMCPError(
				domain.ErrCodeRateLimit, "rate limit exceeded", "", c.GetString(CorrelationIDKey)))
			return
		}
		c.Next()
	}
}

// Metrics records request counts and latency per route template, so
// patient identifiers never become label values.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
