// Package external holds adapters to services outside the process: the
// remote measurement record service and the shared Redis report cache.
package external

import (
	"context"
	"time"

	"github.com/periop-risk-mcp-server/internal/domain"
)

// SummaryStore is the shared cache contract the trends service consumes.
type SummaryStore interface {
	GetReport(ctx context.Context, key string) (*domain.TrendReport, bool, error)
	SetReport(ctx context.Context, key string, report *domain.TrendReport, ttl time.Duration) error
}

// ServiceHealth represents the health status of an external service
type ServiceHealth struct {
	Service   string    `json:"service"`
	Healthy   bool      `json:"healthy"`
	State     string    `json:"state,omitempty"`
	LastCheck time.Time `json:"last_check"`
	Error     string    `json:"error,omitempty"`
}

var (
	_ domain.MeasurementSource = (*MeasurementClient)(nil)
	_ SummaryStore             = (*RedisSummaryCache)(nil)
)
