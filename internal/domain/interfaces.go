package domain

import (
	"context"
)

// MeasurementSource supplies the time-stamped samples of one patient
// parameter. Implementations return samples in chronological order when
// they can; callers must not rely on it.
type MeasurementSource interface {
	Samples(ctx context.Context, query TrendQuery) ([]ParameterDataPoint, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
