// Package config provides configuration management for the risk servers.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir           string // Base directory for data files
	ParameterEncoding string // legacy or tagged

	// Cache settings
	CacheMaxItems int           // Maximum trend reports in memory
	CacheTTL      time.Duration // Default cache TTL

	// Optional sources
	CalculatorsFile string // YAML file of custom points calculators
	MeasurementsURL string // Remote record service for patient_trend
	MeasurementsKey string

	// Transport settings
	Transport string // Transport type: stdio

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".periop-risk-mcp")

	return &LiteConfig{
		DataDir:           dataDir,
		ParameterEncoding: "legacy",
		CacheMaxItems:     1000,
		CacheTTL:          10 * time.Minute,
		Transport:         "stdio",
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("PERIOP_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PERIOP_PARAMETER_ENCODING"); v != "" {
		cfg.ParameterEncoding = v
	}

	// Cache settings
	if v := os.Getenv("PERIOP_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("PERIOP_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	cfg.CalculatorsFile = os.Getenv("PERIOP_CALCULATORS_FILE")
	cfg.MeasurementsURL = os.Getenv("PERIOP_MEASUREMENTS_URL")
	cfg.MeasurementsKey = os.Getenv("PERIOP_MEASUREMENTS_API_KEY")

	if v := os.Getenv("PERIOP_TRANSPORT"); v != "" {
		cfg.Transport = v
	}

	// Logging
	if v := os.Getenv("PERIOP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PERIOP_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// CalculationsDBPath returns the path to the calculations SQLite database.
func (c *LiteConfig) CalculationsDBPath() string {
	return filepath.Join(c.DataDir, "calculations.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
