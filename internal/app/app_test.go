package app

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/periop-risk-mcp-server/internal/database"
	"github.com/periop-risk-mcp-server/internal/domain"
	"github.com/periop-risk-mcp-server/internal/service"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger(domain.LoggingConfig{Level: "debug", Format: "text"}, false)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stdout, logger.Out)

	logger = NewLogger(domain.LoggingConfig{Level: "shouty", Output: "stdout"}, true)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stderr, logger.Out)
}

// staticConfig is a ConfigManager over a fixed config.
type staticConfig struct {
	cfg *domain.Config
	url string
}

func (s *staticConfig) GetConfig() *domain.Config { return s.cfg }
func (s *staticConfig) GetDatabaseConfig() *domain.DatabaseConfig { return &s.cfg.Database }
func (s *staticConfig) GetServerConfig() *domain.ServerConfig { return &s.cfg.Server }
func (s *staticConfig) Reload() error { return nil }
func (s *staticConfig) Validate() error { return nil }
func (s *staticConfig) GetDatabaseConnectionString() string { return s.url }
func (s *staticConfig) GetDatabaseURL() string { return s.url }
func (s *staticConfig) GetRedisConnectionString() string { return s.cfg.Cache.RedisURL }
func (s *staticConfig) IsProduction() bool { return false }
func (s *staticConfig) IsDevelopment() bool { return true }

func TestBuild_InvalidEncoding(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cm := &staticConfig{cfg: &domain.Config{Storage: domain.StorageConfig{ParameterEncoding: "xml"}}}

	_, err := Build(context.Background(), cm, logger)

	assert.Error(t, err)
}

func TestBuild_WithPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("periop"),
		postgres.WithUsername("periop"),
		postgres.WithPassword("periop"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	url := fmt.Sprintf("postgres://periop:periop@%s:%d/periop?sslmode=disable", host, port.Int())

	runner, err := database.NewMigrationRunner(url, "../../migrations", logger)
	require.NoError(t, err)
	require.NoError(t, runner.Up(ctx))
	require.NoError(t, runner.Close())

	cm := &staticConfig{url: url, cfg: &domain.Config{
		Database: domain.DatabaseConfig{
			Host:     host,
			Port:     port.Int(),
			Database: "periop",
			Username: "periop",
			Password: "periop",
			SSLMode:  "disable",
		},
		Measurements: domain.MeasurementsConfig{Source: "database"},
		Storage:      domain.StorageConfig{ParameterEncoding: "tagged"},
	}}

	c, err := Build(ctx, cm, logger)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.True(t, c.Risk.HasStore())
	assert.True(t, c.Trends.HasSource())
	require.Contains(t, c.HealthChecks, "database")
	assert.NoError(t, c.HealthChecks["database"](ctx))

	calc, err := c.Risk.SaveCalculation(ctx, service.SaveCalculationParams{
		PatientID:       "p-1",
		CalculationType: domain.CalculationASA,
		Inputs:          map[string]domain.Value{"asa_class": domain.TextValue("II"), "emergency": domain.BoolValue(false)},
	})
	require.NoError(t, err)

	got, err := c.Risk.GetCalculation(ctx, calc.ID)
	require.NoError(t, err)
	assert.Equal(t, calc.ResultPercentage, got.ResultPercentage)
}
