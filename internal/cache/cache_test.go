package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/periop-risk-mcp-server/internal/domain"
)

func sampleReport(patient string) *domain.TrendReport {
	return &domain.TrendReport{
		Query:  domain.TrendQuery{PatientID: patient, ParameterName: "hemoglobin"},
		Status: domain.TrendStatusNoData,
	}
}

func TestMemoryCache_GetSet(t *testing.T) {
	c, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := c.GetReport(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	report := sampleReport("p1")
	require.NoError(t, c.SetReport(ctx, "k", report, 0))

	got, ok, err := c.GetReport(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, report, got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Items)
	assert.Equal(t, 0.5, stats.HitRatio())
}

func TestMemoryCache_Expiry(t *testing.T) {
	c, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.SetReport(ctx, "k", sampleReport("p1"), 10*time.Second))

	now = now.Add(11 * time.Second)
	_, ok, err := c.GetReport(ctx, "k")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Items)
}

func TestMemoryCache_PerEntryTTL(t *testing.T) {
	c, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.SetReport(ctx, "short", sampleReport("p1"), 5*time.Second))
	require.NoError(t, c.SetReport(ctx, "default", sampleReport("p2"), 0))
	require.NoError(t, c.SetReport(ctx, "long", sampleReport("p3"), time.Hour))

	now = now.Add(30 * time.Second)
	_, ok, _ := c.GetReport(ctx, "short")
	assert.False(t, ok)
	_, ok, _ = c.GetReport(ctx, "default")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = c.GetReport(ctx, "default")
	assert.False(t, ok)
	_, ok, _ = c.GetReport(ctx, "long")
	assert.True(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewMemoryCache(2, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.SetReport(ctx, "a", sampleReport("a"), 0))
	require.NoError(t, c.SetReport(ctx, "b", sampleReport("b"), 0))
	_, _, _ = c.GetReport(ctx, "a")
	require.NoError(t, c.SetReport(ctx, "c", sampleReport("c"), 0))

	_, ok, _ := c.GetReport(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = c.GetReport(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

type stubShared struct {
	reports map[string]*domain.TrendReport
	getErr  error
	setErr  error
	sets    int
}

func (s *stubShared) GetReport(_ context.Context, key string) (*domain.TrendReport, bool, error) {
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	r, ok := s.reports[key]
	return r, ok, nil
}

func (s *stubShared) SetReport(_ context.Context, key string, report *domain.TrendReport, _ time.Duration) error {
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	s.reports[key] = report
	return nil
}

func TestTieredCache_PromotesSharedHits(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mem, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	report := sampleReport("p1")
	shared := &stubShared{reports: map[string]*domain.TrendReport{"k": report}}
	tiered := NewTieredCache(mem, shared, time.Minute, logger)
	ctx := context.Background()

	// Act
	got, ok, err := tiered.GetReport(ctx, "k")

	// Assert
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, report, got)

	fromMemory, ok, _ := mem.GetReport(ctx, "k")
	assert.True(t, ok)
	assert.Same(t, report, fromMemory)
}

func TestTieredCache_SharedFailuresAreMisses(t *testing.T) {
	logger, hook := test.NewNullLogger()
	mem, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	shared := &stubShared{
		reports: map[string]*domain.TrendReport{},
		getErr:  errors.New("connection refused"),
		setErr:  errors.New("connection refused"),
	}
	tiered := NewTieredCache(mem, shared, time.Minute, logger)
	ctx := context.Background()

	_, ok, err := tiered.GetReport(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tiered.SetReport(ctx, "k", sampleReport("p1"), time.Hour))
	assert.Equal(t, 1, shared.sets)
	assert.Len(t, hook.AllEntries(), 2)

	_, ok, _ = mem.GetReport(ctx, "k")
	assert.True(t, ok, "memory tier still written")
}

func TestTieredCache_MemoryOnly(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mem, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	tiered := NewTieredCache(mem, nil, time.Minute, logger)
	ctx := context.Background()

	require.NoError(t, tiered.SetReport(ctx, "k", sampleReport("p1"), 0))
	_, ok, err := tiered.GetReport(ctx, "k")

	require.NoError(t, err)
	assert.True(t, ok)
}
