package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carmandale/AIMS-sub000/internal/calculator"
	"github.com/carmandale/AIMS-sub000/internal/models"
	"github.com/carmandale/AIMS-sub000/pkg/cache"
)

// Mock implementations

type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Create(ctx context.Context, snapshot *models.Snapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockSnapshotRepository) GetRange(ctx context.Context, userID int64, start, end time.Time, interval string) (models.SnapshotSeries, error) {
	args := m.Called(ctx, userID, start, end, interval)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.SnapshotSeries), args.Error(1)
}

func (m *MockSnapshotRepository) GetLatest(ctx context.Context, userID int64) (*models.Snapshot, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Snapshot), args.Error(1)
}

func (m *MockSnapshotRepository) ActiveUsers(ctx context.Context, since time.Time) ([]int64, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockSnapshotRepository) Count(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

type MockBenchmarkClient struct {
	mock.Mock
}

func (m *MockBenchmarkClient) GetPriceHistory(ctx context.Context, symbol string, from, to time.Time) (models.PriceSeries, error) {
	args := m.Called(ctx, symbol, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.PriceSeries), args.Error(1)
}

func (m *MockBenchmarkClient) IsHealthy(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

// fakeResultCache is an in-memory stand-in for the Redis-backed result cache
// with the same hit/compute/invalidate semantics.
type fakeResultCache struct {
	store    map[string][]byte
	computes int
}

func newFakeResultCache() *fakeResultCache {
	return &fakeResultCache{store: make(map[string][]byte)}
}

func (f *fakeResultCache) GetOrCompute(ctx context.Context, key cache.ResultKey, dest interface{}, compute func(ctx context.Context) (interface{}, error)) error {
	if data, ok := f.store[key.String()]; ok {
		return json.Unmarshal(data, dest)
	}

	value, err := compute(ctx)
	if err != nil {
		return err
	}
	f.computes++

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.store[key.String()] = data
	return json.Unmarshal(data, dest)
}

func (f *fakeResultCache) InvalidateUser(ctx context.Context, userID int64) error {
	prefix := fmt.Sprintf("analytics:%d:", userID)
	for k := range f.store {
		if strings.HasPrefix(k, prefix) {
			delete(f.store, k)
		}
	}
	return nil
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *MockSnapshotRepository, bench *MockBenchmarkClient) (*AnalyticsService, *fakeResultCache) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	resultCache := newFakeResultCache()
	svc := NewAnalyticsService(
		repo,
		bench,
		calculator.NewMetricsCalculator(calculator.MetricsCalculatorConfig{RiskFreeRate: 0.02}),
		calculator.NewDrawdownEngine(calculator.DrawdownEngineConfig{MaterialityThresholdPercent: 5.0}),
		models.DefaultAlertThresholds(),
		resultCache,
		logger,
	)
	svc.now = func() time.Time { return testNow }
	return svc, resultCache
}

func dailySnapshots(userID int64, start time.Time, values ...float64) models.SnapshotSeries {
	series := make(models.SnapshotSeries, 0, len(values))
	for i, v := range values {
		series = append(series, models.Snapshot{
			UserID:     userID,
			Timestamp:  start.AddDate(0, 0, i),
			Interval:   "daily",
			TotalValue: decimal.NewFromFloat(v),
		})
	}
	return series
}

func TestAnalyticsService_GetMetrics(t *testing.T) {
	ctx := context.Background()
	seriesStart := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	t.Run("computes metrics with drawdown sourced from episode detection", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))

		series := dailySnapshots(1, seriesStart, 100000, 95000, 88000, 92000, 101000, 103000)
		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(series, nil)

		response, err := svc.GetMetrics(ctx, 1, "30d", "daily", "")

		require.NoError(t, err)
		assert.Equal(t, int64(1), response.UserID)
		assert.Len(t, response.TimeSeries, 6)
		assert.True(t, response.Metrics.TotalReturnPercentage.Equal(decimal.NewFromInt(3)))

		// 100000 -> 88000 is a 12% episode, recovered at 101000.
		assert.True(t, response.Metrics.MaxDrawdown.Equal(decimal.NewFromInt(12)),
			"got %s", response.Metrics.MaxDrawdown)
		require.NotNil(t, response.Metrics.MaxDrawdownWindow)
		assert.NotNil(t, response.Metrics.MaxDrawdownWindow.Recovery)
		assert.NotNil(t, response.Metrics.Volatility)
		assert.Equal(t, testNow, response.ComputedAt)
	})

	t.Run("empty series is a success with empty payload", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))

		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(models.SnapshotSeries{}, nil)

		response, err := svc.GetMetrics(ctx, 1, "7d", "daily", "")

		require.NoError(t, err)
		assert.Empty(t, response.TimeSeries)
		assert.True(t, response.Metrics.TotalReturnPercentage.IsZero())
		assert.True(t, response.Metrics.MaxDrawdown.IsZero())
		assert.Nil(t, response.Metrics.Volatility)
		assert.Nil(t, response.Metrics.SharpeRatio)
	})

	t.Run("single point yields zeroed metrics", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))

		series := dailySnapshots(1, seriesStart, 100000)
		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(series, nil)

		response, err := svc.GetMetrics(ctx, 1, "7d", "daily", "")

		require.NoError(t, err)
		assert.Len(t, response.TimeSeries, 1)
		assert.True(t, response.Metrics.TotalReturnPercentage.IsZero())
		assert.Nil(t, response.Metrics.Volatility)
	})

	t.Run("invalid period is rejected before any lookup", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))

		_, err := svc.GetMetrics(ctx, 1, "13m", "daily", "")

		assert.ErrorIs(t, err, models.ErrInvalidPeriod)
		repo.AssertNotCalled(t, "GetRange")
	})

	t.Run("invalid frequency is rejected", func(t *testing.T) {
		svc, _ := newTestService(new(MockSnapshotRepository), new(MockBenchmarkClient))

		_, err := svc.GetMetrics(ctx, 1, "30d", "hourly", "")

		assert.ErrorIs(t, err, models.ErrInvalidPeriod)
	})

	t.Run("snapshot store failure surfaces as collaborator outage", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))

		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(nil, errors.New("connection refused"))

		_, err := svc.GetMetrics(ctx, 1, "30d", "daily", "")

		assert.ErrorIs(t, err, models.ErrCollaboratorUnavailable)
	})

	t.Run("repeat queries are served from cache", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, resultCache := newTestService(repo, new(MockBenchmarkClient))

		series := dailySnapshots(1, seriesStart, 100000, 105000)
		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(series, nil).Once()

		first, err := svc.GetMetrics(ctx, 1, "30d", "daily", "")
		require.NoError(t, err)

		second, err := svc.GetMetrics(ctx, 1, "30d", "daily", "")
		require.NoError(t, err)

		assert.Equal(t, 1, resultCache.computes)
		assert.True(t, first.Metrics.TotalReturnPercentage.Equal(second.Metrics.TotalReturnPercentage))
		repo.AssertExpectations(t)
	})
}

func TestAnalyticsService_GetMetrics_Benchmark(t *testing.T) {
	ctx := context.Background()
	seriesStart := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	t.Run("compares against benchmark and derives beta", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		bench := new(MockBenchmarkClient)
		svc, _ := newTestService(repo, bench)

		series := dailySnapshots(1, seriesStart, 100000, 102000, 100980, 103000)
		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(series, nil)

		// Benchmark moves in lockstep with the portfolio.
		prices := make(models.PriceSeries, len(series))
		for i, snap := range series {
			prices[i] = models.PricePoint{Date: snap.Timestamp, Price: snap.TotalValue.Div(decimal.NewFromInt(100))}
		}
		bench.On("GetPriceHistory", ctx, "SPY", mock.Anything, mock.Anything).Return(prices, nil)

		response, err := svc.GetMetrics(ctx, 1, "30d", "daily", "SPY")

		require.NoError(t, err)
		require.NotNil(t, response.Benchmark)
		assert.Equal(t, "SPY", response.Benchmark.Symbol)
		assert.True(t, response.Benchmark.RelativePerformance.IsZero(),
			"lockstep series should show no relative performance, got %s", response.Benchmark.RelativePerformance)
		assert.False(t, response.Benchmark.Outperformed)

		require.NotNil(t, response.Metrics.Beta)
		beta, _ := response.Metrics.Beta.Float64()
		assert.InDelta(t, 1.0, beta, 1e-9)
	})

	t.Run("unknown benchmark symbol propagates", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		bench := new(MockBenchmarkClient)
		svc, _ := newTestService(repo, bench)

		series := dailySnapshots(1, seriesStart, 100000, 101000)
		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(series, nil)
		bench.On("GetPriceHistory", ctx, "NOPE", mock.Anything, mock.Anything).Return(nil, models.ErrUnknownBenchmark)

		_, err := svc.GetMetrics(ctx, 1, "30d", "daily", "NOPE")

		assert.ErrorIs(t, err, models.ErrUnknownBenchmark)
	})

	t.Run("benchmark outage propagates as unavailable", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		bench := new(MockBenchmarkClient)
		svc, _ := newTestService(repo, bench)

		series := dailySnapshots(1, seriesStart, 100000, 101000)
		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(series, nil)
		bench.On("GetPriceHistory", ctx, "SPY", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: timeout", models.ErrCollaboratorUnavailable))

		_, err := svc.GetMetrics(ctx, 1, "30d", "daily", "SPY")

		assert.ErrorIs(t, err, models.ErrCollaboratorUnavailable)
	})
}

func TestAnalyticsService_GetHistory(t *testing.T) {
	ctx := context.Background()
	seriesStart := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	t.Run("period alias window with summary", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))

		series := dailySnapshots(1, seriesStart, 100000, 98000, 103000)
		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(series, nil)

		response, err := svc.GetHistory(ctx, 1, "30d", "", "", "daily")

		require.NoError(t, err)
		assert.Equal(t, "30d", response.Period.Label)
		assert.Len(t, response.TimeSeries, 3)
		assert.True(t, response.Summary.StartValue.Equal(decimal.NewFromInt(100000)))
		assert.True(t, response.Summary.EndValue.Equal(decimal.NewFromInt(103000)))
		assert.True(t, response.Summary.TotalChangePercentage.Equal(decimal.NewFromInt(3)))
		require.NotNil(t, response.Summary.BestDay)
		require.NotNil(t, response.Summary.WorstDay)
		assert.Equal(t, seriesStart.AddDate(0, 0, 2).Format("2006-01-02"), response.Summary.BestDay.Date)
	})

	t.Run("explicit dates override the period alias", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))

		series := dailySnapshots(1, seriesStart, 100000, 98000, 103000)
		repo.On("GetRange", ctx, int64(1),
			time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 2, 12, 23, 59, 59, 0, time.UTC),
			"daily").Return(series, nil)

		response, err := svc.GetHistory(ctx, 1, "30d", "2025-02-10", "2025-02-12", "daily")

		require.NoError(t, err)
		assert.Equal(t, "custom", response.Period.Label)
		assert.Len(t, response.TimeSeries, 3)
		repo.AssertExpectations(t)
	})

	t.Run("open-ended range runs to now", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))

		series := dailySnapshots(1, seriesStart, 100000, 103000)
		repo.On("GetRange", ctx, int64(1),
			time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
			testNow,
			"daily").Return(series, nil)

		response, err := svc.GetHistory(ctx, 1, "30d", "2025-02-10", "", "daily")

		require.NoError(t, err)
		assert.Equal(t, "custom", response.Period.Label)
		repo.AssertExpectations(t)
	})

	t.Run("malformed or inverted dates are rejected", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))

		_, err := svc.GetHistory(ctx, 1, "30d", "02/10/2025", "", "daily")
		assert.ErrorIs(t, err, models.ErrInvalidPeriod)

		_, err = svc.GetHistory(ctx, 1, "30d", "2025-02-12", "2025-02-10", "daily")
		assert.ErrorIs(t, err, models.ErrInvalidPeriod)

		repo.AssertNotCalled(t, "GetRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAnalyticsService_GetCurrentDrawdown(t *testing.T) {
	ctx := context.Background()
	seriesStart := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	repo := new(MockSnapshotRepository)
	svc, _ := newTestService(repo, new(MockBenchmarkClient))

	series := dailySnapshots(1, seriesStart, 100000, 110000, 99000)
	repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(series, nil)

	response, err := svc.GetCurrentDrawdown(ctx, 1)

	require.NoError(t, err)
	assert.True(t, response.State.HighWaterMark.Equal(decimal.NewFromInt(110000)))
	assert.True(t, response.State.CurrentDrawdown.Equal(decimal.NewFromInt(10)),
		"got %s", response.State.CurrentDrawdown)
	assert.Equal(t, 1, response.State.DaysInDrawdown)
	assert.Equal(t, testNow, response.AsOf)
}

func TestAnalyticsService_GetDrawdownEvents(t *testing.T) {
	ctx := context.Background()
	seriesStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// One 2% dip and one 20% dip, both recovered.
	values := []float64{100000, 98000, 100500, 80400, 101000}

	t.Run("default materiality filters shallow episodes", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))
		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(dailySnapshots(1, seriesStart, values...), nil)

		response, err := svc.GetDrawdownEvents(ctx, 1, "90d", nil)

		require.NoError(t, err)
		require.Len(t, response.Events, 1)
		assert.True(t, response.Events[0].MaxDrawdown.Equal(decimal.NewFromInt(20)),
			"got %s", response.Events[0].MaxDrawdown)
	})

	t.Run("explicit magnitude overrides the default", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))
		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(dailySnapshots(1, seriesStart, values...), nil)

		min := decimal.NewFromInt(1)
		response, err := svc.GetDrawdownEvents(ctx, 1, "90d", &min)

		require.NoError(t, err)
		assert.Len(t, response.Events, 2)
	})
}

func TestAnalyticsService_GetDrawdownAnalysis(t *testing.T) {
	ctx := context.Background()
	seriesStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	repo := new(MockSnapshotRepository)
	svc, _ := newTestService(repo, new(MockBenchmarkClient))

	series := dailySnapshots(1, seriesStart, 100000, 98000, 100500, 80400, 101000)
	repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(series, nil)

	analysis, err := svc.GetDrawdownAnalysis(ctx, 1, "90d")

	require.NoError(t, err)
	assert.Len(t, analysis.Events, 1, "shallow episode filtered from history")
	assert.Equal(t, 2, analysis.Statistics.EventCount, "statistics cover every episode")
	assert.True(t, analysis.Statistics.MaxDrawdown.Equal(decimal.NewFromInt(20)))
	assert.Len(t, analysis.UnderwaterCurve, 5)
	assert.True(t, analysis.Current.CurrentDrawdown.IsZero())
}

func TestAnalyticsService_GetAlerts(t *testing.T) {
	ctx := context.Background()
	seriesStart := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("deep drawdown triggers the full ladder", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))

		series := dailySnapshots(1, seriesStart, 100000, 75000)
		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(series, nil)

		response, err := svc.GetAlerts(ctx, 1, models.AlertThresholdConfig{})

		require.NoError(t, err)
		assert.True(t, response.CurrentDrawdown.Equal(decimal.NewFromInt(25)))
		require.Len(t, response.Alerts, 3)
		assert.Equal(t, "emergency", response.Alerts[0].Severity)
		assert.Equal(t, "critical", response.Alerts[1].Severity)
		assert.Equal(t, "warning", response.Alerts[2].Severity)
	})

	t.Run("overrides replace the configured ladder", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))

		series := dailySnapshots(1, seriesStart, 100000, 75000)
		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(series, nil)

		overrides, err := models.ParseAlertThresholds("severe:30")
		require.NoError(t, err)

		response, err := svc.GetAlerts(ctx, 1, overrides)

		require.NoError(t, err)
		assert.Empty(t, response.Alerts, "25%% drawdown is below the 30%% override")
	})

	t.Run("no drawdown means no alerts", func(t *testing.T) {
		repo := new(MockSnapshotRepository)
		svc, _ := newTestService(repo, new(MockBenchmarkClient))

		series := dailySnapshots(1, seriesStart, 100000, 105000)
		repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(series, nil)

		response, err := svc.GetAlerts(ctx, 1, models.AlertThresholdConfig{})

		require.NoError(t, err)
		assert.Empty(t, response.Alerts)
	})
}

func TestAnalyticsService_InvalidateUser(t *testing.T) {
	ctx := context.Background()
	seriesStart := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	repo := new(MockSnapshotRepository)
	svc, resultCache := newTestService(repo, new(MockBenchmarkClient))

	series := dailySnapshots(1, seriesStart, 100000, 101000)
	repo.On("GetRange", ctx, int64(1), mock.Anything, mock.Anything, "daily").Return(series, nil)

	_, err := svc.GetMetrics(ctx, 1, "30d", "daily", "")
	require.NoError(t, err)
	require.Equal(t, 1, resultCache.computes)

	require.NoError(t, svc.InvalidateUser(ctx, 1))

	_, err = svc.GetMetrics(ctx, 1, "30d", "daily", "")
	require.NoError(t, err)
	assert.Equal(t, 2, resultCache.computes)
}
