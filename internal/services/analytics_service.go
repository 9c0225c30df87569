package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/carmandale/AIMS-sub000/internal/calculator"
	"github.com/carmandale/AIMS-sub000/internal/clients"
	"github.com/carmandale/AIMS-sub000/internal/models"
	"github.com/carmandale/AIMS-sub000/internal/repositories"
	"github.com/carmandale/AIMS-sub000/pkg/cache"
)

// ResultCacheInterface is the caching contract the service depends on.
type ResultCacheInterface interface {
	GetOrCompute(ctx context.Context, key cache.ResultKey, dest interface{}, compute func(ctx context.Context) (interface{}, error)) error
	InvalidateUser(ctx context.Context, userID int64) error
}

// AnalyticsService answers the analytics queries: metrics, history, drawdown
// state and alerts. Every read goes through the result cache; computations
// themselves are pure and deterministic for a given snapshot series.
type AnalyticsService struct {
	snapshotRepo    repositories.SnapshotRepository
	benchmarkClient clients.BenchmarkSource
	metricsCalc     *calculator.MetricsCalculator
	drawdownEngine  *calculator.DrawdownEngine
	aligner         *calculator.BenchmarkAligner
	alertEvaluator  *calculator.AlertEvaluator
	thresholds      models.AlertThresholdConfig
	cache           ResultCacheInterface
	logger          *logrus.Logger

	now func() time.Time
}

// NewAnalyticsService creates the analytics service.
func NewAnalyticsService(
	snapshotRepo repositories.SnapshotRepository,
	benchmarkClient clients.BenchmarkSource,
	metricsCalc *calculator.MetricsCalculator,
	drawdownEngine *calculator.DrawdownEngine,
	thresholds models.AlertThresholdConfig,
	resultCache ResultCacheInterface,
	logger *logrus.Logger,
) *AnalyticsService {
	if thresholds.IsZero() {
		thresholds = models.DefaultAlertThresholds()
	}
	return &AnalyticsService{
		snapshotRepo:    snapshotRepo,
		benchmarkClient: benchmarkClient,
		metricsCalc:     metricsCalc,
		drawdownEngine:  drawdownEngine,
		aligner:         calculator.NewBenchmarkAligner(),
		alertEvaluator:  calculator.NewAlertEvaluator(),
		thresholds:      thresholds,
		cache:           resultCache,
		logger:          logger,
		now:             time.Now,
	}
}

// GetMetrics computes the risk and return metrics for a user over a period,
// optionally compared against a benchmark symbol.
func (as *AnalyticsService) GetMetrics(ctx context.Context, userID int64, periodLabel, frequencyLabel, benchmarkSymbol string) (*models.MetricsResponse, error) {
	period, frequency, err := as.resolveWindow(periodLabel, frequencyLabel)
	if err != nil {
		return nil, err
	}

	key := cache.ResultKey{
		UserID:    userID,
		Operation: "metrics",
		Start:     period.Start,
		End:       period.End,
		Frequency: string(frequency),
		Benchmark: benchmarkSymbol,
	}

	var response models.MetricsResponse
	err = as.cache.GetOrCompute(ctx, key, &response, func(ctx context.Context) (interface{}, error) {
		return as.computeMetrics(ctx, userID, period, frequency, benchmarkSymbol)
	})
	if err != nil {
		return nil, err
	}

	return &response, nil
}

func (as *AnalyticsService) computeMetrics(ctx context.Context, userID int64, period models.Period, frequency models.Frequency, benchmarkSymbol string) (*models.MetricsResponse, error) {
	series, err := as.loadSeries(ctx, userID, period, frequency)
	if err != nil {
		return nil, err
	}

	metrics := as.metricsCalc.Compute(series, frequency)

	// The headline max drawdown comes from the episode detection, so the
	// metrics payload and the drawdown endpoints always agree.
	drawdown := as.drawdownEngine.Analyze(series)
	if deepest := drawdown.MaxEvent(); deepest != nil {
		metrics.MaxDrawdown = deepest.MaxDrawdown
		metrics.MaxDrawdownWindow = &models.DrawdownWindow{
			Start:    deepest.StartDate,
			Trough:   deepest.TroughDate,
			Recovery: deepest.RecoveryDate,
		}
	}

	response := &models.MetricsResponse{
		UserID:     userID,
		Period:     period,
		Frequency:  frequency,
		Metrics:    metrics,
		TimeSeries: series.ToHistoryPoints(),
		ComputedAt: as.now().UTC(),
	}

	if benchmarkSymbol != "" && len(series) >= 2 {
		comparison, beta, err := as.compareBenchmark(ctx, series, benchmarkSymbol)
		if err != nil {
			return nil, err
		}
		response.Benchmark = comparison
		response.Metrics.Beta = beta
	}

	return response, nil
}

// compareBenchmark fetches benchmark prices, aligns them to the portfolio
// series and derives the comparison plus beta.
func (as *AnalyticsService) compareBenchmark(ctx context.Context, series models.SnapshotSeries, symbol string) (*models.BenchmarkComparison, *decimal.Decimal, error) {
	from := series.First().Date()
	to := series.Last().Date()

	prices, err := as.benchmarkClient.GetPriceHistory(ctx, symbol, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("benchmark %s: %w", symbol, err)
	}

	aligned := as.aligner.Align(series, prices)
	if aligned.Len() < 2 {
		as.logger.WithField("benchmark", symbol).Warn("Too few aligned benchmark observations for comparison")
		return &models.BenchmarkComparison{Symbol: symbol}, nil, nil
	}

	portfolioReturns, benchmarkReturns := aligned.Returns()
	return aligned.Compare(symbol), as.metricsCalc.Beta(portfolioReturns, benchmarkReturns), nil
}

// GetHistory returns the portfolio value time series with summary statistics.
// An explicit start/end date range takes precedence over the period alias.
func (as *AnalyticsService) GetHistory(ctx context.Context, userID int64, periodLabel, startDate, endDate, frequencyLabel string) (*models.HistoryResponse, error) {
	var period models.Period
	var err error
	if startDate != "" || endDate != "" {
		period, err = models.ParseDateRange(startDate, endDate, as.now())
	} else {
		period, err = models.ParsePeriod(periodLabel, as.now())
	}
	if err != nil {
		return nil, err
	}

	frequency, err := models.ParseFrequency(frequencyLabel)
	if err != nil {
		return nil, err
	}

	key := cache.ResultKey{
		UserID:    userID,
		Operation: "history",
		Start:     period.Start,
		End:       period.End,
		Frequency: string(frequency),
	}

	var response models.HistoryResponse
	err = as.cache.GetOrCompute(ctx, key, &response, func(ctx context.Context) (interface{}, error) {
		series, err := as.loadSeries(ctx, userID, period, frequency)
		if err != nil {
			return nil, err
		}
		return &models.HistoryResponse{
			UserID:     userID,
			Period:     period,
			Frequency:  frequency,
			TimeSeries: series.ToHistoryPoints(),
			Summary:    series.Summarize(),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	return &response, nil
}

// GetCurrentDrawdown reports where the portfolio sits relative to its
// all-time high-water mark.
func (as *AnalyticsService) GetCurrentDrawdown(ctx context.Context, userID int64) (*models.CurrentDrawdownResponse, error) {
	result, err := as.drawdownResult(ctx, userID, "all")
	if err != nil {
		return nil, err
	}

	return &models.CurrentDrawdownResponse{
		UserID: userID,
		State:  result.Current,
		AsOf:   as.now().UTC(),
	}, nil
}

// GetDrawdownEvents lists the drawdown episodes within a period. Events
// shallower than minMagnitude (default: the configured materiality
// threshold) are filtered out.
func (as *AnalyticsService) GetDrawdownEvents(ctx context.Context, userID int64, periodLabel string, minMagnitude *decimal.Decimal) (*models.DrawdownEventsResponse, error) {
	period, err := models.ParsePeriod(periodLabel, as.now())
	if err != nil {
		return nil, err
	}

	result, err := as.drawdownResult(ctx, userID, periodLabel)
	if err != nil {
		return nil, err
	}

	return &models.DrawdownEventsResponse{
		UserID: userID,
		Period: period,
		Events: as.drawdownEngine.FilterMaterial(result.Events, minMagnitude),
	}, nil
}

// GetDrawdownAnalysis returns the full drawdown picture: current state,
// material episodes, underwater curve and aggregate statistics. Statistics
// cover every episode, including ones below the materiality threshold.
func (as *AnalyticsService) GetDrawdownAnalysis(ctx context.Context, userID int64, periodLabel string) (*models.DrawdownAnalysis, error) {
	result, err := as.drawdownResult(ctx, userID, periodLabel)
	if err != nil {
		return nil, err
	}

	return &models.DrawdownAnalysis{
		Current:         result.Current,
		Events:          as.drawdownEngine.FilterMaterial(result.Events, nil),
		UnderwaterCurve: result.Underwater,
		Statistics:      result.Statistics(),
	}, nil
}

// GetAlerts evaluates the current all-time drawdown against the severity
// ladder. A zero overrides config falls back to the configured ladder.
func (as *AnalyticsService) GetAlerts(ctx context.Context, userID int64, overrides models.AlertThresholdConfig) (*models.AlertsResponse, error) {
	result, err := as.drawdownResult(ctx, userID, "all")
	if err != nil {
		return nil, err
	}

	thresholds := as.thresholds
	if !overrides.IsZero() {
		thresholds = overrides
	}

	current := result.Current.CurrentDrawdown
	return &models.AlertsResponse{
		UserID:          userID,
		CurrentDrawdown: current,
		Alerts:          as.alertEvaluator.Evaluate(current, thresholds),
		EvaluatedAt:     as.now().UTC(),
	}, nil
}

// drawdownResult runs the drawdown analysis for a period, cached. All four
// drawdown-derived queries share one cached computation per window.
func (as *AnalyticsService) drawdownResult(ctx context.Context, userID int64, periodLabel string) (*calculator.DrawdownResult, error) {
	period, err := models.ParsePeriod(periodLabel, as.now())
	if err != nil {
		return nil, err
	}

	key := cache.ResultKey{
		UserID:    userID,
		Operation: "drawdown",
		Start:     period.Start,
		End:       period.End,
		Frequency: string(models.FrequencyDaily),
	}

	var result calculator.DrawdownResult
	err = as.cache.GetOrCompute(ctx, key, &result, func(ctx context.Context) (interface{}, error) {
		series, err := as.loadSeries(ctx, userID, period, models.FrequencyDaily)
		if err != nil {
			return nil, err
		}
		return as.drawdownEngine.Analyze(series), nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// loadSeries fetches the normalized snapshot series for a window. Storage
// failures surface as a collaborator outage so the transport layer maps them
// to 503, never 500.
func (as *AnalyticsService) loadSeries(ctx context.Context, userID int64, period models.Period, frequency models.Frequency) (models.SnapshotSeries, error) {
	series, err := as.snapshotRepo.GetRange(ctx, userID, period.Start, period.End, string(frequency))
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot store: %v", models.ErrCollaboratorUnavailable, err)
	}
	return series, nil
}

// resolveWindow parses and validates the period and frequency labels.
func (as *AnalyticsService) resolveWindow(periodLabel, frequencyLabel string) (models.Period, models.Frequency, error) {
	period, err := models.ParsePeriod(periodLabel, as.now())
	if err != nil {
		return models.Period{}, "", err
	}
	frequency, err := models.ParseFrequency(frequencyLabel)
	if err != nil {
		return models.Period{}, "", err
	}
	return period, frequency, nil
}

// InvalidateUser drops the user's cached analytics. Called by the snapshot
// ingestion consumer.
func (as *AnalyticsService) InvalidateUser(ctx context.Context, userID int64) error {
	return as.cache.InvalidateUser(ctx, userID)
}
