package calculator

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"github.com/carmandale/AIMS-sub000/internal/models"
)

// MetricsCalculator computes return and risk statistics over a snapshot
// series. All methods are pure: identical inputs yield identical outputs.
type MetricsCalculator struct {
	riskFreeRate decimal.Decimal // annual, e.g. 0.02
}

// MetricsCalculatorConfig configures the calculator.
type MetricsCalculatorConfig struct {
	RiskFreeRate float64 `json:"risk_free_rate"`
}

// NewMetricsCalculator creates a metrics calculator.
func NewMetricsCalculator(config MetricsCalculatorConfig) *MetricsCalculator {
	return &MetricsCalculator{
		riskFreeRate: decimal.NewFromFloat(config.RiskFreeRate),
	}
}

// Compute derives RiskMetrics from a series. A series with fewer than two
// points is valid input and yields zeroed/absent fields, not an error.
// Drawdown fields are filled in by the caller from the DrawdownEngine.
func (mc *MetricsCalculator) Compute(series models.SnapshotSeries, frequency models.Frequency) models.RiskMetrics {
	metrics := models.RiskMetrics{
		TotalReturnPercentage: series.TotalReturnPercent(),
	}

	returns := toFloats(series.Returns())
	periodsPerYear := float64(frequency.PeriodsPerYear())

	metrics.Volatility = mc.volatility(returns, periodsPerYear)
	metrics.SharpeRatio = mc.sharpeRatio(returns, periodsPerYear)
	metrics.SortinoRatio = mc.sortinoRatio(returns, periodsPerYear)
	metrics.ValueAtRisk95 = mc.valueAtRisk(returns, 0.95)

	return metrics
}

// Beta computes covariance(portfolio, benchmark) / variance(benchmark) over
// aligned return series. Nil when the series are mis-aligned, too short, or
// the benchmark shows no variance.
func (mc *MetricsCalculator) Beta(portfolioReturns, benchmarkReturns []decimal.Decimal) *decimal.Decimal {
	if len(portfolioReturns) != len(benchmarkReturns) || len(portfolioReturns) < 2 {
		return nil
	}

	p := toFloats(portfolioReturns)
	b := toFloats(benchmarkReturns)

	covariance, err := stats.Covariance(stats.Float64Data(p), stats.Float64Data(b))
	if err != nil {
		return nil
	}
	variance, err := stats.SampleVariance(stats.Float64Data(b))
	if err != nil || variance == 0 {
		return nil
	}

	return decimalPtr(covariance / variance)
}

// volatility is the annualized sample standard deviation of returns, nil
// with fewer than two observations or when the returns show no variance: a
// flat series has undefined volatility, not zero volatility.
func (mc *MetricsCalculator) volatility(returns []float64, periodsPerYear float64) *decimal.Decimal {
	if len(returns) < 2 {
		return nil
	}

	stdDev, err := stats.StandardDeviationSample(stats.Float64Data(returns))
	if err != nil || stdDev == 0 {
		return nil
	}

	return decimalPtr(stdDev * math.Sqrt(periodsPerYear))
}

// sharpeRatio is (mean - riskFreePeriodic) / stdev * sqrt(periodsPerYear),
// nil when the standard deviation is zero or undefined.
func (mc *MetricsCalculator) sharpeRatio(returns []float64, periodsPerYear float64) *decimal.Decimal {
	if len(returns) < 2 {
		return nil
	}

	stdDev, err := stats.StandardDeviationSample(stats.Float64Data(returns))
	if err != nil || stdDev == 0 {
		return nil
	}

	mean, err := stats.Mean(stats.Float64Data(returns))
	if err != nil {
		return nil
	}

	riskFree, _ := mc.riskFreeRate.Float64()
	riskFreePeriodic := riskFree / periodsPerYear

	return decimalPtr((mean - riskFreePeriodic) / stdDev * math.Sqrt(periodsPerYear))
}

// sortinoRatio replaces the Sharpe denominator with downside deviation
// below a zero target. Nil when there are no downside observations: a
// series with no losses has undefined downside risk, not zero risk.
func (mc *MetricsCalculator) sortinoRatio(returns []float64, periodsPerYear float64) *decimal.Decimal {
	if len(returns) < 2 {
		return nil
	}

	var downsideSquares float64
	downsideCount := 0
	for _, r := range returns {
		if r < 0 {
			downsideSquares += r * r
			downsideCount++
		}
	}
	if downsideCount == 0 {
		return nil
	}

	downsideDeviation := math.Sqrt(downsideSquares / float64(downsideCount))
	if downsideDeviation == 0 {
		return nil
	}

	mean, err := stats.Mean(stats.Float64Data(returns))
	if err != nil {
		return nil
	}

	riskFree, _ := mc.riskFreeRate.Float64()
	riskFreePeriodic := riskFree / periodsPerYear

	return decimalPtr((mean - riskFreePeriodic) / downsideDeviation * math.Sqrt(periodsPerYear))
}

// valueAtRisk is the interpolated lower-tail percentile of the return
// distribution, reported as a positive-magnitude loss percentage. Floored at
// zero when even the lower tail gained.
func (mc *MetricsCalculator) valueAtRisk(returns []float64, confidence float64) *decimal.Decimal {
	if len(returns) < 2 {
		return nil
	}

	percentile, err := stats.Percentile(stats.Float64Data(returns), (1-confidence)*100)
	if err != nil {
		return nil
	}
	if percentile > 0 {
		return decimalPtr(0)
	}

	return decimalPtr(-percentile * 100)
}

func toFloats(values []decimal.Decimal) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i], _ = v.Float64()
	}
	return out
}

func decimalPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}
