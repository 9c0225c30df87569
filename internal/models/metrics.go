package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskMetrics is the aggregate return/risk statistics for a series.
//
// Nullable fields are pointers on purpose: a series with no losses has an
// undefined Sortino ratio, which is not the same thing as zero downside
// risk. Absent fields are omitted from JSON rather than rendered as 0.
type RiskMetrics struct {
	TotalReturnPercentage decimal.Decimal `json:"total_return_percentage"`

	Volatility    *decimal.Decimal `json:"volatility,omitempty"`
	SharpeRatio   *decimal.Decimal `json:"sharpe_ratio,omitempty"`
	SortinoRatio  *decimal.Decimal `json:"sortino_ratio,omitempty"`
	ValueAtRisk95 *decimal.Decimal `json:"value_at_risk_95,omitempty"`
	Beta          *decimal.Decimal `json:"beta,omitempty"`

	// MaxDrawdown is reported as a positive-magnitude loss percentage.
	MaxDrawdown       decimal.Decimal `json:"max_drawdown_percent"`
	MaxDrawdownWindow *DrawdownWindow `json:"max_drawdown_window,omitempty"`
}

// BenchmarkComparison describes relative performance against a benchmark
// over the aligned window.
type BenchmarkComparison struct {
	Symbol              string          `json:"symbol"`
	PortfolioReturn     decimal.Decimal `json:"portfolio_return_percentage"`
	BenchmarkReturn     decimal.Decimal `json:"benchmark_return_percentage"`
	RelativePerformance decimal.Decimal `json:"relative_performance"`
	Outperformed        bool            `json:"outperformed"`
}

// MetricsResponse is the get_metrics payload.
type MetricsResponse struct {
	UserID     int64                `json:"user_id"`
	Period     Period               `json:"period"`
	Frequency  Frequency            `json:"frequency"`
	Metrics    RiskMetrics          `json:"metrics"`
	TimeSeries []HistoryPoint       `json:"time_series"`
	Benchmark  *BenchmarkComparison `json:"benchmark,omitempty"`
	ComputedAt time.Time            `json:"computed_at"`
}

// HistoryResponse is the get_historical payload.
type HistoryResponse struct {
	UserID     int64          `json:"user_id"`
	Period     Period         `json:"period"`
	Frequency  Frequency      `json:"frequency"`
	TimeSeries []HistoryPoint `json:"time_series"`
	Summary    HistorySummary `json:"summary"`
}
