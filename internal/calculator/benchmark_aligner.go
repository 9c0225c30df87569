package calculator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/carmandale/AIMS-sub000/internal/models"
)

// BenchmarkAligner date-aligns a portfolio series with a benchmark price
// series and computes relative performance over the aligned window.
type BenchmarkAligner struct{}

// NewBenchmarkAligner creates an aligner.
func NewBenchmarkAligner() *BenchmarkAligner {
	return &BenchmarkAligner{}
}

// AlignedPair holds the two series joined on portfolio dates.
type AlignedPair struct {
	Dates           []time.Time
	PortfolioValues []decimal.Decimal
	BenchmarkValues []decimal.Decimal
}

// Align joins the series by calendar date. A benchmark observation missing
// for a portfolio date is carried forward from the most recent prior
// observation; portfolio dates before the first benchmark observation are
// excluded from both sides.
func (ba *BenchmarkAligner) Align(portfolio models.SnapshotSeries, benchmark models.PriceSeries) *AlignedPair {
	pair := &AlignedPair{}
	if len(portfolio) == 0 || len(benchmark) == 0 {
		return pair
	}

	benchIdx := 0
	var carried decimal.Decimal
	haveCarried := false

	for _, snap := range portfolio {
		date := snap.Date()
		for benchIdx < len(benchmark) && !dateOf(benchmark[benchIdx].Date).After(date) {
			carried = benchmark[benchIdx].Price
			haveCarried = true
			benchIdx++
		}
		if !haveCarried {
			continue
		}

		pair.Dates = append(pair.Dates, date)
		pair.PortfolioValues = append(pair.PortfolioValues, snap.TotalValue)
		pair.BenchmarkValues = append(pair.BenchmarkValues, carried)
	}

	return pair
}

// Len returns the number of aligned points.
func (p *AlignedPair) Len() int { return len(p.Dates) }

// Returns computes parallel period-over-period return series for beta.
// Points following a zero value on either side are skipped on both sides to
// keep the series aligned.
func (p *AlignedPair) Returns() (portfolio, benchmark []decimal.Decimal) {
	for i := 1; i < p.Len(); i++ {
		prevPortfolio := p.PortfolioValues[i-1]
		prevBenchmark := p.BenchmarkValues[i-1]
		if prevPortfolio.IsZero() || prevBenchmark.IsZero() {
			continue
		}
		portfolio = append(portfolio, p.PortfolioValues[i].Sub(prevPortfolio).Div(prevPortfolio))
		benchmark = append(benchmark, p.BenchmarkValues[i].Sub(prevBenchmark).Div(prevBenchmark))
	}
	return portfolio, benchmark
}

// Compare computes the benchmark comparison over the aligned window:
// relative performance is the portfolio's total return minus the
// benchmark's.
func (p *AlignedPair) Compare(symbol string) *models.BenchmarkComparison {
	comparison := &models.BenchmarkComparison{Symbol: symbol}
	if p.Len() < 2 {
		return comparison
	}

	comparison.PortfolioReturn = totalReturnPercent(p.PortfolioValues)
	comparison.BenchmarkReturn = totalReturnPercent(p.BenchmarkValues)
	comparison.RelativePerformance = comparison.PortfolioReturn.Sub(comparison.BenchmarkReturn)
	comparison.Outperformed = comparison.RelativePerformance.IsPositive()
	return comparison
}

func totalReturnPercent(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 || values[0].IsZero() {
		return decimal.Zero
	}
	first := values[0]
	return values[len(values)-1].Sub(first).Div(first).Mul(hundred)
}

func dateOf(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
