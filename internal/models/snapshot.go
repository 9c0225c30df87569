package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Snapshot is one portfolio valuation record produced by the ingestion
// pipeline. The analytics service treats snapshots as read-only input.
type Snapshot struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID     int64              `bson:"user_id" json:"user_id"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
	Interval   string             `bson:"interval" json:"interval"` // "daily", "weekly", "monthly"
	TotalValue decimal.Decimal    `bson:"total_value" json:"total_value"`
	CashValue  *decimal.Decimal   `bson:"cash_value,omitempty" json:"cash_value,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}

// Date returns the calendar date of the snapshot at UTC midnight.
func (s Snapshot) Date() time.Time {
	ts := s.Timestamp.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

// SnapshotSeries is an ordered, date-deduplicated sequence of snapshots for
// one (user, window, frequency) query. It is never mutated after Normalize.
type SnapshotSeries []Snapshot

// First returns the earliest snapshot. Callers must check Len first.
func (s SnapshotSeries) First() Snapshot { return s[0] }

// Last returns the latest snapshot. Callers must check Len first.
func (s SnapshotSeries) Last() Snapshot { return s[len(s)-1] }

// Normalize returns a copy sorted ascending by timestamp keeping the most
// recent snapshot per calendar date.
func (s SnapshotSeries) Normalize() SnapshotSeries {
	if len(s) == 0 {
		return s
	}

	sorted := make(SnapshotSeries, len(s))
	copy(sorted, s)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	deduped := make(SnapshotSeries, 0, len(sorted))
	for _, snap := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].Date().Equal(snap.Date()) {
			deduped[n-1] = snap
			continue
		}
		deduped = append(deduped, snap)
	}

	return deduped
}

// Returns computes period-over-period returns: (v[t] - v[t-1]) / v[t-1].
// Periods following a zero value are excluded rather than coerced to zero.
func (s SnapshotSeries) Returns() []decimal.Decimal {
	if len(s) < 2 {
		return nil
	}

	returns := make([]decimal.Decimal, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		prev := s[i-1].TotalValue
		if prev.IsZero() {
			continue
		}
		returns = append(returns, s[i].TotalValue.Sub(prev).Div(prev))
	}

	return returns
}

// TotalReturnPercent is the percent change from the first to the last value.
// Zero when the series has fewer than two points or starts at zero.
func (s SnapshotSeries) TotalReturnPercent() decimal.Decimal {
	if len(s) < 2 || s.First().TotalValue.IsZero() {
		return decimal.Zero
	}
	first := s.First().TotalValue
	return s.Last().TotalValue.Sub(first).Div(first).Mul(decimal.NewFromInt(100))
}

// PricePoint is one benchmark price observation.
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// PriceSeries is an ordered benchmark price series.
type PriceSeries []PricePoint

// HistoryPoint is a single point in the portfolio history time series.
type HistoryPoint struct {
	Date                  string          `json:"date"`
	TotalValue            decimal.Decimal `json:"total_value"`
	DailyChange           decimal.Decimal `json:"daily_change"`
	DailyChangePercentage decimal.Decimal `json:"daily_change_percentage"`
}

// HistoryExtreme captures a best/worst performance day.
type HistoryExtreme struct {
	Date             string          `json:"date"`
	Value            decimal.Decimal `json:"value"`
	Change           decimal.Decimal `json:"change"`
	ChangePercentage decimal.Decimal `json:"change_percentage"`
}

// HistorySummary holds summary statistics for a history window.
type HistorySummary struct {
	StartValue            decimal.Decimal `json:"start_value"`
	EndValue              decimal.Decimal `json:"end_value"`
	TotalChange           decimal.Decimal `json:"total_change"`
	TotalChangePercentage decimal.Decimal `json:"total_change_percentage"`
	BestDay               *HistoryExtreme `json:"best_day,omitempty"`
	WorstDay              *HistoryExtreme `json:"worst_day,omitempty"`
}

// ToHistoryPoints converts a series to its chartable form, carrying
// period-over-period changes.
func (s SnapshotSeries) ToHistoryPoints() []HistoryPoint {
	points := make([]HistoryPoint, 0, len(s))
	for i, snap := range s {
		point := HistoryPoint{
			Date:       snap.Date().Format("2006-01-02"),
			TotalValue: snap.TotalValue,
		}
		if i > 0 {
			prev := s[i-1].TotalValue
			point.DailyChange = snap.TotalValue.Sub(prev)
			if !prev.IsZero() {
				point.DailyChangePercentage = point.DailyChange.Div(prev).Mul(decimal.NewFromInt(100))
			}
		}
		points = append(points, point)
	}
	return points
}

// Summarize computes the history summary over the series.
func (s SnapshotSeries) Summarize() HistorySummary {
	summary := HistorySummary{}
	if len(s) == 0 {
		return summary
	}

	summary.StartValue = s.First().TotalValue
	summary.EndValue = s.Last().TotalValue
	summary.TotalChange = summary.EndValue.Sub(summary.StartValue)
	if !summary.StartValue.IsZero() {
		summary.TotalChangePercentage = summary.TotalChange.Div(summary.StartValue).Mul(decimal.NewFromInt(100))
	}

	for i := 1; i < len(s); i++ {
		prev := s[i-1].TotalValue
		if prev.IsZero() {
			continue
		}
		change := s[i].TotalValue.Sub(prev)
		pct := change.Div(prev).Mul(decimal.NewFromInt(100))
		extreme := HistoryExtreme{
			Date:             s[i].Date().Format("2006-01-02"),
			Value:            s[i].TotalValue,
			Change:           change,
			ChangePercentage: pct,
		}
		if summary.BestDay == nil || pct.GreaterThan(summary.BestDay.ChangePercentage) {
			best := extreme
			summary.BestDay = &best
		}
		if summary.WorstDay == nil || pct.LessThan(summary.WorstDay.ChangePercentage) {
			worst := extreme
			summary.WorstDay = &worst
		}
	}

	return summary
}
