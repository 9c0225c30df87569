package calculator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/carmandale/AIMS-sub000/internal/models"
)

// DrawdownEngine detects and characterizes drawdown episodes over a
// snapshot series. Analyze is a pure single pass; the engine holds no
// per-request state.
type DrawdownEngine struct {
	materialityThreshold decimal.Decimal // percent; events below it are filtered from history
}

// DrawdownEngineConfig configures the engine.
type DrawdownEngineConfig struct {
	MaterialityThresholdPercent float64 `json:"materiality_threshold_percent"`
}

// NewDrawdownEngine creates a drawdown engine.
func NewDrawdownEngine(config DrawdownEngineConfig) *DrawdownEngine {
	return &DrawdownEngine{
		materialityThreshold: decimal.NewFromFloat(config.MaterialityThresholdPercent),
	}
}

// DrawdownResult is the outcome of one pass over a series. Events holds
// every episode in chronological order, the last one possibly still open.
type DrawdownResult struct {
	Events     []models.DrawdownEvent
	Current    models.CurrentDrawdownState
	Underwater []models.UnderwaterPoint
}

var hundred = decimal.NewFromInt(100)

// Analyze folds over the series in chronological order tracking the running
// high-water mark. An episode opens when the value falls strictly below the
// mark and closes when it reaches or exceeds it again. If the series ends
// mid-episode the open event is returned with a nil recovery date.
func (de *DrawdownEngine) Analyze(series models.SnapshotSeries) *DrawdownResult {
	result := &DrawdownResult{
		Events:     []models.DrawdownEvent{},
		Underwater: make([]models.UnderwaterPoint, 0, len(series)),
	}
	if len(series) == 0 {
		return result
	}

	first := series.First()
	highWaterMark := first.TotalValue
	highWaterMarkDate := first.Date()
	var open *models.DrawdownEvent

	for _, snap := range series {
		value := snap.TotalValue
		date := snap.Date()

		switch {
		case open == nil && value.LessThan(highWaterMark):
			// AT_OR_ABOVE_HIGH -> IN_DRAWDOWN
			open = &models.DrawdownEvent{
				StartDate:   highWaterMarkDate,
				PeakValue:   highWaterMark,
				TroughDate:  date,
				TroughValue: value,
				MaxDrawdown: drawdownPercent(highWaterMark, value),
			}

		case open != nil && value.LessThan(highWaterMark):
			if value.LessThan(open.TroughValue) {
				open.TroughValue = value
				open.TroughDate = date
				if dd := drawdownPercent(highWaterMark, value); dd.GreaterThan(open.MaxDrawdown) {
					open.MaxDrawdown = dd
				}
			}

		case open != nil:
			// IN_DRAWDOWN -> AT_OR_ABOVE_HIGH
			recovery := date
			recoveryDays := calendarDays(open.TroughDate, recovery)
			open.RecoveryDate = &recovery
			open.RecoveryDays = &recoveryDays
			open.DurationDays = calendarDays(open.StartDate, recovery)
			result.Events = append(result.Events, *open)
			open = nil
			highWaterMark = value
			highWaterMarkDate = date

		default:
			if value.GreaterThan(highWaterMark) {
				highWaterMark = value
				highWaterMarkDate = date
			}
		}

		result.Underwater = append(result.Underwater, models.UnderwaterPoint{
			Date:     date.Format("2006-01-02"),
			Drawdown: drawdownPercent(highWaterMark, value),
		})
	}

	last := series.Last()
	current := models.CurrentDrawdownState{
		HighWaterMark:     highWaterMark,
		HighWaterMarkDate: highWaterMarkDate,
		CurrentValue:      last.TotalValue,
	}

	if open != nil {
		open.DurationDays = calendarDays(open.StartDate, last.Date())
		result.Events = append(result.Events, *open)
		current.CurrentDrawdown = drawdownPercent(highWaterMark, last.TotalValue)
		current.DaysInDrawdown = calendarDays(highWaterMarkDate, last.Date())
	}

	result.Current = current
	return result
}

// FilterMaterial drops events whose depth is below the given magnitude
// (percent). A nil minimum applies the engine's configured default. Filtered
// events still contribute to the underwater curve.
func (de *DrawdownEngine) FilterMaterial(events []models.DrawdownEvent, minMagnitude *decimal.Decimal) []models.DrawdownEvent {
	threshold := de.materialityThreshold
	if minMagnitude != nil {
		threshold = *minMagnitude
	}

	filtered := make([]models.DrawdownEvent, 0, len(events))
	for _, event := range events {
		if event.MaxDrawdown.GreaterThanOrEqual(threshold) {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

// MaxEvent returns the deepest event, or nil when there are none.
func (r *DrawdownResult) MaxEvent() *models.DrawdownEvent {
	var deepest *models.DrawdownEvent
	for i := range r.Events {
		if deepest == nil || r.Events[i].MaxDrawdown.GreaterThan(deepest.MaxDrawdown) {
			deepest = &r.Events[i]
		}
	}
	return deepest
}

// Statistics aggregates the unfiltered event list.
func (r *DrawdownResult) Statistics() models.DrawdownStatistics {
	statistics := models.DrawdownStatistics{EventCount: len(r.Events)}
	if len(r.Events) == 0 {
		return statistics
	}

	sum := decimal.Zero
	recoverySum := 0
	recovered := 0
	for _, event := range r.Events {
		sum = sum.Add(event.MaxDrawdown)
		if event.MaxDrawdown.GreaterThan(statistics.MaxDrawdown) {
			statistics.MaxDrawdown = event.MaxDrawdown
		}
		if event.RecoveryDays != nil {
			recoverySum += *event.RecoveryDays
			recovered++
		}
	}

	statistics.AverageDrawdown = sum.Div(decimal.NewFromInt(int64(len(r.Events))))
	if recovered > 0 {
		avg := decimal.NewFromInt(int64(recoverySum)).Div(decimal.NewFromInt(int64(recovered)))
		statistics.AverageRecovery = &avg
	}

	return statistics
}

// drawdownPercent is max(0, (peak - value) / peak) * 100.
func drawdownPercent(peak, value decimal.Decimal) decimal.Decimal {
	if peak.IsZero() || value.GreaterThanOrEqual(peak) {
		return decimal.Zero
	}
	return peak.Sub(value).Div(peak).Mul(hundred)
}

// calendarDays counts whole days between two dates.
func calendarDays(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
