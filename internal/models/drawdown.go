package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DrawdownEvent is one peak-to-trough-to-recovery episode. RecoveryDate is
// nil while the episode is still open; at most one open event exists per
// series and it is always the most recent.
type DrawdownEvent struct {
	StartDate    time.Time       `json:"start_date"`
	PeakValue    decimal.Decimal `json:"peak_value"`
	TroughDate   time.Time       `json:"trough_date"`
	TroughValue  decimal.Decimal `json:"trough_value"`
	MaxDrawdown  decimal.Decimal `json:"max_drawdown_percent"`
	RecoveryDate *time.Time      `json:"recovery_date,omitempty"`
	DurationDays int             `json:"duration_days"`
	RecoveryDays *int            `json:"recovery_days,omitempty"`
}

// IsOpen reports whether the event has not yet recovered.
func (e DrawdownEvent) IsOpen() bool { return e.RecoveryDate == nil }

// CurrentDrawdownState describes where the portfolio sits relative to its
// high-water mark at the end of a series.
type CurrentDrawdownState struct {
	HighWaterMark     decimal.Decimal `json:"high_water_mark"`
	HighWaterMarkDate time.Time       `json:"high_water_mark_date"`
	CurrentValue      decimal.Decimal `json:"current_value"`
	CurrentDrawdown   decimal.Decimal `json:"current_drawdown_percent"`
	DaysInDrawdown    int             `json:"days_in_drawdown"`
}

// UnderwaterPoint is one point on the underwater curve: the drawdown percent
// below the running high-water mark at a given date.
type UnderwaterPoint struct {
	Date     string          `json:"date"`
	Drawdown decimal.Decimal `json:"drawdown_percent"`
}

// DrawdownStatistics aggregates the episodes of a series.
type DrawdownStatistics struct {
	MaxDrawdown     decimal.Decimal  `json:"max_drawdown_percent"`
	AverageDrawdown decimal.Decimal  `json:"average_drawdown_percent"`
	EventCount      int              `json:"event_count"`
	AverageRecovery *decimal.Decimal `json:"average_recovery_days,omitempty"`
}

// DrawdownAnalysis is the full get_drawdown_analysis payload.
type DrawdownAnalysis struct {
	Current         CurrentDrawdownState `json:"current"`
	Events          []DrawdownEvent      `json:"events"`
	UnderwaterCurve []UnderwaterPoint    `json:"underwater_curve"`
	Statistics      DrawdownStatistics   `json:"statistics"`
}

// DrawdownEventsResponse is the get_drawdown_events payload.
type DrawdownEventsResponse struct {
	UserID int64           `json:"user_id"`
	Period Period          `json:"period"`
	Events []DrawdownEvent `json:"events"`
}

// CurrentDrawdownResponse is the get_current_drawdown payload.
type CurrentDrawdownResponse struct {
	UserID int64                `json:"user_id"`
	State  CurrentDrawdownState `json:"state"`
	AsOf   time.Time            `json:"as_of"`
}

// DrawdownWindow locates the deepest drawdown inside RiskMetrics.
type DrawdownWindow struct {
	Start    time.Time  `json:"start"`
	Trough   time.Time  `json:"trough"`
	Recovery *time.Time `json:"recovery,omitempty"`
}
