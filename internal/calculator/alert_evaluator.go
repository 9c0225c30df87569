package calculator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/carmandale/AIMS-sub000/internal/models"
)

// AlertEvaluator classifies a current drawdown value against an ordered
// severity ladder.
type AlertEvaluator struct{}

// NewAlertEvaluator creates an evaluator.
func NewAlertEvaluator() *AlertEvaluator {
	return &AlertEvaluator{}
}

// Evaluate returns the triggered severities ordered highest to lowest.
// Comparison is inclusive: a drawdown equal to a threshold triggers it, and
// exceeding a higher threshold reports every lower one as well.
func (ae *AlertEvaluator) Evaluate(currentDrawdown decimal.Decimal, config models.AlertThresholdConfig) []models.TriggeredAlert {
	return ae.evaluateAt(currentDrawdown, config, time.Now().UTC())
}

func (ae *AlertEvaluator) evaluateAt(currentDrawdown decimal.Decimal, config models.AlertThresholdConfig, now time.Time) []models.TriggeredAlert {
	thresholds := config.Thresholds()
	triggered := make([]models.TriggeredAlert, 0, len(thresholds))

	for i := len(thresholds) - 1; i >= 0; i-- {
		threshold := thresholds[i]
		if currentDrawdown.GreaterThanOrEqual(threshold.Threshold) {
			triggered = append(triggered, models.TriggeredAlert{
				Severity:    threshold.Severity,
				Threshold:   threshold.Threshold,
				Value:       currentDrawdown,
				Margin:      currentDrawdown.Sub(threshold.Threshold),
				EvaluatedAt: now,
			})
		}
	}

	return triggered
}
