package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AlertThreshold pairs a severity label with the drawdown percentage at
// which it triggers.
type AlertThreshold struct {
	Severity  string          `json:"severity"`
	Threshold decimal.Decimal `json:"threshold_percent"`
}

// AlertThresholdConfig is a validated, immutable ordered list of thresholds,
// strictly increasing by threshold value.
type AlertThresholdConfig struct {
	thresholds []AlertThreshold
}

// NewAlertThresholdConfig validates and builds a threshold configuration.
// Thresholds must be non-empty, labeled, positive and strictly increasing.
func NewAlertThresholdConfig(thresholds []AlertThreshold) (AlertThresholdConfig, error) {
	if len(thresholds) == 0 {
		return AlertThresholdConfig{}, fmt.Errorf("%w: at least one alert threshold is required", ErrConfiguration)
	}

	for i, t := range thresholds {
		if t.Severity == "" {
			return AlertThresholdConfig{}, fmt.Errorf("%w: threshold %d is missing a severity label", ErrConfiguration, i)
		}
		if !t.Threshold.IsPositive() {
			return AlertThresholdConfig{}, fmt.Errorf("%w: threshold %q must be positive, got %s", ErrConfiguration, t.Severity, t.Threshold)
		}
		if i > 0 && !t.Threshold.GreaterThan(thresholds[i-1].Threshold) {
			return AlertThresholdConfig{}, fmt.Errorf("%w: thresholds must be strictly increasing (%q %s does not exceed %q %s)",
				ErrConfiguration, t.Severity, t.Threshold, thresholds[i-1].Severity, thresholds[i-1].Threshold)
		}
	}

	owned := make([]AlertThreshold, len(thresholds))
	copy(owned, thresholds)
	return AlertThresholdConfig{thresholds: owned}, nil
}

// ParseAlertThresholds parses a "warning:15,critical:20,emergency:25" string.
func ParseAlertThresholds(s string) (AlertThresholdConfig, error) {
	parts := strings.Split(s, ",")
	thresholds := make([]AlertThreshold, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pieces := strings.SplitN(part, ":", 2)
		if len(pieces) != 2 {
			return AlertThresholdConfig{}, fmt.Errorf("%w: malformed threshold %q, want label:percent", ErrConfiguration, part)
		}
		value, err := decimal.NewFromString(strings.TrimSpace(pieces[1]))
		if err != nil {
			return AlertThresholdConfig{}, fmt.Errorf("%w: threshold %q has a non-numeric value", ErrConfiguration, part)
		}
		thresholds = append(thresholds, AlertThreshold{
			Severity:  strings.ToLower(strings.TrimSpace(pieces[0])),
			Threshold: value,
		})
	}

	return NewAlertThresholdConfig(thresholds)
}

// DefaultAlertThresholds returns the standard warning/critical/emergency
// ladder at 15/20/25 percent.
func DefaultAlertThresholds() AlertThresholdConfig {
	cfg, err := NewAlertThresholdConfig([]AlertThreshold{
		{Severity: "warning", Threshold: decimal.NewFromInt(15)},
		{Severity: "critical", Threshold: decimal.NewFromInt(20)},
		{Severity: "emergency", Threshold: decimal.NewFromInt(25)},
	})
	if err != nil {
		panic(err)
	}
	return cfg
}

// Thresholds returns the ordered thresholds, lowest first.
func (c AlertThresholdConfig) Thresholds() []AlertThreshold {
	out := make([]AlertThreshold, len(c.thresholds))
	copy(out, c.thresholds)
	return out
}

// IsZero reports whether the config holds no thresholds.
func (c AlertThresholdConfig) IsZero() bool { return len(c.thresholds) == 0 }

// TriggeredAlert records one severity whose threshold the current drawdown
// meets or exceeds, with the margin by which it was exceeded.
type TriggeredAlert struct {
	Severity    string          `json:"severity"`
	Threshold   decimal.Decimal `json:"threshold_percent"`
	Value       decimal.Decimal `json:"drawdown_percent"`
	Margin      decimal.Decimal `json:"margin_percent"`
	EvaluatedAt time.Time       `json:"evaluated_at"`
}

// AlertsResponse is the get_alerts payload.
type AlertsResponse struct {
	UserID          int64            `json:"user_id"`
	CurrentDrawdown decimal.Decimal  `json:"current_drawdown_percent"`
	Alerts          []TriggeredAlert `json:"alerts"`
	EvaluatedAt     time.Time        `json:"evaluated_at"`
}
