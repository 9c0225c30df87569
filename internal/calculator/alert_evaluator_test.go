package calculator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carmandale/AIMS-sub000/internal/models"
)

func TestAlertEvaluator_Evaluate(t *testing.T) {
	evaluator := NewAlertEvaluator()
	defaults := models.DefaultAlertThresholds()

	t.Run("below every threshold triggers nothing", func(t *testing.T) {
		triggered := evaluator.Evaluate(decimal.NewFromFloat(14.9), defaults)
		assert.Empty(t, triggered)
	})

	t.Run("comparison is inclusive at the boundary", func(t *testing.T) {
		triggered := evaluator.Evaluate(decimal.NewFromInt(15), defaults)

		require.Len(t, triggered, 1)
		assert.Equal(t, "warning", triggered[0].Severity)
		assert.True(t, triggered[0].Margin.IsZero())
	})

	t.Run("higher threshold implies lower ones, ordered high to low", func(t *testing.T) {
		triggered := evaluator.Evaluate(decimal.NewFromFloat(22.2), defaults)

		require.Len(t, triggered, 2)
		assert.Equal(t, "critical", triggered[0].Severity)
		assert.Equal(t, "warning", triggered[1].Severity)
		assert.True(t, triggered[0].Margin.Equal(decimal.NewFromFloat(2.2)))
		assert.True(t, triggered[1].Margin.Equal(decimal.NewFromFloat(7.2)))
	})

	t.Run("deep drawdown triggers every severity", func(t *testing.T) {
		triggered := evaluator.Evaluate(decimal.NewFromInt(25), defaults)

		require.Len(t, triggered, 3)
		assert.Equal(t, "emergency", triggered[0].Severity)
		assert.Equal(t, "critical", triggered[1].Severity)
		assert.Equal(t, "warning", triggered[2].Severity)
	})
}

func TestAlertThresholdConfig(t *testing.T) {
	t.Run("thresholds must strictly increase", func(t *testing.T) {
		_, err := models.NewAlertThresholdConfig([]models.AlertThreshold{
			{Severity: "warning", Threshold: decimal.NewFromInt(20)},
			{Severity: "critical", Threshold: decimal.NewFromInt(20)},
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrConfiguration)
	})

	t.Run("empty config is rejected", func(t *testing.T) {
		_, err := models.NewAlertThresholdConfig(nil)
		assert.ErrorIs(t, err, models.ErrConfiguration)
	})

	t.Run("threshold string parses in order", func(t *testing.T) {
		config, err := models.ParseAlertThresholds("warning:15,critical:20,emergency:25")
		require.NoError(t, err)

		thresholds := config.Thresholds()
		require.Len(t, thresholds, 3)
		assert.Equal(t, "warning", thresholds[0].Severity)
		assert.True(t, thresholds[2].Threshold.Equal(decimal.NewFromInt(25)))
	})

	t.Run("malformed threshold string is rejected", func(t *testing.T) {
		_, err := models.ParseAlertThresholds("warning=15")
		assert.ErrorIs(t, err, models.ErrConfiguration)

		_, err = models.ParseAlertThresholds("warning:abc")
		assert.ErrorIs(t, err, models.ErrConfiguration)
	})
}
