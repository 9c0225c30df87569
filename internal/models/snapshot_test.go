package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(userID int64, ts time.Time, value float64) Snapshot {
	return Snapshot{
		UserID:     userID,
		Timestamp:  ts,
		Interval:   "daily",
		TotalValue: decimal.NewFromFloat(value),
	}
}

func TestSnapshotSeries_Normalize(t *testing.T) {
	day := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	t.Run("sorts ascending by timestamp", func(t *testing.T) {
		series := SnapshotSeries{
			snap(1, day.AddDate(0, 0, 2), 103000),
			snap(1, day, 100000),
			snap(1, day.AddDate(0, 0, 1), 98000),
		}

		normalized := series.Normalize()

		require.Len(t, normalized, 3)
		assert.True(t, normalized.First().TotalValue.Equal(decimal.NewFromInt(100000)))
		assert.True(t, normalized.Last().TotalValue.Equal(decimal.NewFromInt(103000)))
	})

	t.Run("keeps the most recent snapshot per calendar date", func(t *testing.T) {
		series := SnapshotSeries{
			snap(1, day.Add(9*time.Hour), 100000),
			snap(1, day.Add(17*time.Hour), 101500),
			snap(1, day.AddDate(0, 0, 1), 99000),
		}

		normalized := series.Normalize()

		require.Len(t, normalized, 2)
		assert.True(t, normalized.First().TotalValue.Equal(decimal.NewFromInt(101500)))
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		series := SnapshotSeries{
			snap(1, day.AddDate(0, 0, 1), 98000),
			snap(1, day, 100000),
		}

		_ = series.Normalize()

		assert.True(t, series[0].TotalValue.Equal(decimal.NewFromInt(98000)))
	})

	t.Run("empty series normalizes to itself", func(t *testing.T) {
		assert.Empty(t, SnapshotSeries{}.Normalize())
	})
}

func TestParseDateRange(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("dated range is inclusive of the end day", func(t *testing.T) {
		period, err := ParseDateRange("2025-02-10", "2025-02-12", now)

		require.NoError(t, err)
		assert.Equal(t, "custom", period.Label)
		assert.Equal(t, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), period.Start)
		assert.Equal(t, time.Date(2025, 2, 12, 23, 59, 59, 0, time.UTC), period.End)
	})

	t.Run("empty end runs to now", func(t *testing.T) {
		period, err := ParseDateRange("2025-02-10", "", now)

		require.NoError(t, err)
		assert.Equal(t, now, period.End)
	})

	t.Run("malformed dates are rejected", func(t *testing.T) {
		_, err := ParseDateRange("02/10/2025", "", now)
		assert.ErrorIs(t, err, ErrInvalidPeriod)

		_, err = ParseDateRange("2025-02-10", "Feb 12", now)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})

	t.Run("inverted range is rejected", func(t *testing.T) {
		_, err := ParseDateRange("2025-02-12", "2025-02-10", now)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})
}
