package models

import (
	"fmt"
	"strings"
	"time"
)

// Frequency is the sampling interval of a snapshot series.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency validates a frequency string.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(strings.ToLower(s)) {
	case FrequencyDaily:
		return FrequencyDaily, nil
	case FrequencyWeekly:
		return FrequencyWeekly, nil
	case FrequencyMonthly:
		return FrequencyMonthly, nil
	default:
		return "", fmt.Errorf("%w: unsupported frequency %q", ErrInvalidPeriod, s)
	}
}

// PeriodsPerYear returns the annualization factor for the frequency.
func (f Frequency) PeriodsPerYear() int {
	switch f {
	case FrequencyWeekly:
		return 52
	case FrequencyMonthly:
		return 12
	default:
		return 252
	}
}

// Period is a resolved analysis window.
type Period struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParsePeriod resolves a period alias into a window ending at now.
// Supported aliases: 7d, 30d, 90d, 180d, 1y, ytd, all.
func ParsePeriod(label string, now time.Time) (Period, error) {
	end := now
	var start time.Time

	switch strings.ToLower(label) {
	case "7d":
		start = end.AddDate(0, 0, -7)
	case "30d":
		start = end.AddDate(0, 0, -30)
	case "90d":
		start = end.AddDate(0, 0, -90)
	case "180d":
		start = end.AddDate(0, 0, -180)
	case "1y":
		start = end.AddDate(-1, 0, 0)
	case "ytd":
		start = time.Date(end.Year(), time.January, 1, 0, 0, 0, 0, end.Location())
	case "all":
		start = time.Time{}
	default:
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
	}

	return Period{Label: strings.ToLower(label), Start: start, End: end}, nil
}

// ParseDateRange resolves an explicit start/end window. Dates use the
// 2006-01-02 form; an empty end means now, and a dated end is inclusive of
// its whole day.
func ParseDateRange(start, end string, now time.Time) (Period, error) {
	startDate, err := time.Parse("2006-01-02", start)
	if err != nil {
		return Period{}, fmt.Errorf("%w: start date %q, want YYYY-MM-DD", ErrInvalidPeriod, start)
	}

	endDate := now
	if end != "" {
		parsed, err := time.Parse("2006-01-02", end)
		if err != nil {
			return Period{}, fmt.Errorf("%w: end date %q, want YYYY-MM-DD", ErrInvalidPeriod, end)
		}
		endDate = parsed.AddDate(0, 0, 1).Add(-time.Second)
	}

	if startDate.After(endDate) {
		return Period{}, fmt.Errorf("%w: start %s falls after end %s", ErrInvalidPeriod, start, end)
	}

	return Period{Label: "custom", Start: startDate, End: endDate}, nil
}
