package statistics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rollcall/internal/attendance/models"
)

func TestLabel(t *testing.T) {
	d := day(2024, 3, 10)
	tests := []struct {
		period models.Period
		want   string
	}{
		{models.PeriodDaily, "2024-03-10"},
		{models.PeriodWeekly, "2024-W10"},
		{models.PeriodMonthly, "2024-03"},
		{models.PeriodQuarterly, "2024-Q1"},
		{models.PeriodYearly, "2024"},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.period, d))
		})
	}

	t.Run("iso week year differs from calendar year", func(t *testing.T) {
		assert.Equal(t, "2025-W01", Label(models.PeriodWeekly, day(2024, 12, 30)))
		assert.Equal(t, "2020-W53", Label(models.PeriodWeekly, day(2021, 1, 3)))
	})
}

func TestPreviousPeriod(t *testing.T) {
	tests := []struct {
		name     string
		period   models.Period
		d        time.Time
		from, to time.Time
	}{
		{"daily", models.PeriodDaily, day(2024, 3, 1), day(2024, 2, 29), day(2024, 2, 29)},
		{"weekly from mid week", models.PeriodWeekly, day(2024, 3, 13), day(2024, 3, 4), day(2024, 3, 10)},
		{"weekly from sunday", models.PeriodWeekly, day(2024, 3, 10), day(2024, 2, 26), day(2024, 3, 3)},
		{"monthly", models.PeriodMonthly, day(2024, 3, 31), day(2024, 2, 1), day(2024, 2, 29)},
		{"quarterly", models.PeriodQuarterly, day(2024, 5, 15), day(2024, 1, 1), day(2024, 3, 31)},
		{"quarterly across year", models.PeriodQuarterly, day(2024, 2, 1), day(2023, 10, 1), day(2023, 12, 31)},
		{"yearly", models.PeriodYearly, day(2024, 7, 4), day(2023, 1, 1), day(2023, 12, 31)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := previousPeriod(tt.period, tt.d)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}
}
