package statistics

import (
	"fmt"
	"time"

	"rollcall/internal/attendance/models"
)

// Label returns the bucket label of day d for period p:
//
//	DAILY      2024-03-10
//	WEEKLY     2024-W10 (ISO week-numbering year)
//	MONTHLY    2024-03
//	QUARTERLY  2024-Q1
//	YEARLY     2024
func Label(p models.Period, d time.Time) string {
	switch p {
	case models.PeriodWeekly:
		y, w := d.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	case models.PeriodMonthly:
		return d.Format("2006-01")
	case models.PeriodQuarterly:
		return fmt.Sprintf("%04d-Q%d", d.Year(), quarter(d))
	case models.PeriodYearly:
		return fmt.Sprintf("%04d", d.Year())
	default:
		return d.Format(models.DateLayout)
	}
}

func quarter(d time.Time) int {
	return (int(d.Month())-1)/3 + 1
}

// periodStart returns the first day of the period containing d.
func periodStart(p models.Period, d time.Time) time.Time {
	d = models.DateOnly(d)
	switch p {
	case models.PeriodWeekly:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case models.PeriodMonthly:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	case models.PeriodQuarterly:
		first := time.Month((quarter(d)-1)*3 + 1)
		return time.Date(d.Year(), first, 1, 0, 0, 0, 0, time.UTC)
	case models.PeriodYearly:
		return time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

// previousPeriod returns the full period immediately before the one that
// contains d, as an inclusive day range.
func previousPeriod(p models.Period, d time.Time) (from, to time.Time) {
	start := periodStart(p, d)
	switch p {
	case models.PeriodWeekly:
		from = start.AddDate(0, 0, -7)
	case models.PeriodMonthly:
		from = start.AddDate(0, -1, 0)
	case models.PeriodQuarterly:
		from = start.AddDate(0, -3, 0)
	case models.PeriodYearly:
		from = start.AddDate(-1, 0, 0)
	default:
		from = start.AddDate(0, 0, -1)
	}
	return from, start.AddDate(0, 0, -1)
}
