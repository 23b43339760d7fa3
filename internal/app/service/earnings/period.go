package earnings

import "time"

// Period is a half-open [From, To) window over payment creation time.
type Period struct {
	From time.Time
	To   time.Time
}

type PeriodType string

const (
	PeriodThisWeek  PeriodType = "this_week"
	PeriodThisMonth PeriodType = "this_month"
	PeriodLastMonth PeriodType = "last_month"
)

// Periods returns the summary windows around now in now's location. Weeks
// start on Monday.
func Periods(now time.Time) map[PeriodType]Period {
	y, m, d := now.Date()
	loc := now.Location()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)

	offset := (int(today.Weekday()) + 6) % 7
	weekStart := today.AddDate(0, 0, -offset)
	monthStart := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	lastMonthStart := monthStart.AddDate(0, -1, 0)

	return map[PeriodType]Period{
		PeriodThisWeek:  {From: weekStart, To: weekStart.AddDate(0, 0, 7)},
		PeriodThisMonth: {From: monthStart, To: monthStart.AddDate(0, 1, 0)},
		PeriodLastMonth: {From: lastMonthStart, To: monthStart},
	}
}
