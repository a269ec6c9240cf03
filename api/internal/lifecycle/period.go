package lifecycle

import "time"

// Period is a half-open [Start, End) window.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func MonthRange(t time.Time) Period {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

func QuarterRange(t time.Time) Period {
	firstMonth := time.Month((int(t.Month())-1)/3*3 + 1)
	start := time.Date(t.Year(), firstMonth, 1, 0, 0, 0, 0, t.Location())
	return Period{Start: start, End: start.AddDate(0, 3, 0)}
}

// WeekRange starts weeks on Monday.
func WeekRange(t time.Time) Period {
	offset := (int(t.Weekday()) + 6) % 7
	start := startOfDay(t).AddDate(0, 0, -offset)
	return Period{Start: start, End: start.AddDate(0, 0, 7)}
}

// DaysBetween counts calendar days from a to b, negative when b is before a.
func DaysBetween(a time.Time, b time.Time) int {
	b = b.In(a.Location())
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

// AddInterval adds years and months, clamping the day to the end of the target month
// so Jan 31 + 1 month lands on the last day of February instead of rolling into March.
func AddInterval(t time.Time, years int, months int) time.Time {
	total := int(t.Month()) - 1 + months + years*12
	year := t.Year() + floorDiv(total, 12)
	month := time.Month(total - floorDiv(total, 12)*12 + 1)
	day := t.Day()
	if last := daysIn(year, month, t.Location()); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func floorDiv(a int, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
