package utils

import "time"

const DateLayout = "2006-01-02"

// Day drops the time of day. The calendar date is taken in t's own location
// and returned as UTC midnight so days can be compared and used as map keys.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the inclusive number of calendar days in [from, to], or 0 if to is before from.
func DaysBetween(from, to time.Time) int {
	from, to = Day(from), Day(to)
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours()/24) + 1
}

func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
