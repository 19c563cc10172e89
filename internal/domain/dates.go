package domain

import "time"

// DateFormat is the canonical day-granularity date format used in storage.
const DateFormat = "2006-01-02"

// Day truncates a time to its calendar day in the time's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayKey formats a time as its canonical day string.
func DayKey(t time.Time) string {
	return t.Format(DateFormat)
}

// ParseDay parses a canonical day string into a UTC-midnight time.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateFormat, s)
}

// IsWeekend reports whether the date falls on Saturday or Sunday.
// Weekends are evaluated in the date's own location (the user's calendar).
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
