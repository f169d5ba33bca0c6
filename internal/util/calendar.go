package util

import "time"

// TradingDaysPerYear is the annualisation factor for daily bars.
const TradingDaysPerYear = 252

// DateLayout is the wire format for dates in requests, flags and URLs.
const DateLayout = "2006-01-02"

// Today returns the current date at midnight UTC.
func Today() time.Time {
	return TruncateDay(time.Now().UTC())
}

// TruncateDay drops the clock part of t, keeping its calendar date in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DefaultRange returns [today - lookbackDays, today], the window used when a
// caller gives no dates.
func DefaultRange(lookbackDays int) (start, end time.Time) {
	end = Today()
	return end.AddDate(0, 0, -lookbackDays), end
}

// ParseDate parses a YYYY-MM-DD string as a UTC date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
