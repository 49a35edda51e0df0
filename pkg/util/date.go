package util

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of a run date.
const DateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// Truncate returns midnight of t's calendar day in loc.
func Truncate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DayWindow returns the half open UTC interval [start, end) covering the
// calendar day of d in loc.
func DayWindow(d time.Time, loc *time.Location) (time.Time, time.Time) {
	start := Truncate(d, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}
