// Package dates provides ISO calendar-date helpers used by the availability
// and booking layers. Service dates are plain YYYY-MM-DD strings: they name a
// restaurant calendar day, not an instant, so they compare lexicographically
// and only the "today" computation needs a timezone.
package dates

import (
	"errors"
	"time"
)

// ErrInvalidDate is returned when a string is not a valid YYYY-MM-DD date.
var ErrInvalidDate = errors.New("invalid ISO date")

const isoLayout = "2006-01-02"

// Parse validates value as a strict YYYY-MM-DD calendar date and returns its
// UTC midnight representation. Dates like "2025-02-30" are rejected.
func Parse(value string) (time.Time, error) {
	t, err := time.ParseInLocation(isoLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	// time.Parse normalizes out-of-range components; round-trip to catch them.
	if t.Format(isoLayout) != value {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// Valid reports whether value is a well-formed ISO calendar date.
func Valid(value string) bool {
	_, err := Parse(value)
	return err == nil
}

// Before reports whether ISO date a falls strictly before b.
// Lexicographic comparison is exact for YYYY-MM-DD.
func Before(a, b string) bool { return a < b }

// Today returns the current calendar date in the given location as an ISO
// string. A nil location defaults to UTC.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(isoLayout)
}

// Weekday returns the weekday of an ISO date with Sunday = 0, matching the
// CLOSED_WEEKDAYS configuration convention.
func Weekday(value string) (int, error) {
	t, err := Parse(value)
	if err != nil {
		return 0, err
	}
	return int(t.Weekday()), nil
}

// ListInclusive returns every ISO date from from to to, inclusive. It returns
// an empty slice when to precedes from, and an error when either bound is
// malformed.
func ListInclusive(from, to string) ([]string, error) {
	start, err := Parse(from)
	if err != nil {
		return nil, err
	}
	end, err := Parse(to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return []string{}, nil
	}

	out := make([]string, 0, int(end.Sub(start).Hours()/24)+1)
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, 1) {
		out = append(out, cur.Format(isoLayout))
	}
	return out, nil
}
