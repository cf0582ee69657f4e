// Package timeutil provides calendar-day utilities bound to a configured timezone.
// Streaks are computed on calendar dates in that zone, never on elapsed hours.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage layout of a calendar date.
const DateLayout = "2006-01-02"

// Clock abstracts the current time so calendar logic is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.T }

// LoadLocation resolves an IANA zone name. An empty or unknown name falls back to UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, fmt.Errorf("timeutil: load location %q: %w", name, err)
	}
	return loc, nil
}

// Calendar answers calendar-day questions in a single timezone.
type Calendar struct {
	loc   *time.Location
	clock Clock
}

// NewCalendar creates a calendar for the given location and clock.
// Nil arguments default to UTC and the system clock.
func NewCalendar(loc *time.Location, clock Clock) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Calendar{loc: loc, clock: clock}
}

// Location returns the calendar timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Now returns the current instant in the calendar timezone.
func (c *Calendar) Now() time.Time {
	return c.clock.Now().In(c.loc)
}

// DateOf returns the calendar date of t in the calendar timezone,
// represented as midnight UTC of that date.
func (c *Calendar) DateOf(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date.
func (c *Calendar) Today() time.Time {
	return c.DateOf(c.clock.Now())
}

// Yesterday returns the calendar date before Today.
func (c *Calendar) Yesterday() time.Time {
	return c.Today().AddDate(0, 0, -1)
}

// IsSameDay reports whether two date values fall on the same calendar date.
// Both must already be date values as produced by DateOf.
func IsSameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DaysBetween returns the whole number of calendar days from a to b.
// Both must be date values as produced by DateOf.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// FormatDate renders a date value as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD into a date value.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: parse date %q: %w", s, err)
	}
	return d, nil
}

// HumanDate formats a time like "19 Oct 2026" in the given location.
func HumanDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2 Jan 2006")
}
