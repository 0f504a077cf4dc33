// Package calendar holds the interval arithmetic behind the day grid:
// local-day windows, overlap checks and worked-time totals.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of a calendar date.
const DateLayout = "2006-01-02"

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// Window is a half-open UTC range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns the window length. Local days across a DST change are 23 or 25 hours.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Intersects reports whether [start, end) shares at least one instant with the window.
// It covers blocks starting inside, ending inside or spanning the whole window.
func (w Window) Intersects(start, end time.Time) bool {
	return Overlaps(w.Start, w.End, start, end)
}

// LoadLocation resolves an IANA zone name. An empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}

// ParseDate parses a YYYY-MM-DD string into its calendar components.
func ParseDate(raw string) (year int, month time.Month, day int, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0, 0, fmt.Errorf("%w: date is required", ErrInvalidDate)
	}
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w %q, expected YYYY-MM-DD", ErrInvalidDate, raw)
	}
	year, month, day = d.Date()
	return year, month, day, nil
}

// DayWindow returns the UTC range covering local midnight to local midnight of date in tz.
func DayWindow(date, tz string) (Window, error) {
	year, month, day, err := ParseDate(date)
	if err != nil {
		return Window{}, err
	}
	loc, err := LoadLocation(tz)
	if err != nil {
		return Window{}, err
	}
	return dayWindowIn(year, month, day, loc), nil
}

// DayWindowAt returns the window of the local day that contains t in loc.
func DayWindowAt(t time.Time, loc *time.Location) Window {
	year, month, day := t.In(loc).Date()
	return dayWindowIn(year, month, day, loc)
}

func dayWindowIn(year int, month time.Month, day int, loc *time.Location) Window {
	// time.Date normalises day+1 across month and year ends.
	start := time.Date(year, month, day, 0, 0, 0, 0, loc)
	end := time.Date(year, month, day+1, 0, 0, 0, 0, loc)
	return Window{Start: start.UTC(), End: end.UTC()}
}
