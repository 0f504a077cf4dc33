package calendar

import "time"

// GridStep is the granularity of the day grid. Block boundaries must land on it.
const GridStep = 15 * time.Minute

// Overlaps reports whether the half-open intervals [aStart, aEnd) and [bStart, bEnd) intersect.
// Intervals that only touch at an endpoint do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// OnGrid reports whether t sits exactly on a GridStep boundary.
func OnGrid(t time.Time) bool {
	t = t.UTC()
	return t.Second() == 0 && t.Nanosecond() == 0 && t.Minute()%int(GridStep/time.Minute) == 0
}

// Span is a worked interval. ActualEnd, when set, replaces End.
type Span struct {
	Start     time.Time
	End       time.Time
	ActualEnd *time.Time
}

// EffectiveEnd returns ActualEnd when the span was closed early, End otherwise.
func (s Span) EffectiveEnd() time.Time {
	if s.ActualEnd != nil {
		return *s.ActualEnd
	}
	return s.End
}

// Minutes returns the floored whole minutes of the span.
func (s Span) Minutes() int {
	d := s.EffectiveEnd().Sub(s.Start)
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}

// WorkedMinutes sums the floored minutes of every span.
func WorkedMinutes(spans []Span) int {
	total := 0
	for _, s := range spans {
		total += s.Minutes()
	}
	return total
}
