package impact

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Localizer resolves timezone-naive wall-clock timestamps in a fixed source
// timezone.
type Localizer struct {
	loc *time.Location
}

// NewLocalizer loads the IANA timezone name (e.g. "Europe/Warsaw").
func NewLocalizer(name string) (Localizer, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Localizer{}, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return Localizer{loc: loc}, nil
}

// Location returns the source timezone, UTC for the zero Localizer.
func (l Localizer) Location() *time.Location {
	if l.loc == nil {
		return time.UTC
	}
	return l.loc
}

// ToUTC interprets the wall-clock fields of naive (its own location is
// ignored) in the source timezone and returns the UTC instant.
//
// A local time inside a spring-forward gap does not exist; it is shifted
// forward to the first instant after the gap. A local time inside a
// fall-back overlap occurs twice and cannot be resolved: ok is false and the
// caller should drop the record.
func (l Localizer) ToUTC(naive time.Time) (utc time.Time, ok bool) {
	loc := l.Location()
	wall := time.Date(naive.Year(), naive.Month(), naive.Day(),
		naive.Hour(), naive.Minute(), naive.Second(), naive.Nanosecond(), time.UTC)

	// Transitions are at least a day apart in every real zone, so the
	// offsets a day either side cover every candidate.
	_, before := wall.Add(-24 * time.Hour).In(loc).Zone()
	_, after := wall.Add(24 * time.Hour).In(loc).Zone()

	var matches []time.Time
	for _, off := range distinct(before, after) {
		u := wall.Add(-time.Duration(off) * time.Second)
		if sameWall(u.In(loc), wall) {
			matches = append(matches, u)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0].UTC(), true
	case 0:
		// In the gap: the pre-transition offset lands past the
		// transition, whose instant is the start of the new zone.
		u := wall.Add(-time.Duration(before) * time.Second)
		start, _ := u.In(loc).ZoneBounds()
		if start.IsZero() {
			return u.UTC(), true
		}
		return start.UTC(), true
	default:
		return time.Time{}, false
	}
}

func distinct(a, b int) []int {
	if a == b {
		return []int{a}
	}
	return []int{a, b}
}

func sameWall(t, wall time.Time) bool {
	return t.Year() == wall.Year() && t.Month() == wall.Month() && t.Day() == wall.Day() &&
		t.Hour() == wall.Hour() && t.Minute() == wall.Minute() && t.Second() == wall.Second() &&
		t.Nanosecond() == wall.Nanosecond()
}
