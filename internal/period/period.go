// Package period maps reporting instants onto the calendar-aligned
// time windows that key usage counters.
package period

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a counter granularity.
type Kind string

const (
	Minute   Kind = "minute"
	Hour     Kind = "hour"
	Day      Kind = "day"
	Week     Kind = "week"
	Month    Kind = "month"
	Year     Kind = "year"
	Eternity Kind = "eternity"
)

// Kinds lists every granularity, finest first. Accounting increments
// all of them; authorization only reads the ones with configured limits.
var Kinds = []Kind{Minute, Hour, Day, Week, Month, Year, Eternity}

// EternityLabel is the single bucket label shared by all eternity counters.
const EternityLabel = "eternity"

// ParseKind normalizes a granularity name.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case Minute:
		return Minute, nil
	case Hour:
		return Hour, nil
	case Day:
		return Day, nil
	case Week:
		return Week, nil
	case Month:
		return Month, nil
	case Year:
		return Year, nil
	case Eternity:
		return Eternity, nil
	default:
		return "", fmt.Errorf("unknown period kind %q", raw)
	}
}

// Valid reports whether k is one of the supported granularities.
func (k Kind) Valid() bool {
	_, err := ParseKind(string(k))
	return err == nil
}

// Window is the half-open interval [Start, End) holding an instant at a
// given granularity. Eternity windows are unbounded: Start and End are
// zero and Bounded reports false.
type Window struct {
	Kind  Kind
	Start time.Time
	End   time.Time
	Label string
}

// Bounded reports whether the window has calendar bounds.
func (w Window) Bounded() bool {
	return w.Kind != Eternity
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Bounded() {
		return true
	}
	t = t.UTC()
	return !t.Before(w.Start) && t.Before(w.End)
}

// For computes the window of the given kind containing at. Boundaries are
// UTC-aligned: days start at 00:00 UTC, weeks on Monday, months on the
// 1st, years on Jan 1. Deterministic for any (kind, at) pair.
func For(kind Kind, at time.Time) Window {
	t := at.UTC()

	switch kind {
	case Minute:
		start := t.Truncate(time.Minute)
		return bounded(kind, start, start.Add(time.Minute), start.Format("200601021504"))
	case Hour:
		start := t.Truncate(time.Hour)
		return bounded(kind, start, start.Add(time.Hour), start.Format("2006010215"))
	case Day:
		start := dayStart(t)
		return bounded(kind, start, start.AddDate(0, 0, 1), start.Format("20060102"))
	case Week:
		start := weekStart(t)
		return bounded(kind, start, start.AddDate(0, 0, 7), start.Format("20060102"))
	case Month:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return bounded(kind, start, start.AddDate(0, 1, 0), start.Format("200601"))
	case Year:
		start := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return bounded(kind, start, start.AddDate(1, 0, 0), start.Format("2006"))
	default:
		return Window{Kind: Eternity, Label: EternityLabel}
	}
}

func bounded(kind Kind, start, end time.Time, label string) Window {
	return Window{Kind: kind, Start: start, End: end, Label: label}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// weekStart returns the preceding Monday 00:00 UTC.
func weekStart(t time.Time) time.Time {
	d := dayStart(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}
