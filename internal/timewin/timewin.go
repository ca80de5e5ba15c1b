// Package timewin models time-of-day windows as minute-of-day intervals.
// All functions are pure; no I/O happens here.
package timewin

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the exclusive upper bound for a window end.
const MinutesPerDay = 24 * 60

var (
	// ErrInvalidTimeFormat is returned for clock strings that are not
	// two colon-separated numeric parts.
	ErrInvalidTimeFormat = errors.New("timewin: invalid time format")

	// ErrInvalidTimeRange is returned for out-of-range hours/minutes or
	// windows whose start does not precede their end.
	ErrInvalidTimeRange = errors.New("timewin: time out of range")
)

// Window is a [Start, End) interval in minutes since midnight.
type Window struct {
	Start int
	End   int
}

// Contains reports whether minute m falls inside the window.
// Start is inclusive, End exclusive.
func (w Window) Contains(m int) bool {
	return w.Start <= m && m < w.End
}

// String renders the window as "HH:MM–HH:MM".
func (w Window) String() string {
	return Format(w.Start) + "–" + Format(w.End)
}

// Parse converts an "HH:MM" clock string to minutes since midnight.
func Parse(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: expected HH:MM, got %q", ErrInvalidTimeFormat, s)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeRange, s)
	}
	return h*60 + m, nil
}

// Format renders minutes since midnight as zero-padded "HH:MM".
// Total inverse of Parse for valid inputs.
func Format(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// New builds a window from start/end clock strings.
func New(start, end string) (Window, error) {
	s, err := Parse(start)
	if err != nil {
		return Window{}, err
	}
	e, err := Parse(end)
	if err != nil {
		return Window{}, err
	}
	if s >= e {
		return Window{}, fmt.Errorf("%w: window %s-%s", ErrInvalidTimeRange, start, end)
	}
	return Window{Start: s, End: e}, nil
}

// FromHours builds a single window from the legacy numeric hour/minute
// fields. An end of 24:00 is valid here, unlike Parse.
func FromHours(startHour, startMinute, endHour, endMinute int) (Window, error) {
	s := startHour*60 + startMinute
	e := endHour*60 + endMinute
	if s < 0 || e > MinutesPerDay || s >= e {
		return Window{}, fmt.Errorf("%w: hours %d:%02d-%d:%02d", ErrInvalidTimeRange, startHour, startMinute, endHour, endMinute)
	}
	return Window{Start: s, End: e}, nil
}

// Containing returns the first window in list order that contains minute m.
func Containing(windows []Window, m int) (Window, bool) {
	for _, w := range windows {
		if w.Contains(m) {
			return w, true
		}
	}
	return Window{}, false
}

// NextAfter returns the earliest window whose start is strictly after m.
func NextAfter(windows []Window, m int) (Window, bool) {
	var next Window
	found := false
	for _, w := range windows {
		if w.Start > m && (!found || w.Start < next.Start) {
			next = w
			found = true
		}
	}
	return next, found
}

// Summary formats windows sorted ascending by start, joined with " + ",
// e.g. "08:00–10:30 + 16:00–19:00".
func Summary(windows []Window) string {
	sorted := append([]Window(nil), windows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	parts := make([]string, 0, len(sorted))
	for _, w := range sorted {
		parts = append(parts, w.String())
	}
	return strings.Join(parts, " + ")
}

// MinuteOfDay returns t's clock time as minutes since midnight.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ISOWeekday returns t's ISO 8601 weekday (1=Monday .. 7=Sunday).
func ISOWeekday(t time.Time) int {
	return int(t.Weekday()+6)%7 + 1
}
