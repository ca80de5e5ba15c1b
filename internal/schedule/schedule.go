// Package schedule resolves which configured schedule block governs a given
// moment and computes the next time access opens up.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/balance/internal/config"
	"github.com/goodtune/balance/internal/timewin"
)

var weekdayNames = [8]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Find returns the schedule block whose day list covers the ISO weekday of t.
// When several blocks claim the same day, block names are tried in sorted
// order so the result is deterministic.
func Find(blocks map[string]config.ScheduleBlock, t time.Time) (string, config.ScheduleBlock, bool) {
	day := timewin.ISOWeekday(t)

	names := make([]string, 0, len(blocks))
	for name := range blocks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		block := blocks[name]
		for _, d := range block.Days {
			if d == day {
				return name, block, true
			}
		}
	}
	return "", config.ScheduleBlock{}, false
}

// NextAvailable describes when access next opens, scanning forward from t up
// to a week. Returns "today at HH:MM" when a later window opens the same day,
// "Monday at HH:MM" style for a later day, or "unknown" when no block covers
// any day.
func NextAvailable(blocks map[string]config.ScheduleBlock, t time.Time) string {
	minute := timewin.MinuteOfDay(t)

	if _, block, ok := Find(blocks, t); ok {
		if w, ok := timewin.NextAfter(block.Resolved, minute); ok {
			return fmt.Sprintf("today at %s", timewin.Format(w.Start))
		}
	}

	for offset := 1; offset <= 7; offset++ {
		future := t.AddDate(0, 0, offset)
		_, block, ok := Find(blocks, future)
		if !ok || len(block.Resolved) == 0 {
			continue
		}
		earliest := block.Resolved[0]
		for _, w := range block.Resolved[1:] {
			if w.Start < earliest.Start {
				earliest = w
			}
		}
		day := timewin.ISOWeekday(future)
		return fmt.Sprintf("%s at %s", weekdayNames[day], timewin.Format(earliest.Start))
	}
	return "unknown"
}
