package schedule

import (
	"testing"
	"time"

	"github.com/goodtune/balance/internal/config"
	"github.com/goodtune/balance/internal/timewin"
)

func sampleBlocks() map[string]config.ScheduleBlock {
	return map[string]config.ScheduleBlock{
		"weekday": {
			Days:              []int{1, 2, 3, 4, 5},
			Resolved:          []timewin.Window{{Start: 480, End: 1080}},
			DailyLimitMinutes: 240,
		},
		"saturday": {
			Days:     []int{6},
			Resolved: []timewin.Window{{Start: 480, End: 630}, {Start: 960, End: 1140}},
		},
	}
}

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts
}

func TestFind(t *testing.T) {
	blocks := sampleBlocks()

	tests := []struct {
		when     string
		wantName string
		wantOK   bool
	}{
		{"2026-02-24 09:00", "weekday", true},  // Tuesday
		{"2026-02-28 09:00", "saturday", true}, // Saturday
		{"2026-03-01 09:00", "", false},        // Sunday uncovered
	}

	for _, tt := range tests {
		name, _, ok := Find(blocks, at(t, tt.when))
		if ok != tt.wantOK || name != tt.wantName {
			t.Errorf("Find(%s) = %q, %v; want %q, %v", tt.when, name, ok, tt.wantName, tt.wantOK)
		}
	}
}

func TestFindOverlappingDaysDeterministic(t *testing.T) {
	blocks := map[string]config.ScheduleBlock{
		"zebra": {Days: []int{1}, Resolved: []timewin.Window{{Start: 0, End: 60}}},
		"alpha": {Days: []int{1}, Resolved: []timewin.Window{{Start: 60, End: 120}}},
	}

	for i := 0; i < 10; i++ {
		name, _, ok := Find(blocks, at(t, "2026-02-23 09:00")) // Monday
		if !ok || name != "alpha" {
			t.Fatalf("Find = %q, %v; want alpha (sorted order)", name, ok)
		}
	}
}

func TestNextAvailable(t *testing.T) {
	blocks := sampleBlocks()

	tests := []struct {
		when string
		want string
	}{
		// Saturday between the two windows: later window today.
		{"2026-02-28 12:00", "today at 16:00"},
		// Saturday after the last window: Monday morning.
		{"2026-02-28 20:00", "Monday at 08:00"},
		// Sunday has no block: Monday morning.
		{"2026-03-01 12:00", "Monday at 08:00"},
		// Tuesday before opening still counts as today.
		{"2026-02-24 06:00", "today at 08:00"},
		// Friday evening skips the unscheduled hours to Saturday.
		{"2026-02-27 19:00", "Saturday at 08:00"},
	}

	for _, tt := range tests {
		if got := NextAvailable(blocks, at(t, tt.when)); got != tt.want {
			t.Errorf("NextAvailable(%s) = %q, want %q", tt.when, got, tt.want)
		}
	}
}

func TestNextAvailableEmpty(t *testing.T) {
	if got := NextAvailable(map[string]config.ScheduleBlock{}, at(t, "2026-02-24 09:00")); got != "unknown" {
		t.Errorf("NextAvailable = %q, want unknown", got)
	}
}
