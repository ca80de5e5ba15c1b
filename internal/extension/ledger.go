// Package extension persists per-day extension grant counters. Counters
// live in a JSON file per day next to the usage logs; writes take an
// exclusive advisory lock so concurrent grants never lose updates.
package extension

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

// CounterFileSuffix names the per-day counter files.
const CounterFileSuffix = ".extensions.json"

// Ledger reads and updates the daily grant counters under dir.
type Ledger struct {
	dir    string
	logger zerolog.Logger
}

// NewLedger returns a ledger rooted at dir, which it shares with the usage
// logs.
func NewLedger(dir string, logger zerolog.Logger) *Ledger {
	return &Ledger{
		dir:    dir,
		logger: logger.With().Str("component", "extension").Logger(),
	}
}

func (l *Ledger) counterPath(day time.Time) string {
	return filepath.Join(l.dir, day.Format("2006-01-02")+CounterFileSuffix)
}

// CountsToday returns the grant count per extension type for the given day.
// A missing or corrupt counter file reads as no grants.
func (l *Ledger) CountsToday(day time.Time) map[string]int {
	counts, err := readCounts(l.counterPath(day))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn().Err(err).Msg("unreadable extension counters, treating as empty")
		}
		return map[string]int{}
	}
	return counts
}

// CountToday returns the grant count for one extension type.
func (l *Ledger) CountToday(day time.Time, extType string) int {
	return l.CountsToday(day)[extType]
}

// TotalToday returns the sum of all grants for the day.
func (l *Ledger) TotalToday(day time.Time) int {
	total := 0
	for _, n := range l.CountsToday(day) {
		total += n
	}
	return total
}

// RecordGrant increments the counter for extType under an exclusive file
// lock and returns the new count. The read-increment-write happens entirely
// inside the lock.
func (l *Ledger) RecordGrant(day time.Time, extType string) (int, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create state dir: %w", err)
	}

	path := l.counterPath(day)
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return 0, fmt.Errorf("lock extension counters: %w", err)
	}
	defer lock.Unlock()

	counts, err := readCounts(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn().Err(err).Msg("resetting corrupt extension counters")
		counts = map[string]int{}
	}
	if counts == nil {
		counts = map[string]int{}
	}
	counts[extType]++

	if err := writeCounts(path, counts); err != nil {
		return 0, err
	}
	return counts[extType], nil
}

func readCounts(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var counts map[string]int
	if err := json.Unmarshal(data, &counts); err != nil {
		return nil, fmt.Errorf("parse extension counters: %w", err)
	}
	if counts == nil {
		counts = map[string]int{}
	}
	return counts, nil
}

// writeCounts replaces the counter file atomically via rename.
func writeCounts(path string, counts map[string]int) error {
	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("encode extension counters: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write extension counters: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace extension counters: %w", err)
	}
	return nil
}
