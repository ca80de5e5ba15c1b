// Package usage tracks daily active minutes in per-day append-only log
// files. Each line of a day's log is an HH:MM stamp; the count of distinct
// stamps is the day's active minutes, so repeated activity inside the same
// minute never double-counts.
package usage

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultKeepDays is how many days of logs the retention sweep keeps,
	// counting today.
	DefaultKeepDays = 7

	logSuffix   = ".log"
	sweepMarker = ".last_sweep"
)

// Ledger reads and writes the per-day activity logs under a single
// directory.
type Ledger struct {
	dir    string
	logger zerolog.Logger
}

// NewLedger returns a ledger rooted at dir. The directory is created on
// first write, not here.
func NewLedger(dir string, logger zerolog.Logger) *Ledger {
	return &Ledger{
		dir:    dir,
		logger: logger.With().Str("component", "usage").Logger(),
	}
}

// Dir returns the ledger's root directory.
func (l *Ledger) Dir() string { return l.dir }

func (l *Ledger) logPath(day time.Time) string {
	return filepath.Join(l.dir, day.Format("2006-01-02")+logSuffix)
}

// RecordActivity appends the minute stamp of now to today's log. Appending
// is unconditional; deduplication happens on read.
func (l *Ledger) RecordActivity(now time.Time) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create usage dir: %w", err)
	}

	f, err := os.OpenFile(l.logPath(now), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open usage log: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s\n", now.Format("15:04")); err != nil {
		return fmt.Errorf("append usage log: %w", err)
	}
	return nil
}

// ActiveMinutes returns the number of distinct minute stamps recorded for
// the given day. A missing log means zero minutes; any other read failure
// is surfaced so callers can fail closed.
func (l *Ledger) ActiveMinutes(day time.Time) (int, error) {
	f, err := os.Open(l.logPath(day))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("open usage log: %w", err)
	}
	defer f.Close()

	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		stamp := strings.TrimSpace(scanner.Text())
		if stamp == "" {
			continue
		}
		seen[stamp] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read usage log: %w", err)
	}
	return len(seen), nil
}

// Sweep deletes day files strictly older than keepDays days before today,
// so keepDays of 7 retains the last 8 calendar dates inclusive. Extension
// counter files and their locks age out on the same schedule. Files whose
// names do not parse as dates are left alone.
func (l *Ledger) Sweep(now time.Time, keepDays int) error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read usage dir: %w", err)
	}

	cutoff := midnightUTC(now).AddDate(0, 0, -keepDays)

	for _, entry := range entries {
		name := entry.Name()
		datePart, ok := strings.CutSuffix(name, logSuffix)
		if !ok {
			datePart, ok = strings.CutSuffix(name, counterSuffix)
			if !ok {
				datePart, ok = strings.CutSuffix(name, counterLockSuffix)
			}
		}
		if !ok {
			continue
		}

		day, err := time.Parse("2006-01-02", datePart)
		if err != nil {
			continue
		}
		if !day.Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(l.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn().Err(err).Str("file", name).Msg("failed to remove expired day file")
			continue
		}
		l.logger.Debug().Str("file", name).Msg("removed expired day file")
	}
	return nil
}

// SweepAtMostOncePerDay runs Sweep only when the marker file shows no sweep
// has happened today yet. Returns whether a sweep ran. Before the ledger
// directory exists there is nothing to sweep and no marker is written.
func (l *Ledger) SweepAtMostOncePerDay(now time.Time, keepDays int) (bool, error) {
	if _, err := os.Stat(l.dir); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	marker := filepath.Join(l.dir, sweepMarker)
	today := now.Format("2006-01-02")

	if data, err := os.ReadFile(marker); err == nil {
		if strings.TrimSpace(string(data)) == today {
			return false, nil
		}
	}

	if err := l.Sweep(now, keepDays); err != nil {
		return false, err
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return true, fmt.Errorf("create usage dir: %w", err)
	}
	if err := os.WriteFile(marker, []byte(today+"\n"), 0o644); err != nil {
		return true, fmt.Errorf("write sweep marker: %w", err)
	}
	return true, nil
}

// midnightUTC drops the time-of-day and zone so day comparisons are purely
// calendar arithmetic.
func midnightUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Suffixes for the extension counter files that share the usage directory.
// Declared here so the sweep knows what to age out; the extension package
// owns their contents.
const (
	counterSuffix     = ".extensions.json"
	counterLockSuffix = ".extensions.json.lock"
)
