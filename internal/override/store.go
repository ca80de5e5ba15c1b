// Package override implements the manual bypass checks: an environment
// variable for a standing override and a grant file for time-boxed ones.
package override

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// legacyMaxAge bounds how long an unparseable grant file is honored. Older
// grant formats carried no expiry, so a recent unreadable file is treated
// as an active grant and an old one is cleaned up.
const legacyMaxAge = time.Hour

// Grant is the persisted form of a time-boxed override.
type Grant struct {
	Type      string    `json:"type"`
	Label     string    `json:"label,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store checks and writes override state.
type Store struct {
	envVar string
	path   string
	logger zerolog.Logger
}

// NewStore returns a store reading the given environment variable and grant
// file path.
func NewStore(envVar, path string, logger zerolog.Logger) *Store {
	return &Store{
		envVar: envVar,
		path:   path,
		logger: logger.With().Str("component", "override").Logger(),
	}
}

// Path returns the grant file path.
func (s *Store) Path() string { return s.path }

// Check reports whether an override is active at now, with a short reason
// for the decision trail. The environment variable wins over the grant
// file; an expired grant file deletes itself.
func (s *Store) Check(now time.Time) (bool, string) {
	if s.envActive() {
		return true, "environment variable"
	}
	return s.fileActive(now)
}

func (s *Store) envActive() bool {
	if s.envVar == "" {
		return false
	}
	// Tokens are matched exactly, not case-folded.
	switch strings.TrimSpace(os.Getenv(s.envVar)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (s *Store) fileActive(now time.Time) (bool, string) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Msg("unreadable override file")
		}
		return false, ""
	}

	if grant, ok := decodeGrant(data); ok {
		wallNow, wallExpires := stripZone(now), stripZone(grant.ExpiresAt)
		if wallNow.Before(wallExpires) {
			label := grant.Label
			if label == "" {
				label = grant.Type
			}
			remaining := int(wallExpires.Sub(wallNow).Minutes())
			return true, fmt.Sprintf("%s — %dm remaining", label, remaining)
		}
		s.remove("expired override grant")
		return false, ""
	}

	// Legacy file without a parseable expiry: the modification time caps
	// how long it stays effective.
	info, err := os.Stat(s.path)
	if err != nil {
		return false, ""
	}
	if now.Sub(info.ModTime()) < legacyMaxAge {
		return true, "override file (legacy format)"
	}
	s.remove("stale legacy override file")
	return false, ""
}

func (s *Store) remove(why string) {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn().Err(err).Msg("failed to remove override file")
		return
	}
	s.logger.Debug().Str("path", s.path).Msg("removed " + why)
}

// Write persists a grant, replacing any existing one.
func (s *Store) Write(grant Grant) error {
	data, err := json.MarshalIndent(grant, "", "  ")
	if err != nil {
		return fmt.Errorf("encode override grant: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write override grant: %w", err)
	}
	return nil
}

// decodeGrant parses a grant file body. The expiry may be zoned RFC 3339 or
// a naive local timestamp; both are accepted.
func decodeGrant(data []byte) (Grant, bool) {
	var raw struct {
		Type      string `json:"type"`
		Label     string `json:"label"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil || raw.ExpiresAt == "" {
		return Grant{}, false
	}

	expires, err := parseTimestamp(raw.ExpiresAt)
	if err != nil {
		return Grant{}, false
	}
	return Grant{Type: raw.Type, Label: raw.Label, ExpiresAt: expires}, true
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// stripZone reinterprets the wall-clock reading of t as UTC. Grant files may
// carry zoned or naive timestamps; comparing wall clocks keeps the two
// sources consistent.
func stripZone(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
