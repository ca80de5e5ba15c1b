package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/balance/internal/override"
)

// ErrQuotaExceeded is returned when an extension type has no grants left
// today.
var ErrQuotaExceeded = errors.New("extension quota exceeded for today")

// ErrUnknownExtension is returned for extension types not in the config.
var ErrUnknownExtension = errors.New("unknown extension type")

// GrantResult describes a successful extension grant.
type GrantResult struct {
	Type      string
	Label     string
	Minutes   int
	ExpiresAt time.Time
	UsedToday int
	MaxPerDay int
}

// IssueGrant grants one extension of the given type: the daily counter is
// incremented under the file lock and a time-boxed override is written so
// the extension also opens a closed window. The quota check happens before
// the locked increment, so two simultaneous grants of the last slot can
// overshoot the cap by one.
func (e *Engine) IssueGrant(extType string) (GrantResult, error) {
	def, ok := e.cfg.Extensions[extType]
	if !ok {
		return GrantResult{}, fmt.Errorf("%w: %q", ErrUnknownExtension, extType)
	}

	now := e.Now()
	if used := e.ext.CountToday(now, extType); used >= def.MaxPerDay {
		return GrantResult{}, fmt.Errorf("%w: %q used %d/%d", ErrQuotaExceeded, extType, used, def.MaxPerDay)
	}

	used, err := e.ext.RecordGrant(now, extType)
	if err != nil {
		return GrantResult{}, fmt.Errorf("record grant: %w", err)
	}

	expires := now.Add(time.Duration(def.Minutes) * time.Minute)
	grant := override.Grant{Type: extType, Label: def.Label, ExpiresAt: expires}
	if err := e.override.Write(grant); err != nil {
		return GrantResult{}, fmt.Errorf("write override grant: %w", err)
	}

	e.logger.Info().
		Str("type", extType).
		Int("used", used).
		Int("max", def.MaxPerDay).
		Time("expires", expires).
		Msg("extension granted")

	return GrantResult{
		Type:      extType,
		Label:     def.Label,
		Minutes:   def.Minutes,
		ExpiresAt: expires,
		UsedToday: used,
		MaxPerDay: def.MaxPerDay,
	}, nil
}
