// Package policy decides whether a request goes through: schedule windows,
// the daily cap, and overrides combine into a single allow or block.
package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/goodtune/balance/internal/config"
	"github.com/goodtune/balance/internal/extension"
	"github.com/goodtune/balance/internal/override"
	"github.com/goodtune/balance/internal/schedule"
	"github.com/goodtune/balance/internal/storage"
	"github.com/goodtune/balance/internal/timewin"
	"github.com/goodtune/balance/internal/usage"
	"github.com/rs/zerolog"
)

// historyKeepDays is how long decision records are retained, pruned
// opportunistically when the daily sweep runs.
const historyKeepDays = 30

// Engine evaluates gate decisions against the configured schedule, the
// usage ledger, and the override store.
type Engine struct {
	cfg      *config.Config
	usage    *usage.Ledger
	ext      *extension.Ledger
	override *override.Store
	history  storage.HistoryStore
	clock    Clock
	logger   zerolog.Logger
}

// NewEngine builds an engine over the configured state directory. Usage
// logs and extension counters share the usage subdirectory so the retention
// sweep covers both.
func NewEngine(cfg *config.Config, logger zerolog.Logger) *Engine {
	componentLogger := logger.With().Str("component", "policy").Logger()
	usageDir := filepath.Join(cfg.Storage.Dir, "usage")
	return &Engine{
		cfg:      cfg,
		usage:    usage.NewLedger(usageDir, logger),
		ext:      extension.NewLedger(usageDir, logger),
		override: override.NewStore(cfg.Override.EnvVar, cfg.Override.File, logger),
		clock:    RealClock{},
		logger:   componentLogger,
	}
}

// SetClock replaces the time source. Used by tests and the status command.
func (e *Engine) SetClock(clock Clock) { e.clock = clock }

// SetHistory attaches a decision history store. Without one, decisions are
// simply not recorded.
func (e *Engine) SetHistory(h storage.HistoryStore) { e.history = h }

// Usage exposes the usage ledger for the status command.
func (e *Engine) Usage() *usage.Ledger { return e.usage }

// Extensions exposes the extension ledger.
func (e *Engine) Extensions() *extension.Ledger { return e.ext }

// Override exposes the override store.
func (e *Engine) Override() *override.Store { return e.override }

// Now returns the current time in the configured timezone.
func (e *Engine) Now() time.Time {
	return e.clock.Now().In(e.cfg.Location())
}

// Evaluate runs the decision ladder for one request. Any internal failure
// blocks: the gate fails closed.
func (e *Engine) Evaluate(ctx context.Context, trigger string) Decision {
	decision, err := e.evaluate(ctx, trigger)
	if err != nil {
		e.logger.Error().Err(err).Msg("evaluation failed, blocking")
		decision = Decision{
			Action:  storage.ActionBlock,
			State:   StateError,
			Message: fmt.Sprintf("balance error (blocking): %v", err),
		}
	}
	e.recordDecision(ctx, decision, trigger)
	return decision
}

func (e *Engine) evaluate(ctx context.Context, trigger string) (Decision, error) {
	if !e.cfg.Enabled {
		return Decision{Action: storage.ActionAllow, State: StateDisabled}, nil
	}

	now := e.Now()

	// Housekeeping rides along on the first evaluation of the day.
	if ran, err := e.usage.SweepAtMostOncePerDay(now, usage.DefaultKeepDays); err != nil {
		e.logger.Warn().Err(err).Msg("retention sweep failed")
	} else if ran {
		e.pruneHistory(ctx, now)
	}

	if active, reason := e.override.Check(now); active {
		e.logger.Info().Str("reason", reason).Msg("override active")
		if err := e.usage.RecordActivity(now); err != nil {
			e.logger.Warn().Err(err).Msg("failed to record activity")
		}
		return Decision{
			Action:  storage.ActionAllow,
			State:   StateOverrideActive,
			Context: "Time override active: " + reason,
		}, nil
	}

	name, block, ok := schedule.Find(e.cfg.Schedule, now)
	if !ok {
		next := schedule.NextAvailable(e.cfg.Schedule, now)
		return Decision{
			Action:  storage.ActionBlock,
			State:   StateOutsideWindow,
			Message: e.blockMessage(now, fmt.Sprintf("Offline today. Next available: %s.", next)),
		}, nil
	}

	minute := timewin.MinuteOfDay(now)
	window, inWindow := timewin.Containing(block.Resolved, minute)
	if !inWindow {
		next := schedule.NextAvailable(e.cfg.Schedule, now)
		return Decision{
			Action:   storage.ActionBlock,
			State:    StateOutsideWindow,
			Schedule: name,
			Message: e.blockMessage(now, fmt.Sprintf("Outside allowed hours (%s). Next window: %s.",
				timewin.Summary(block.Resolved), next)),
		}, nil
	}

	active, err := e.usage.ActiveMinutes(now)
	if err != nil {
		return Decision{}, fmt.Errorf("read usage ledger: %w", err)
	}

	// Extensions never move the cap. A grant only opens an override
	// window; once it expires the raw limit applies again.
	limit := block.DailyLimitMinutes
	if limit > 0 && active >= limit {
		return Decision{
			Action:   storage.ActionBlock,
			State:    StateCapExceeded,
			Schedule: name,
			Message: e.blockMessage(now,
				fmt.Sprintf("Daily limit reached (%d/%d minutes used today).", active, limit)),
		}, nil
	}

	if err := e.usage.RecordActivity(now); err != nil {
		e.logger.Warn().Err(err).Msg("failed to record activity")
	}

	warnings := e.warnings(window, minute, active, limit)
	if len(warnings) > 0 {
		return Decision{
			Action:   storage.ActionAllow,
			State:    StateAllowedWithWarning,
			Schedule: name,
			Context:  strings.Join(warnings, " | "),
		}, nil
	}
	return Decision{Action: storage.ActionAllow, State: StateAllowed, Schedule: name}, nil
}

// blockMessage appends the extension menu to a block reason so every
// consumer of the decision sees the same text.
func (e *Engine) blockMessage(now time.Time, text string) string {
	if menu := e.ExtensionMenu(now); menu != "" {
		return text + "\n\n" + menu
	}
	return text
}

func (e *Engine) warnings(window timewin.Window, minute, active, limit int) []string {
	var warnings []string

	if remaining := window.End - minute; remaining <= e.cfg.WarningMinutesBeforeEnd {
		warnings = append(warnings, fmt.Sprintf("Window closes in %d minutes.", remaining))
	}
	if limit > 0 {
		if remaining := limit - active; remaining <= e.cfg.WarningMinutesBeforeCap {
			warnings = append(warnings,
				fmt.Sprintf("Daily usage: %d/%d min (%d min remaining).", active, limit, remaining))
		}
	}
	return warnings
}

func (e *Engine) recordDecision(ctx context.Context, d Decision, trigger string) {
	if e.history == nil {
		return
	}
	rec := storage.DecisionRecord{
		Timestamp: e.clock.Now().UTC(),
		State:     string(d.State),
		Action:    d.Action,
		Schedule:  d.Schedule,
		Trigger:   trigger,
		Detail:    firstNonEmpty(d.Message, d.Context),
	}
	if err := e.history.Append(ctx, rec); err != nil {
		e.logger.Warn().Err(err).Msg("failed to record decision")
	}
}

func (e *Engine) pruneHistory(ctx context.Context, now time.Time) {
	if e.history == nil {
		return
	}
	cutoff := now.AddDate(0, 0, -historyKeepDays).UTC()
	if _, err := e.history.DeleteBefore(ctx, cutoff); err != nil {
		e.logger.Warn().Err(err).Msg("failed to prune decision history")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
