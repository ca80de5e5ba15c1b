// Package config loads and validates the balance configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goodtune/balance/internal/timewin"
	"github.com/spf13/viper"
)

// Config holds the complete gate configuration. Window formats are
// canonicalized at load time; downstream code only ever sees the resolved
// minute-pair form.
type Config struct {
	Enabled    bool                     `mapstructure:"enabled"`
	Timezone   string                   `mapstructure:"timezone"`
	Schedule   map[string]ScheduleBlock `mapstructure:"schedule"`
	Extensions map[string]ExtensionDef  `mapstructure:"extensions"`
	Override   OverrideConfig           `mapstructure:"override"`
	Storage    StorageConfig            `mapstructure:"storage"`
	Logging    LoggingConfig            `mapstructure:"logging"`

	WarningMinutesBeforeEnd int `mapstructure:"warning_minutes_before_end"`
	WarningMinutesBeforeCap int `mapstructure:"warning_minutes_before_cap"`
}

// ScheduleBlock is one named block of weekdays with its allowed windows and
// optional daily cap. Two input shapes are accepted: an explicit windows
// list, or the legacy numeric hour/minute fields describing a single window
// (whole day when absent).
type ScheduleBlock struct {
	Days    []int        `mapstructure:"days"`
	Windows []WindowSpec `mapstructure:"windows"`

	// Legacy single-window fields. Pointers distinguish "absent" from zero.
	StartHour   *int `mapstructure:"start_hour"`
	StartMinute *int `mapstructure:"start_minute"`
	EndHour     *int `mapstructure:"end_hour"`
	EndMinute   *int `mapstructure:"end_minute"`

	DailyLimitMinutes int `mapstructure:"daily_limit_minutes"` // 0 = no cap

	// Resolved is the canonical minute-pair form, populated by Load.
	Resolved []timewin.Window `mapstructure:"-"`
}

// WindowSpec is one explicit window as configured.
type WindowSpec struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// ExtensionDef describes one grantable extension type.
type ExtensionDef struct {
	Minutes   int    `mapstructure:"minutes"`
	MaxPerDay int    `mapstructure:"max_per_day"`
	Label     string `mapstructure:"label"`
}

// OverrideConfig defines the override escape hatches.
type OverrideConfig struct {
	EnvVar string `mapstructure:"env_var"`
	File   string `mapstructure:"file"`
}

// StorageConfig defines where ledgers and history live.
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables. A missing or
// unparseable config file falls back to full defaults; a parseable config
// with invalid schedules or windows is an error.
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		// Malformed input falls back to full defaults.
		v = newViper("")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		v = newViper("")
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("unmarshal default config: %w", err)
		}
	}

	if err := finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadStrict is Load without the defaults fallback: read and parse failures
// are surfaced. Used by the validate command.
func LoadStrict(configPath string) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(defaultConfigDir())
	}

	v.SetEnvPrefix("BALANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// setDefaults sets default configuration values. The default schedule is not
// set here: a user-provided schedule replaces it wholesale rather than
// merging, so it is applied in finalize only when no schedule was configured.
func setDefaults(v *viper.Viper) {
	v.SetDefault("enabled", true)
	v.SetDefault("timezone", "Europe/London")

	v.SetDefault("extensions", map[string]any{
		"quick": map[string]any{"minutes": 15, "max_per_day": 2, "label": "Quick 15-min session"},
		"more":  map[string]any{"minutes": 15, "max_per_day": 3, "label": "15 more minutes"},
	})

	v.SetDefault("override.env_var", "BALANCE_OVERRIDE")
	v.SetDefault("override.file", "~/.balance_override")

	v.SetDefault("storage.dir", "~/.local/state/balance")

	v.SetDefault("logging.level", "error")
	v.SetDefault("logging.format", "text")

	v.SetDefault("warning_minutes_before_end", 15)
	v.SetDefault("warning_minutes_before_cap", 30)
}

// DefaultSchedule returns the schedule used when none is configured:
// weekdays 08:00-18:00 with a 240-minute daily cap.
func DefaultSchedule() map[string]ScheduleBlock {
	return map[string]ScheduleBlock{
		"weekday": {
			Days:              []int{1, 2, 3, 4, 5},
			Windows:           []WindowSpec{{Start: "08:00", End: "18:00"}},
			DailyLimitMinutes: 240,
		},
	}
}

// finalize canonicalizes window formats, expands home-relative paths, and
// validates the result.
func finalize(cfg *Config) error {
	if len(cfg.Schedule) == 0 {
		cfg.Schedule = DefaultSchedule()
	}

	cfg.Storage.Dir = expandHome(cfg.Storage.Dir)
	cfg.Override.File = expandHome(cfg.Override.File)

	for name, block := range cfg.Schedule {
		if err := resolveWindows(&block); err != nil {
			return fmt.Errorf("schedule %q: %w", name, err)
		}
		for _, day := range block.Days {
			if day < 1 || day > 7 {
				return fmt.Errorf("schedule %q: day %d outside 1..7", name, day)
			}
		}
		if block.DailyLimitMinutes < 0 {
			return fmt.Errorf("schedule %q: negative daily limit", name)
		}
		cfg.Schedule[name] = block
	}

	for name, def := range cfg.Extensions {
		if def.Minutes <= 0 {
			return fmt.Errorf("extension %q: minutes must be positive", name)
		}
		if def.MaxPerDay <= 0 {
			return fmt.Errorf("extension %q: max_per_day must be positive", name)
		}
	}

	if cfg.WarningMinutesBeforeEnd < 0 || cfg.WarningMinutesBeforeCap < 0 {
		return fmt.Errorf("warning thresholds must not be negative")
	}

	return nil
}

// resolveWindows converts either input shape into the canonical minute-pair
// list. The legacy format is sugar for a single-window list.
func resolveWindows(block *ScheduleBlock) error {
	if len(block.Windows) > 0 {
		resolved := make([]timewin.Window, 0, len(block.Windows))
		for _, spec := range block.Windows {
			w, err := timewin.New(spec.Start, spec.End)
			if err != nil {
				return err
			}
			resolved = append(resolved, w)
		}
		block.Resolved = resolved
		return nil
	}

	startHour, startMinute, endHour, endMinute := 0, 0, 24, 0
	if block.StartHour != nil {
		startHour = *block.StartHour
	}
	if block.StartMinute != nil {
		startMinute = *block.StartMinute
	}
	if block.EndHour != nil {
		endHour = *block.EndHour
	}
	if block.EndMinute != nil {
		endMinute = *block.EndMinute
	}

	w, err := timewin.FromHours(startHour, startMinute, endHour, endMinute)
	if err != nil {
		return err
	}
	block.Resolved = []timewin.Window{w}
	return nil
}

// Location resolves the configured timezone, falling back to the system
// local zone when the name is unknown.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.Local
}

func defaultConfigDir() string {
	return expandHome("~/.config/balance")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
