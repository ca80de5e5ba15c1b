package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goodtune/balance/internal/config"
	"github.com/goodtune/balance/internal/policy"
	"github.com/goodtune/balance/internal/storage/bolt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "balance",
	Short: "Balance - screen-time gate for assistant sessions",
	Long: `Balance decides whether an assistant request goes through right now,
combining a weekly schedule of allowed windows, a daily active-minutes cap,
and time-boxed extensions. It is meant to run as the host's prompt hook
(see the gate command) but every decision input can also be inspected and
adjusted from the command line.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default ~/.config/balance/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger builds the process logger from config, honoring the
// --log-level override.
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	levelName := cfg.Level
	if logLevel != "" {
		levelName = logLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		level = zerolog.ErrorLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// newEngine loads config and wires up a policy engine. History is attached
// separately because only some commands want it.
func newEngine() (*policy.Engine, *config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Nop(), fmt.Errorf("load configuration: %w", err)
	}
	logger := setupLogger(cfg.Logging)
	return policy.NewEngine(cfg, logger), cfg, logger, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func historyPath(cfg *config.Config) string {
	return filepath.Join(cfg.Storage.Dir, "history.bolt")
}

// openHistory opens the decision history store. Callers that can work
// without history treat a nil store as "skip recording".
func openHistory(cfg *config.Config) (*bolt.Store, error) {
	return bolt.Open(historyPath(cfg))
}
