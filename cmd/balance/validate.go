package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/goodtune/balance/internal/config"
	"github.com/goodtune/balance/internal/timewin"
	"github.com/spf13/cobra"
)

var validateDump bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file for syntax and semantic errors. Unlike the gate, read and parse failures are reported rather than falling back to defaults.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Print the resolved schedule and extensions")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadStrict(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return err
	}

	green := color.New(color.FgGreen, color.Bold)
	green.Println("Configuration is valid.")

	if !validateDump {
		return nil
	}

	fmt.Println()
	fmt.Printf("enabled:  %v\n", cfg.Enabled)
	fmt.Printf("timezone: %s\n", cfg.Timezone)
	fmt.Printf("storage:  %s\n", cfg.Storage.Dir)
	fmt.Println()

	fmt.Println("Schedule:")
	names := make([]string, 0, len(cfg.Schedule))
	for name := range cfg.Schedule {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		block := cfg.Schedule[name]
		fmt.Printf("  %-10s days %v  %s", name, block.Days, timewin.Summary(block.Resolved))
		if block.DailyLimitMinutes > 0 {
			fmt.Printf("  cap %d min", block.DailyLimitMinutes)
		}
		fmt.Println()
	}

	fmt.Println("Extensions:")
	extNames := make([]string, 0, len(cfg.Extensions))
	for name := range cfg.Extensions {
		extNames = append(extNames, name)
	}
	sort.Strings(extNames)
	for _, name := range extNames {
		def := cfg.Extensions[name]
		fmt.Printf("  %-10s %d min, max %d/day - %s\n", name, def.Minutes, def.MaxPerDay, def.Label)
	}
	return nil
}
