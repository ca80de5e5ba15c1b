package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/goodtune/balance/internal/schedule"
	"github.com/goodtune/balance/internal/timewin"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current gate state",
	Long:  `Show what the gate would decide right now and why: today's schedule, usage against the cap, override state, and remaining extensions.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	engine, cfg, _, err := newEngine()
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	now := engine.Now()

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("BALANCE STATUS")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Time:       %s (%s)\n", now.Format("Mon 2006-01-02 15:04"), cfg.Timezone)
	if !cfg.Enabled {
		yellow.Println("Gate:       DISABLED (all requests allowed)")
		return nil
	}
	fmt.Println("Gate:       enabled")
	fmt.Println()

	name, block, ok := schedule.Find(cfg.Schedule, now)
	if !ok {
		red.Println("Schedule:   offline today")
		fmt.Printf("Next:       %s\n", schedule.NextAvailable(cfg.Schedule, now))
		return nil
	}

	fmt.Printf("Schedule:   %s\n", name)
	fmt.Printf("Windows:    %s\n", timewin.Summary(block.Resolved))

	minute := timewin.MinuteOfDay(now)
	if w, inWindow := timewin.Containing(block.Resolved, minute); inWindow {
		green.Printf("Window:     OPEN")
		fmt.Printf(" (closes at %s)\n", timewin.Format(w.End))
	} else {
		red.Printf("Window:     CLOSED")
		fmt.Printf(" (next: %s)\n", schedule.NextAvailable(cfg.Schedule, now))
	}

	active, err := engine.Usage().ActiveMinutes(now)
	if err != nil {
		return fmt.Errorf("read usage ledger: %w", err)
	}
	if block.DailyLimitMinutes > 0 {
		fmt.Printf("Usage:      %d/%d minutes\n", active, block.DailyLimitMinutes)
	} else {
		fmt.Printf("Usage:      %d minutes (no cap)\n", active)
	}

	if active, reason := engine.Override().Check(now); active {
		yellow.Printf("Override:   ACTIVE (%s)\n", reason)
	} else {
		fmt.Println("Override:   none")
	}

	fmt.Println()
	cyan.Println("Extensions:")
	for _, opt := range engine.ExtensionOptions(now) {
		fmt.Printf("  %-8s %s - %d min (%d remaining)\n",
			opt.Type, opt.Label, opt.Minutes, opt.Remaining)
	}
	return nil
}
