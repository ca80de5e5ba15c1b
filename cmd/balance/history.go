package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/balance/internal/storage"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyState  string
	historyAction string
	historySince  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent gate decisions",
	Long:  `List recent gate decisions, newest first. Filter by state, action, or start time.`,
	Example: `  balance history --limit 20
  balance history --action BLOCK --since 2026-02-20`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum records to show")
	historyCmd.Flags().StringVar(&historyState, "state", "", "Filter by state (e.g. OUTSIDE_WINDOW)")
	historyCmd.Flags().StringVar(&historyAction, "action", "", "Filter by action (ALLOW or BLOCK)")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only records on or after this date (YYYY-MM-DD)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openHistory(cfg)
	if err != nil {
		return fmt.Errorf("open decision history: %w", err)
	}
	defer store.Close()

	filter := storage.HistoryFilter{
		State: strings.ToUpper(historyState),
		Limit: historyLimit,
	}
	if historyAction != "" {
		filter.Action = storage.Action(strings.ToUpper(historyAction))
	}
	if historySince != "" {
		since, err := time.Parse("2006-01-02", historySince)
		if err != nil {
			return fmt.Errorf("invalid --since date %q: %w", historySince, err)
		}
		filter.StartTime = &since
	}

	records, err := store.Query(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("query decision history: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No matching decisions.")
		return nil
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	for _, rec := range records {
		stamp := rec.Timestamp.In(cfg.Location()).Format("2006-01-02 15:04:05")
		line := fmt.Sprintf("%s  %-5s %-20s", stamp, rec.Action, rec.State)
		if rec.Action == storage.ActionAllow {
			green.Print(line)
		} else {
			red.Print(line)
		}
		if rec.Detail != "" {
			fmt.Printf("  %s", rec.Detail)
		}
		fmt.Println()
	}
	return nil
}
