package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/balance/internal/policy"
	"github.com/spf13/cobra"
)

var extendYes bool

var extendCmd = &cobra.Command{
	Use:   "extend [type]",
	Short: "Grant a time extension",
	Long: `Grant one extension of the given type, opening a time-boxed override for
its duration. Without an argument, an interactive chooser lists the
configured types with their remaining grants.`,
	Example: `  balance extend quick
  balance extend`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtend,
}

func init() {
	extendCmd.Flags().BoolVarP(&extendYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(extendCmd)
}

func runExtend(cmd *cobra.Command, args []string) error {
	engine, _, _, err := newEngine()
	if err != nil {
		return err
	}

	now := engine.Now()
	reader := bufio.NewReader(os.Stdin)

	extType := ""
	if len(args) == 1 {
		extType = args[0]
	} else {
		extType, err = chooseExtension(engine, reader)
		if err != nil {
			return err
		}
	}

	if !extendYes {
		if err := confirmExtension(engine.Extensions().TotalToday(now), reader); err != nil {
			return err
		}
	}

	result, err := engine.IssueGrant(extType)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen, color.Bold)
	green.Printf("Granted: %s (+%d minutes)\n", result.Label, result.Minutes)
	fmt.Printf("Valid until %s. Used %d/%d of %q today.\n",
		result.ExpiresAt.Format("15:04"), result.UsedToday, result.MaxPerDay, result.Type)
	return nil
}

// chooseExtension shows the interactive menu and reads a selection.
func chooseExtension(engine *policy.Engine, reader *bufio.Reader) (string, error) {
	now := engine.Now()
	options := engine.ExtensionOptions(now)
	if len(options) == 0 {
		return "", fmt.Errorf("no extension types configured")
	}

	available := options[:0]
	for _, opt := range options {
		if opt.Remaining > 0 {
			available = append(available, opt)
		}
	}
	if len(available) == 0 {
		return "", fmt.Errorf("no extensions remaining today")
	}

	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Println("Available extensions:")
	for i, opt := range available {
		fmt.Printf("  %d) %-8s %s - %d min (%d remaining)\n",
			i+1, opt.Type, opt.Label, opt.Minutes, opt.Remaining)
	}
	fmt.Print("Choose [1]: ")

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read selection: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return available[0].Type, nil
	}

	idx, err := strconv.Atoi(line)
	if err != nil || idx < 1 || idx > len(available) {
		return "", fmt.Errorf("invalid selection %q", line)
	}
	return available[idx-1].Type, nil
}

// confirmExtension raises friction as the day's grant total climbs: early
// grants need a y/N, later ones a typed phrase.
func confirmExtension(totalToday int, reader *bufio.Reader) error {
	if totalToday < 2 {
		fmt.Print("Grant extension? [y/N]: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return nil
		}
		return fmt.Errorf("extension not confirmed")
	}

	phrase := "I need more time"
	if totalToday >= 4 {
		phrase = "I really do need more time"
	}
	yellow := color.New(color.FgYellow)
	yellow.Printf("That's %d extensions already today.\n", totalToday)
	fmt.Printf("Type %q to continue: ", phrase)

	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimSpace(line) != phrase {
		return fmt.Errorf("extension not confirmed")
	}
	return nil
}
