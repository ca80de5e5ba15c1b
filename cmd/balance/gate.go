package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// maxTriggerBytes caps how much of the hook payload is read.
const maxTriggerBytes = 1 << 20

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Evaluate one request (hook entry point)",
	Long: `Evaluate whether a request is allowed right now. Reads an optional JSON
payload from stdin, prints context for the host on stdout when allowing, and
exits 0 to allow or 2 to block with the reason on stderr.`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runGate())
	},
}

func init() {
	rootCmd.AddCommand(gateCmd)
}

func runGate() int {
	engine, cfg, logger, err := newEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "balance error (blocking): %v\n", err)
		return 2
	}

	// History is best-effort: a locked or corrupt store never changes the
	// verdict.
	if history, err := openHistory(cfg); err != nil {
		logger.Warn().Err(err).Msg("decision history unavailable")
	} else {
		defer history.Close()
		engine.SetHistory(history)
	}

	trigger := readTrigger(os.Stdin)
	decision := engine.Evaluate(context.Background(), trigger)

	if !decision.Allowed() {
		fmt.Fprintln(os.Stderr, decision.Message)
		return 2
	}

	if decision.Context != "" {
		out := struct {
			AdditionalContext string `json:"additionalContext"`
		}{AdditionalContext: decision.Context}
		if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
			logger.Warn().Err(err).Msg("failed to write hook output")
		}
	}
	return 0
}

// readTrigger extracts the prompt text from the hook payload, if any. A
// terminal on stdin means no payload; unparseable input is passed through
// raw since the trigger is only recorded, never interpreted.
func readTrigger(f *os.File) string {
	info, err := f.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(f, maxTriggerBytes))
	if err != nil || len(data) == 0 {
		return ""
	}

	var payload struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Prompt != "" {
		return payload.Prompt
	}
	return string(data)
}
