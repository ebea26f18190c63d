package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync for the current window and print the report",
	Long: `Run lists the conversations active in the current window (today in
SYNC_TIMEZONE, or the last SYNC_LOOKBACK), stores them with their messages
and senders, and prints the run report as JSON.

Record failures do not change the exit status unless --strict is set, in
which case the command exits 2 when the report holds any failure.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().Bool("strict", false, "Exit 2 when any record or fetch failed")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	strict, _ := cmd.Flags().GetBool("strict")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	rep, err := a.runner.RunOnce(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep.Snapshot()); err != nil {
		return err
	}

	if strict && rep.HasFailures() {
		return &exitCodeError{code: 2, err: errors.New("run finished with failures")}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		a.logger.Warn("run interrupted")
	}
	return nil
}
