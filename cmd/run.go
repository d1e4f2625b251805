package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"billsync/internal/logger"
	"billsync/internal/runlog"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the full synchronization sequence",
	Long: `Execute the full synchronization sequence.

Runs every pass in order: import, generate, settle, cancel, remind.
A completion timestamp is appended to the run log on success, which is
what the serve health endpoint reads. The run report is emailed to
REPORT_RECIPIENT when configured.`,
	Example: `  # Full run
  billsync run`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("run")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	sum, err := r.Run(context.Background())
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if err := runlog.New(cfg.RunLogPath).Append(time.Now()); err != nil {
		log.Warn().Err(err).Str("path", cfg.RunLogPath).Msg("Run log append failed")
	}

	log.Info().
		Int("imported", sum.Imported).
		Int("generated", sum.Generated).
		Int("marked_paid", sum.MarkedPaid).
		Int("cancelled", sum.Cancelled).
		Int("reminded", sum.Reminded).
		Int("deferred", sum.Deferred).
		Int("errors", sum.Errors).
		Msg("Full run completed")
	return nil
}
