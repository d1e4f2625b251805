package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"billsync/internal/logger"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel billing invoices whose store record is resolved",
	Long: `Cancel billing invoices whose store record is resolved.

Walks records marked paid or cancelled in the store and force-cancels
their billing invoice when the provider still considers it
collectible. Resolution in the store always wins over collection.`,
	Example: `  # Cancel stale collectible invoices
  billsync cancel`,
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cancel")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	sum, err := r.RunPass(context.Background(), "cancel")
	if err != nil {
		return fmt.Errorf("cancel pass failed: %w", err)
	}

	log.Info().
		Int("cancelled", sum.Cancelled).
		Int("deferred", sum.Deferred).
		Int("errors", sum.Errors).
		Msg("Cancel pass completed")
	return nil
}
