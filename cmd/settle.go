package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"billsync/internal/logger"
)

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Mark store records paid when billing reports payment",
	Long: `Mark store records paid when billing reports payment.

Checks each pending record's live invoice status with the billing
provider and flips the record to paid when the provider settled it.
Records whose status lookup fails are deferred to the next run.`,
	Example: `  # Settle pending records
  billsync settle`,
	RunE: runSettle,
}

func init() {
	rootCmd.AddCommand(settleCmd)
}

func runSettle(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("settle")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	sum, err := r.RunPass(context.Background(), "settle")
	if err != nil {
		return fmt.Errorf("settle pass failed: %w", err)
	}

	log.Info().
		Int("marked_paid", sum.MarkedPaid).
		Int("deferred", sum.Deferred).
		Int("errors", sum.Errors).
		Msg("Settle pass completed")
	return nil
}
