package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"billsync/internal/logger"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create billing invoices for records awaiting generation",
	Long: `Create billing invoices for records awaiting generation.

Scans the store for records flagged as needing generation, validates
each one, and creates its billing invoice. Incomplete records get the
field list written to their error marker; successful creations link
the invoice identifier, payment URL and code back to the record.`,
	Example: `  # Generate invoices for flagged records
  billsync generate`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("generate")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	sum, err := r.RunPass(context.Background(), "generate")
	if err != nil {
		return fmt.Errorf("generate pass failed: %w", err)
	}

	log.Info().
		Int("generated", sum.Generated).
		Int("generation_errors", sum.GenerationErrors).
		Msg("Generate pass completed")
	return nil
}
