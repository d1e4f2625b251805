package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"billsync/internal/logger"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Import billing invoices missing from the record store",
	Long: `Import billing invoices missing from the record store.

Lists every invoice in the configured date window and creates a store
record for each invoice the store has never seen. Cancelled invoices
are skipped. Contact details absent from the invoice are filled from
other records of the same debtor when available.

Required environment variables:
  STORE_BASE_URL, STORE_TOKEN, STORE_TABLE_ID - record store access
  BILLING_BASE_URL, BILLING_CLIENT_ID - billing provider access
  BILLING_CERT_FILE / BILLING_CERT_PEM - client certificate (mTLS)
  BILLING_KEY_FILE / BILLING_KEY_PEM - unencrypted private key`,
	Example: `  # Import with the configured window
  billsync pull`,
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("pull")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	from, to := cfg.Window()
	log.Info().
		Str("window_start", from.Format("2006-01-02")).
		Str("window_end", to.Format("2006-01-02")).
		Msg("Starting import pass")

	sum, err := r.RunPass(context.Background(), "import")
	if err != nil {
		return fmt.Errorf("import pass failed: %w", err)
	}

	log.Info().
		Int("imported", sum.Imported).
		Int("skipped", sum.Skipped).
		Int("errors", sum.Errors).
		Msg("Import pass completed")
	return nil
}
