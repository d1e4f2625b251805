package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"billsync/internal/config"
	"billsync/internal/logger"
	"billsync/internal/runlog"
	"billsync/internal/runner"
	"billsync/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP trigger endpoints",
	Long: `Serve the HTTP trigger endpoints.

Endpoints:
  GET  /                 readiness probe (no auth)
  POST /runs             trigger a full run (auth)
  GET  /status/last-run  health of the last completed run (auth)

Authenticated endpoints accept the shared secret from the X-API-Key
header or the secret query parameter; set API_SECRET to enable them.
Triggered runs are serialized: concurrent triggers wait their turn.`,
	Example: `  # Serve on the configured address
  billsync serve

  # Trigger a run
  curl -X POST -H "X-API-Key: $API_SECRET" http://localhost:3333/runs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.APISecret == "" {
		return fmt.Errorf("API_SECRET is required to serve trigger endpoints")
	}

	rlog := runlog.New(cfg.RunLogPath)
	run := func(ctx context.Context) (runner.Summary, error) {
		// A fresh runner per trigger: the billing session token is
		// scoped to one run.
		r, err := buildRunner(cfg)
		if err != nil {
			return runner.Summary{}, err
		}
		return r.Run(ctx)
	}

	srv := server.New(run, rlog, server.Options{
		ListenAddr:   cfg.ListenAddr,
		APISecret:    cfg.APISecret,
		StatusWindow: cfg.StatusWindow,
		Ready:        readyCheck(cfg),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("addr", cfg.ListenAddr).Msg("Starting trigger server")
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}

// readyCheck verifies the billing certificate material is present
// without opening a billing session.
func readyCheck(cfg *config.Config) func() error {
	return func() error {
		if cfg.BillingCertPEM != "" && cfg.BillingKeyPEM != "" {
			return nil
		}
		if _, err := os.Stat(cfg.BillingCertFile); err != nil {
			return fmt.Errorf("billing certificate unavailable: %w", err)
		}
		if _, err := os.Stat(cfg.BillingKeyFile); err != nil {
			return fmt.Errorf("billing private key unavailable: %w", err)
		}
		return nil
	}
}
