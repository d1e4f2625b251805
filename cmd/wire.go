package cmd

import (
	"fmt"

	"billsync/internal/address"
	"billsync/internal/billing"
	"billsync/internal/config"
	"billsync/internal/generate"
	"billsync/internal/notify"
	"billsync/internal/runner"
	"billsync/internal/store"
)

// buildRunner wires the clients a synchronization run needs from the
// environment configuration. Notification channels missing credentials
// are left nil; the dispatcher treats them as not configured.
func buildRunner(cfg *config.Config) (*runner.Runner, error) {
	st := store.NewClient(cfg.StoreBaseURL, cfg.StoreToken, cfg.StoreTableID)

	bl, err := billing.NewClient(cfg.BillingBaseURL, billing.Credentials{
		ClientID: cfg.BillingClientID,
		CertFile: cfg.BillingCertFile,
		KeyFile:  cfg.BillingKeyFile,
		CertPEM:  cfg.BillingCertPEM,
		KeyPEM:   cfg.BillingKeyPEM,
	})
	if err != nil {
		return nil, fmt.Errorf("billing client: %w", err)
	}

	gen := generate.NewGenerator(bl, address.NewLookup(cfg.PostalAPIBaseURL))

	var chat notify.ChatSender
	if cfg.ChatToken != "" && cfg.ChatSenderID != "" {
		chat = notify.NewChatClient(cfg.ChatAPIBaseURL, cfg.ChatToken, cfg.ChatSenderID)
	}
	var email notify.EmailSender
	if cfg.EmailAPIKey != "" && cfg.EmailFrom != "" {
		email = notify.NewEmailClient(cfg.EmailAPIBaseURL, cfg.EmailAPIKey, cfg.EmailFrom)
	}

	from, to := cfg.Window()
	return runner.New(st, bl, gen, notify.NewDispatcher(chat, email), runner.Options{
		WindowFrom:      from,
		WindowTo:        to,
		ReportRecipient: cfg.ReportRecipient,
		NotifyDelay:     cfg.NotifyDelay,
	}), nil
}

// loadConfig loads and validates the environment configuration for a
// subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	return cfg, nil
}
