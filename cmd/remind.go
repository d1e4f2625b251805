package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"billsync/internal/logger"
)

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Send payment reminders for pending invoices due this month",
	Long: `Send payment reminders for pending invoices due this month.

Reminders go out two days before the due date, on the due date, and
daily while overdue, over chat and email. Billing is consulted live
before each reminder so settled or cancelled invoices are never
chased; at most one reminder per record per day.

Chat and email channels are optional: configure CHAT_TOKEN and
CHAT_SENDER_ID for chat, EMAIL_API_KEY and EMAIL_FROM for email.`,
	Example: `  # Send reminders for the current month
  billsync remind`,
	RunE: runRemind,
}

func init() {
	rootCmd.AddCommand(remindCmd)
}

func runRemind(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("remind")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	sum, err := r.RunPass(context.Background(), "remind")
	if err != nil {
		return fmt.Errorf("remind pass failed: %w", err)
	}

	log.Info().
		Int("reminded", sum.Reminded).
		Int("chat_sent", sum.ChatSent).
		Int("email_sent", sum.EmailSent).
		Int("deferred", sum.Deferred).
		Int("errors", sum.Errors).
		Msg("Remind pass completed")
	return nil
}
