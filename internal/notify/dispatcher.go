// Package notify delivers payment reminders over chat and email and
// sends the end-of-run report. Channel failures are independent: a
// reminder counts as delivered when at least one channel accepted it.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"billsync/internal/logger"
	"billsync/internal/recon"
	"billsync/pkg/models"
)

// ChatSender delivers a text message to a phone number.
type ChatSender interface {
	Send(ctx context.Context, phone, message string) error
}

// EmailSender delivers one HTML email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Result reports per-channel delivery of one reminder.
type Result struct {
	ChatSent  bool
	EmailSent bool
}

// Delivered is true when at least one channel accepted the message.
func (r Result) Delivered() bool { return r.ChatSent || r.EmailSent }

// Dispatcher fans a reminder out to the configured channels.
type Dispatcher struct {
	chat  ChatSender
	email EmailSender
	log   zerolog.Logger
}

// NewDispatcher builds a dispatcher. Either channel may be nil when
// not configured.
func NewDispatcher(chat ChatSender, email EmailSender) *Dispatcher {
	return &Dispatcher{
		chat:  chat,
		email: email,
		log:   logger.WithComponent("notify"),
	}
}

// SendReminder delivers the reminder variant to every configured
// channel the record can receive. A record without a usable phone
// number skips the chat channel without failing.
func (d *Dispatcher) SendReminder(ctx context.Context, rec models.InvoiceRecord, kind recon.ReminderKind, overdueDays int) Result {
	var res Result

	phone, phoneOK := models.NormalizePhone(rec.Phone)
	if d.chat != nil && phoneOK {
		msg := chatMessage(rec, kind, overdueDays)
		if err := d.chat.Send(ctx, phone, msg); err != nil {
			d.log.Warn().Err(err).Str("debtor", rec.DebtorName).Msg("Chat reminder failed")
		} else {
			res.ChatSent = true
		}
	} else if d.chat != nil {
		d.log.Info().Str("debtor", rec.DebtorName).Msg("No usable phone number, skipping chat channel")
	}

	if d.email != nil && rec.Email != "" {
		subject, html := emailMessage(rec, kind, overdueDays)
		if err := d.email.Send(ctx, rec.Email, subject, html); err != nil {
			d.log.Warn().Err(err).Str("debtor", rec.DebtorName).Msg("Email reminder failed")
		} else {
			res.EmailSent = true
		}
	}

	return res
}

// ReportStats is the summary carried by the run report email.
type ReportStats struct {
	Processed  int
	ChatSent   int
	EmailSent  int
	Errors     int
	NoPhone    []string
	RunStarted string
}

// SendReport emails the run summary to the operations recipient.
// No-op when the dispatcher has no email channel or recipient is
// empty.
func (d *Dispatcher) SendReport(ctx context.Context, recipient string, stats ReportStats) error {
	if d.email == nil || recipient == "" {
		return nil
	}

	var b strings.Builder
	b.WriteString("<h2>📋 Relatório de Lembretes de Pagamento</h2>")
	fmt.Fprintf(&b, "<p>Execução iniciada em %s</p>", stats.RunStarted)
	b.WriteString("<ul>")
	fmt.Fprintf(&b, "<li>Cobranças processadas: <strong>%d</strong></li>", stats.Processed)
	fmt.Fprintf(&b, "<li>Mensagens de chat enviadas: <strong>%d</strong></li>", stats.ChatSent)
	fmt.Fprintf(&b, "<li>Emails enviados: <strong>%d</strong></li>", stats.EmailSent)
	fmt.Fprintf(&b, "<li>Erros: <strong>%d</strong></li>", stats.Errors)
	b.WriteString("</ul>")

	if len(stats.NoPhone) > 0 {
		b.WriteString("<h3>⚠️ Sem telefone cadastrado</h3><ul>")
		for _, name := range stats.NoPhone {
			fmt.Fprintf(&b, "<li>%s</li>", name)
		}
		b.WriteString("</ul>")
	}

	subject := fmt.Sprintf("📋 Relatório de Lembretes — %d processadas, %d erros", stats.Processed, stats.Errors)
	if err := d.email.Send(ctx, recipient, subject, b.String()); err != nil {
		return fmt.Errorf("SendReport: %w", err)
	}
	return nil
}
