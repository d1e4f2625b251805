// Package runner orchestrates the synchronization passes.
//
// A run authenticates one billing session, then walks the passes in a
// fixed order: import, generate, settle, cancel, remind. Each pass
// drains its own store query and applies per-record corrections;
// record-level failures are counted and logged, never fatal. Only
// transport or auth failures detected before record processing abort
// the run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"billsync/internal/billing"
	"billsync/internal/generate"
	"billsync/internal/logger"
	"billsync/internal/notify"
	"billsync/internal/recon"
	"billsync/internal/store"
	"billsync/pkg/models"
)

// Store is the slice of the store client the runner uses.
type Store interface {
	ListRecords(ctx context.Context, filter store.Filter) ([]models.InvoiceRecord, int, error)
	CreateRecord(ctx context.Context, rec models.InvoiceRecord) error
	MarkPaid(ctx context.Context, rowID string) error
	MarkGenerated(ctx context.Context, rowID, externalID, link, code string) error
	MarkGenerationError(ctx context.Context, rowID, reason string) error
	SetLastReminder(ctx context.Context, rowID string, day time.Time) error
}

// Billing is the slice of the billing client the runner uses.
type Billing interface {
	Authenticate(ctx context.Context) error
	GetInvoice(ctx context.Context, id string) (*billing.Invoice, error)
	CancelInvoice(ctx context.Context, id string) error
	ListInvoices(ctx context.Context, from, to time.Time) ([]billing.Invoice, error)
}

// InvoiceGenerator creates a billing invoice from a store record.
type InvoiceGenerator interface {
	Generate(ctx context.Context, rec models.InvoiceRecord) (*billing.Invoice, error)
}

// Notifier delivers reminders and the run report.
type Notifier interface {
	SendReminder(ctx context.Context, rec models.InvoiceRecord, kind recon.ReminderKind, overdueDays int) notify.Result
	SendReport(ctx context.Context, recipient string, stats notify.ReportStats) error
}

// Summary carries the counters of one run (or one pass).
type Summary struct {
	Imported         int      `json:"imported"`
	Generated        int      `json:"generated"`
	GenerationErrors int      `json:"generation_errors"`
	MarkedPaid       int      `json:"marked_paid"`
	Cancelled        int      `json:"cancelled"`
	Reminded         int      `json:"reminded"`
	ChatSent         int      `json:"chat_sent"`
	EmailSent        int      `json:"email_sent"`
	Processed        int      `json:"processed"`
	Skipped          int      `json:"skipped"`
	Deferred         int      `json:"deferred"`
	Errors           int      `json:"errors"`
	NoPhone          []string `json:"no_phone,omitempty"`
}

// Options configures a Runner.
type Options struct {
	WindowFrom      time.Time
	WindowTo        time.Time
	ReportRecipient string
	NotifyDelay     time.Duration

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Runner executes synchronization passes against the injected clients.
type Runner struct {
	store    Store
	billing  Billing
	gen      InvoiceGenerator
	notifier Notifier
	opts     Options
	log      zerolog.Logger
}

// New builds a runner.
func New(st Store, bl Billing, gen InvoiceGenerator, nt Notifier, opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		store:    st,
		billing:  bl,
		gen:      gen,
		notifier: nt,
		opts:     opts,
		log:      logger.WithComponent("runner"),
	}
}

// Run executes the full pass sequence and returns the combined
// summary. The summary is valid even on error: it reflects everything
// done before the abort.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	const op = "Run"
	var sum Summary

	runID := uuid.NewString()[:8]
	r.log = logger.WithRun("runner", runID)

	started := r.opts.Now()
	r.log.Info().Time("started", started).Msg("Run starting")

	// The summary is emitted even when a pass aborts the run.
	defer func() {
		r.log.Info().
			Int("imported", sum.Imported).
			Int("generated", sum.Generated).
			Int("marked_paid", sum.MarkedPaid).
			Int("cancelled", sum.Cancelled).
			Int("reminded", sum.Reminded).
			Int("deferred", sum.Deferred).
			Int("errors", sum.Errors).
			Msg("Run finished")
	}()

	if err := r.billing.Authenticate(ctx); err != nil {
		return sum, fmt.Errorf("%s: %w", op, err)
	}

	passes := []struct {
		name string
		fn   func(context.Context, *Summary) error
	}{
		{"import", r.Import},
		{"generate", r.Generate},
		{"settle", r.Settle},
		{"cancel", r.Cancel},
		{"remind", r.Remind},
	}
	for _, p := range passes {
		if err := p.fn(ctx, &sum); err != nil {
			return sum, fmt.Errorf("%s: %s pass: %w", op, p.name, err)
		}
	}

	if err := r.notifier.SendReport(ctx, r.opts.ReportRecipient, notify.ReportStats{
		Processed:  sum.Processed,
		ChatSent:   sum.ChatSent,
		EmailSent:  sum.EmailSent,
		Errors:     sum.Errors,
		NoPhone:    sum.NoPhone,
		RunStarted: started.UTC().Format(time.RFC3339),
	}); err != nil {
		r.log.Warn().Err(err).Msg("Run report email failed")
	}

	return sum, nil
}

// RunPass authenticates and executes a single named pass. Valid names
// are import, generate, settle, cancel and remind.
func (r *Runner) RunPass(ctx context.Context, name string) (Summary, error) {
	const op = "RunPass"
	var sum Summary

	var fn func(context.Context, *Summary) error
	switch name {
	case "import":
		fn = r.Import
	case "generate":
		fn = r.Generate
	case "settle":
		fn = r.Settle
	case "cancel":
		fn = r.Cancel
	case "remind":
		fn = r.Remind
	default:
		return sum, fmt.Errorf("%s: unknown pass %q", op, name)
	}

	if err := r.billing.Authenticate(ctx); err != nil {
		return sum, fmt.Errorf("%s: %w", op, err)
	}
	if err := fn(ctx, &sum); err != nil {
		return sum, fmt.Errorf("%s: %s pass: %w", op, name, err)
	}
	return sum, nil
}

// Import mirrors billing invoices that have no store record. Cancelled
// invoices are never imported. Contact details missing from the
// invoice are filled from other records of the same debtor.
func (r *Runner) Import(ctx context.Context, sum *Summary) error {
	const op = "Import"
	log := r.log.With().Str("pass", "import").Logger()

	invoices, err := r.billing.ListInvoices(ctx, r.opts.WindowFrom, r.opts.WindowTo)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	records, skipped, err := r.store.ListRecords(ctx, store.Filter{})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	sum.Skipped += skipped

	known := make(map[string]struct{}, len(records))
	phoneByTaxID := make(map[string]string)
	phoneByEmail := make(map[string]string)
	for _, rec := range records {
		if rec.ExternalID != "" {
			known[rec.ExternalID] = struct{}{}
		}
		if rec.Phone == "" {
			continue
		}
		if d := models.Digits(rec.TaxID); d != "" {
			phoneByTaxID[d] = rec.Phone
		}
		if rec.Email != "" {
			phoneByEmail[rec.Email] = rec.Phone
		}
	}

	for _, inv := range invoices {
		decision := recon.Decide(recon.Input{
			HasRecord:     false,
			HasInvoice:    true,
			BillingStatus: inv.Status(),
		})
		if _, ok := known[inv.ID]; ok || decision.Action != recon.ActionCreateRecord {
			continue
		}
		if inv.Status() == billing.StatusCancelled {
			continue
		}

		rec, err := recordFromInvoice(inv)
		if err != nil {
			sum.Skipped++
			log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("Skipping malformed billing invoice")
			continue
		}
		if rec.Phone == "" {
			if p, ok := phoneByTaxID[models.Digits(rec.TaxID)]; ok {
				rec.Phone = p
			} else if p, ok := phoneByEmail[rec.Email]; ok && rec.Email != "" {
				rec.Phone = p
			}
		}

		if err := r.store.CreateRecord(ctx, rec); err != nil {
			sum.Errors++
			log.Error().Err(err).Str("invoice_id", inv.ID).Msg("Record creation failed")
			continue
		}
		sum.Imported++
		log.Info().Str("invoice_id", inv.ID).Str("debtor", rec.DebtorName).Msg("Invoice imported")
	}

	log.Info().Int("invoices", len(invoices)).Int("imported", sum.Imported).Msg("Import pass done")
	return nil
}

// recordFromInvoice builds the store mirror of a billing invoice. An
// unparseable due date is an error: a record without a due date can
// never be reminded.
func recordFromInvoice(inv billing.Invoice) (models.InvoiceRecord, error) {
	status := models.StatusPending
	if inv.Status() == billing.StatusPaid {
		status = models.StatusPaid
	}

	due, err := time.Parse("2006-01-02", inv.DueDate)
	if err != nil {
		return models.InvoiceRecord{}, fmt.Errorf("invalid due date %q: %w", inv.DueDate, err)
	}

	label := ""
	if len(inv.Services) > 0 {
		label = inv.Services[0].Name
	}

	return models.InvoiceRecord{
		ExternalID:       inv.ID,
		DebtorName:       inv.Customer.Name,
		TaxID:            inv.Customer.Document.Identity,
		Email:            inv.Customer.Email,
		Phone:            inv.Customer.PhoneNumber,
		DueDate:          due,
		AmountCents:      inv.TotalCents,
		HasAmount:        true,
		InstallmentLabel: label,
		PaymentLink:      inv.PaymentLink(),
		PaymentCode:      inv.Pix.Emv,
		Status:           status,
		GenerationStatus: models.Generated,
	}, nil
}

// Generate creates billing invoices for records flagged as awaiting
// generation. Validation failures and provider rejections are written
// back to the record's error marker instead of failing the pass.
func (r *Runner) Generate(ctx context.Context, sum *Summary) error {
	const op = "Generate"
	log := r.log.With().Str("pass", "generate").Logger()

	records, skipped, err := r.store.ListRecords(ctx, store.FilterGenerationStatus(models.NeedsGeneration))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	sum.Skipped += skipped

	for _, rec := range records {
		if rec.ExternalID != "" {
			log.Warn().Str("row_id", rec.StoreID).Msg("Record already linked to an invoice, skipping generation")
			continue
		}

		inv, err := r.gen.Generate(ctx, rec)
		if err != nil {
			sum.GenerationErrors++
			var verr *generate.ValidationError
			if errors.As(err, &verr) {
				log.Warn().Str("row_id", rec.StoreID).Strs("fields", verr.Fields).Msg("Record incomplete for generation")
			} else {
				log.Error().Err(err).Str("row_id", rec.StoreID).Msg("Invoice creation failed")
			}
			if merr := r.store.MarkGenerationError(ctx, rec.StoreID, err.Error()); merr != nil {
				sum.Errors++
				log.Error().Err(merr).Str("row_id", rec.StoreID).Msg("Writing generation error failed")
			}
			continue
		}

		if err := r.store.MarkGenerated(ctx, rec.StoreID, inv.ID, inv.PaymentLink(), inv.Pix.Emv); err != nil {
			sum.Errors++
			log.Error().Err(err).Str("row_id", rec.StoreID).Str("invoice_id", inv.ID).
				Msg("Invoice created but store update failed; a later import will mirror it as a new record")
			continue
		}
		sum.Generated++
		log.Info().Str("row_id", rec.StoreID).Str("invoice_id", inv.ID).Msg("Invoice generated")
	}

	log.Info().Int("candidates", len(records)).Int("generated", sum.Generated).Msg("Generate pass done")
	return nil
}

// Settle marks store records paid when billing reports the payment.
func (r *Runner) Settle(ctx context.Context, sum *Summary) error {
	const op = "Settle"
	log := r.log.With().Str("pass", "settle").Logger()

	records, skipped, err := r.store.ListRecords(ctx, store.FilterStatus(models.StatusPending))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	sum.Skipped += skipped

	for _, rec := range records {
		if rec.ExternalID == "" {
			continue
		}

		inv, err := r.billing.GetInvoice(ctx, rec.ExternalID)
		if err != nil {
			r.countLookupFailure(log, rec, err, sum)
			continue
		}

		decision := recon.Decide(recon.Input{
			HasRecord:        true,
			StoreStatus:      rec.Status,
			GenerationStatus: rec.GenerationStatus,
			HasInvoice:       true,
			BillingStatus:    inv.Status(),
		})
		if decision.Action != recon.ActionMarkPaidInStore {
			continue
		}

		if err := r.store.MarkPaid(ctx, rec.StoreID); err != nil {
			sum.Errors++
			log.Error().Err(err).Str("row_id", rec.StoreID).Msg("Marking record paid failed")
			continue
		}
		sum.MarkedPaid++
		log.Info().Str("row_id", rec.StoreID).Str("invoice_id", rec.ExternalID).Msg("Record marked paid")
	}

	log.Info().Int("pending", len(records)).Int("marked_paid", sum.MarkedPaid).Msg("Settle pass done")
	return nil
}

// Cancel force-cancels billing invoices whose store record is already
// resolved.
func (r *Runner) Cancel(ctx context.Context, sum *Summary) error {
	const op = "Cancel"
	log := r.log.With().Str("pass", "cancel").Logger()

	var resolved []models.InvoiceRecord
	for _, status := range []models.Status{models.StatusPaid, models.StatusCancelled} {
		records, skipped, err := r.store.ListRecords(ctx, store.FilterStatus(status))
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		sum.Skipped += skipped
		resolved = append(resolved, records...)
	}

	for _, rec := range resolved {
		if rec.ExternalID == "" {
			continue
		}

		inv, err := r.billing.GetInvoice(ctx, rec.ExternalID)
		if err != nil {
			r.countLookupFailure(log, rec, err, sum)
			continue
		}

		decision := recon.Decide(recon.Input{
			HasRecord:        true,
			StoreStatus:      rec.Status,
			GenerationStatus: rec.GenerationStatus,
			HasInvoice:       true,
			BillingStatus:    inv.Status(),
		})
		if decision.Action != recon.ActionCancelInBilling {
			continue
		}

		if err := r.billing.CancelInvoice(ctx, rec.ExternalID); err != nil {
			sum.Errors++
			log.Error().Err(err).Str("invoice_id", rec.ExternalID).Msg("Invoice cancellation failed")
			continue
		}
		sum.Cancelled++
		log.Info().Str("row_id", rec.StoreID).Str("invoice_id", rec.ExternalID).Msg("Invoice cancelled in billing")
	}

	log.Info().Int("resolved", len(resolved)).Int("cancelled", sum.Cancelled).Msg("Cancel pass done")
	return nil
}

// Remind sends payment reminders for pending records due this month.
// Billing is consulted live before every reminder: a payment or
// cancellation billing already knows about short-circuits the
// reminder, and a record resolved in the store while billing still
// collects is cancelled instead of reminded.
func (r *Runner) Remind(ctx context.Context, sum *Summary) error {
	const op = "Remind"
	log := r.log.With().Str("pass", "remind").Logger()

	now := r.opts.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)

	records, skipped, err := r.store.ListRecords(ctx, store.FilterPendingDueBetween(monthStart, monthEnd))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	sum.Skipped += skipped

	for i, rec := range records {
		if rec.ExternalID == "" {
			continue
		}
		sum.Processed++

		inv, err := r.billing.GetInvoice(ctx, rec.ExternalID)
		if err != nil {
			r.countLookupFailure(log, rec, err, sum)
			continue
		}

		decision := recon.Decide(recon.Input{
			HasRecord:        true,
			StoreStatus:      rec.Status,
			GenerationStatus: rec.GenerationStatus,
			HasInvoice:       true,
			BillingStatus:    inv.Status(),
			DueOffsetDays:    models.DaysUntil(rec.DueDate, now),
			LastReminder:     rec.LastReminder,
			Today:            now,
		})

		switch decision.Action {
		case recon.ActionMarkPaidInStore:
			if err := r.store.MarkPaid(ctx, rec.StoreID); err != nil {
				sum.Errors++
				log.Error().Err(err).Str("row_id", rec.StoreID).Msg("Marking record paid failed")
				continue
			}
			sum.MarkedPaid++
			log.Info().Str("row_id", rec.StoreID).Msg("Payment detected before reminder, record marked paid")

		case recon.ActionCancelInBilling:
			if err := r.billing.CancelInvoice(ctx, rec.ExternalID); err != nil {
				sum.Errors++
				log.Error().Err(err).Str("invoice_id", rec.ExternalID).Msg("Invoice cancellation failed")
				continue
			}
			sum.Cancelled++

		case recon.ActionNotify:
			if _, ok := models.NormalizePhone(rec.Phone); !ok {
				sum.NoPhone = append(sum.NoPhone, rec.DebtorName)
			}

			res := r.notifier.SendReminder(ctx, rec, decision.Reminder, decision.OverdueDays)
			if res.ChatSent {
				sum.ChatSent++
			}
			if res.EmailSent {
				sum.EmailSent++
			}
			if !res.Delivered() {
				sum.Errors++
				log.Warn().Str("row_id", rec.StoreID).Msg("Reminder failed on every channel")
				continue
			}

			if err := r.store.SetLastReminder(ctx, rec.StoreID, now); err != nil {
				sum.Errors++
				log.Error().Err(err).Str("row_id", rec.StoreID).Msg("Stamping reminder date failed")
				continue
			}
			sum.Reminded++
			log.Info().
				Str("row_id", rec.StoreID).
				Str("variant", decision.Reminder.String()).
				Int("overdue_days", decision.OverdueDays).
				Msg("Reminder sent")

			if r.opts.NotifyDelay > 0 && i < len(records)-1 {
				select {
				case <-ctx.Done():
					return fmt.Errorf("%s: %w", op, ctx.Err())
				case <-time.After(r.opts.NotifyDelay):
				}
			}
		}
	}

	log.Info().Int("candidates", len(records)).Int("reminded", sum.Reminded).Msg("Remind pass done")
	return nil
}

// countLookupFailure classifies a GetInvoice failure. An unknown
// lookup defers the record to the next run; the unknown status never
// reaches the decision engine.
func (r *Runner) countLookupFailure(log zerolog.Logger, rec models.InvoiceRecord, err error, sum *Summary) {
	switch {
	case errors.Is(err, billing.ErrNotFound):
		sum.Skipped++
		log.Warn().Str("invoice_id", rec.ExternalID).Msg("Invoice not found in billing, skipping record")
	case errors.Is(err, billing.ErrLookupUnknown):
		sum.Deferred++
		log.Warn().Err(err).Str("invoice_id", rec.ExternalID).Msg("Invoice status unknown, deferring record")
	default:
		sum.Errors++
		log.Error().Err(err).Str("invoice_id", rec.ExternalID).Msg("Invoice lookup failed")
	}
}
