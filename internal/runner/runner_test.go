package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billsync/internal/billing"
	"billsync/internal/generate"
	"billsync/internal/notify"
	"billsync/internal/recon"
	"billsync/internal/store"
	"billsync/pkg/models"
)

// fakeStore keeps records in memory and answers filters the way the
// passes use them.
type fakeStore struct {
	records map[string]*models.InvoiceRecord
	created []models.InvoiceRecord
	nextID  int

	failMarkPaid bool
}

func newFakeStore(records ...models.InvoiceRecord) *fakeStore {
	fs := &fakeStore{records: map[string]*models.InvoiceRecord{}}
	for i := range records {
		rec := records[i]
		fs.records[rec.StoreID] = &rec
	}
	return fs
}

func (f *fakeStore) ListRecords(_ context.Context, filter store.Filter) ([]models.InvoiceRecord, int, error) {
	var out []models.InvoiceRecord
	for _, rec := range f.records {
		if matchesFilter(filter, *rec) {
			out = append(out, *rec)
		}
	}
	return out, 0, nil
}

// matchesFilter interprets the filter constructors the passes use.
func matchesFilter(filter store.Filter, rec models.InvoiceRecord) bool {
	if len(filter.And) > 0 {
		for _, sub := range filter.And {
			if !matchesFilter(sub, rec) {
				return false
			}
		}
		return true
	}
	if filter.Property == "" {
		return true
	}
	if filter.Select != nil {
		switch filter.Select.Equals {
		case rec.Status.StoreLabel():
			return filter.Property == "Status"
		case rec.GenerationStatus.StoreLabel():
			return filter.Property == "Status Geração"
		}
		return false
	}
	if filter.Date != nil {
		day := rec.DueDate.UTC().Format("2006-01-02")
		if filter.Date.OnOrAfter != "" && day < filter.Date.OnOrAfter {
			return false
		}
		if filter.Date.OnOrBefore != "" && day > filter.Date.OnOrBefore {
			return false
		}
		return true
	}
	return false
}

func (f *fakeStore) CreateRecord(_ context.Context, rec models.InvoiceRecord) error {
	f.nextID++
	rec.StoreID = fmt.Sprintf("new-%d", f.nextID)
	f.records[rec.StoreID] = &rec
	f.created = append(f.created, rec)
	return nil
}

func (f *fakeStore) MarkPaid(_ context.Context, rowID string) error {
	if f.failMarkPaid {
		return errors.New("store write failed")
	}
	f.records[rowID].Status = models.StatusPaid
	return nil
}

func (f *fakeStore) MarkGenerated(_ context.Context, rowID, externalID, link, code string) error {
	rec := f.records[rowID]
	rec.ExternalID = externalID
	rec.PaymentLink = link
	rec.PaymentCode = code
	rec.GenerationStatus = models.Generated
	rec.Status = models.StatusPending
	return nil
}

func (f *fakeStore) MarkGenerationError(_ context.Context, rowID, reason string) error {
	rec := f.records[rowID]
	rec.GenerationStatus = models.GenerationError
	return nil
}

func (f *fakeStore) SetLastReminder(_ context.Context, rowID string, day time.Time) error {
	d := day
	f.records[rowID].LastReminder = &d
	return nil
}

// fakeBilling serves invoices from memory.
type fakeBilling struct {
	invoices  map[string]*billing.Invoice
	authErr   error
	lookupErr map[string]error
	cancelled []string
}

func newFakeBilling(invoices ...billing.Invoice) *fakeBilling {
	fb := &fakeBilling{invoices: map[string]*billing.Invoice{}, lookupErr: map[string]error{}}
	for i := range invoices {
		inv := invoices[i]
		fb.invoices[inv.ID] = &inv
	}
	return fb
}

func (f *fakeBilling) Authenticate(context.Context) error { return f.authErr }

func (f *fakeBilling) GetInvoice(_ context.Context, id string) (*billing.Invoice, error) {
	if err, ok := f.lookupErr[id]; ok {
		return nil, err
	}
	inv, ok := f.invoices[id]
	if !ok {
		return nil, fmt.Errorf("id %s: %w", id, billing.ErrNotFound)
	}
	return inv, nil
}

func (f *fakeBilling) CancelInvoice(_ context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	f.invoices[id].RawStatus = "CANCELLED"
	return nil
}

func (f *fakeBilling) ListInvoices(context.Context, time.Time, time.Time) ([]billing.Invoice, error) {
	var out []billing.Invoice
	for _, inv := range f.invoices {
		out = append(out, *inv)
	}
	return out, nil
}

type fakeGenerator struct {
	invoice *billing.Invoice
	err     error
	calls   int
}

func (f *fakeGenerator) Generate(context.Context, models.InvoiceRecord) (*billing.Invoice, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.invoice, nil
}

type fakeNotifier struct {
	reminders []recon.ReminderKind
	overdue   []int
	result    notify.Result
	reports   []notify.ReportStats
}

func (f *fakeNotifier) SendReminder(_ context.Context, _ models.InvoiceRecord, kind recon.ReminderKind, overdueDays int) notify.Result {
	f.reminders = append(f.reminders, kind)
	f.overdue = append(f.overdue, overdueDays)
	return f.result
}

func (f *fakeNotifier) SendReport(_ context.Context, _ string, stats notify.ReportStats) error {
	f.reports = append(f.reports, stats)
	return nil
}

func testRunner(st *fakeStore, bl *fakeBilling, gen *fakeGenerator, nt *fakeNotifier, now time.Time) *Runner {
	return New(st, bl, gen, nt, Options{
		WindowFrom:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		WindowTo:        time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		ReportRecipient: "ops@example.com",
		Now:             func() time.Time { return now },
	})
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestImportCreatesMissingRecords(t *testing.T) {
	st := newFakeStore(models.InvoiceRecord{
		StoreID:    "row-1",
		ExternalID: "inv_known",
		Status:     models.StatusPending,
	})
	bl := newFakeBilling(
		billing.Invoice{ID: "inv_known", RawStatus: "OPEN"},
		billing.Invoice{ID: "inv_new", RawStatus: "OPEN", DueDate: "2026-03-20", TotalCents: 19990,
			Customer: billing.Customer{Name: "Ana Lima", Document: billing.Document{Identity: "98765432100"}}},
		billing.Invoice{ID: "inv_dead", RawStatus: "CANCELLED"},
	)
	r := testRunner(st, bl, &fakeGenerator{}, &fakeNotifier{}, testNow)

	var sum Summary
	require.NoError(t, r.Import(context.Background(), &sum))

	assert.Equal(t, 1, sum.Imported)
	require.Len(t, st.created, 1)
	rec := st.created[0]
	assert.Equal(t, "inv_new", rec.ExternalID)
	assert.Equal(t, "Ana Lima", rec.DebtorName)
	assert.Equal(t, int64(19990), rec.AmountCents)
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.Equal(t, models.Generated, rec.GenerationStatus)
}

func TestImportFillsPhoneFromKnownDebtor(t *testing.T) {
	st := newFakeStore(models.InvoiceRecord{
		StoreID:    "row-1",
		ExternalID: "inv_old",
		TaxID:      "98765432100",
		Phone:      "+5511987654321",
		Status:     models.StatusPaid,
	})
	bl := newFakeBilling(
		billing.Invoice{ID: "inv_old", RawStatus: "PAID"},
		billing.Invoice{ID: "inv_new", RawStatus: "OPEN", DueDate: "2026-04-10",
			Customer: billing.Customer{Name: "Ana Lima", Document: billing.Document{Identity: "987.654.321-00"}}},
	)
	r := testRunner(st, bl, &fakeGenerator{}, &fakeNotifier{}, testNow)

	var sum Summary
	require.NoError(t, r.Import(context.Background(), &sum))

	require.Len(t, st.created, 1)
	assert.Equal(t, "+5511987654321", st.created[0].Phone)
}

func TestImportSkipsMalformedDueDate(t *testing.T) {
	st := newFakeStore()
	bl := newFakeBilling(
		billing.Invoice{ID: "inv_bad", RawStatus: "OPEN", DueDate: "20/03/2026",
			Customer: billing.Customer{Name: "Ana Lima"}},
		billing.Invoice{ID: "inv_ok", RawStatus: "OPEN", DueDate: "2026-03-20",
			Customer: billing.Customer{Name: "João Silva"}},
	)
	r := testRunner(st, bl, &fakeGenerator{}, &fakeNotifier{}, testNow)

	var sum Summary
	require.NoError(t, r.Import(context.Background(), &sum))

	assert.Equal(t, 1, sum.Imported)
	assert.Equal(t, 1, sum.Skipped)
	require.Len(t, st.created, 1)
	assert.Equal(t, "inv_ok", st.created[0].ExternalID)
	assert.True(t, st.created[0].HasAmount)
}

func TestGeneratePass(t *testing.T) {
	st := newFakeStore(
		models.InvoiceRecord{StoreID: "row-1", GenerationStatus: models.NeedsGeneration},
		models.InvoiceRecord{StoreID: "row-2", GenerationStatus: models.Generated, Status: models.StatusPending, ExternalID: "inv_x"},
	)
	gen := &fakeGenerator{invoice: &billing.Invoice{
		ID:        "inv_gen",
		RawStatus: "OPEN",
		PaymentOptions: billing.PaymentOptions{
			BankSlip: billing.BankSlip{URL: "https://pay/1"},
		},
		Pix: billing.Pix{Emv: "pix-code"},
	}}
	r := testRunner(st, newFakeBilling(), gen, &fakeNotifier{}, testNow)

	var sum Summary
	require.NoError(t, r.Generate(context.Background(), &sum))

	assert.Equal(t, 1, sum.Generated)
	assert.Equal(t, 1, gen.calls)
	rec := st.records["row-1"]
	assert.Equal(t, "inv_gen", rec.ExternalID)
	assert.Equal(t, "https://pay/1", rec.PaymentLink)
	assert.Equal(t, models.Generated, rec.GenerationStatus)
	assert.Equal(t, models.StatusPending, rec.Status)
}

func TestGeneratePassValidationFailure(t *testing.T) {
	st := newFakeStore(models.InvoiceRecord{StoreID: "row-1", GenerationStatus: models.NeedsGeneration})
	gen := &fakeGenerator{err: &generate.ValidationError{Fields: []string{"email", "state"}}}
	r := testRunner(st, newFakeBilling(), gen, &fakeNotifier{}, testNow)

	var sum Summary
	require.NoError(t, r.Generate(context.Background(), &sum))

	assert.Equal(t, 1, sum.GenerationErrors)
	assert.Equal(t, models.GenerationError, st.records["row-1"].GenerationStatus)
}

func TestSettlePass(t *testing.T) {
	st := newFakeStore(
		models.InvoiceRecord{StoreID: "row-1", ExternalID: "inv_paid", Status: models.StatusPending},
		models.InvoiceRecord{StoreID: "row-2", ExternalID: "inv_open", Status: models.StatusPending},
		models.InvoiceRecord{StoreID: "row-3", ExternalID: "inv_flaky", Status: models.StatusPending},
	)
	bl := newFakeBilling(
		billing.Invoice{ID: "inv_paid", RawStatus: "PAID"},
		billing.Invoice{ID: "inv_open", RawStatus: "OPEN"},
	)
	bl.lookupErr["inv_flaky"] = fmt.Errorf("timeout: %w", billing.ErrLookupUnknown)
	r := testRunner(st, bl, &fakeGenerator{}, &fakeNotifier{}, testNow)

	var sum Summary
	require.NoError(t, r.Settle(context.Background(), &sum))

	assert.Equal(t, 1, sum.MarkedPaid)
	assert.Equal(t, 1, sum.Deferred)
	assert.Equal(t, models.StatusPaid, st.records["row-1"].Status)
	assert.Equal(t, models.StatusPending, st.records["row-2"].Status)
	assert.Equal(t, models.StatusPending, st.records["row-3"].Status)
}

func TestCancelPass(t *testing.T) {
	st := newFakeStore(
		models.InvoiceRecord{StoreID: "row-1", ExternalID: "inv_stale", Status: models.StatusPaid},
		models.InvoiceRecord{StoreID: "row-2", ExternalID: "inv_done", Status: models.StatusCancelled},
	)
	bl := newFakeBilling(
		billing.Invoice{ID: "inv_stale", RawStatus: "LATE"},
		billing.Invoice{ID: "inv_done", RawStatus: "CANCELLED"},
	)
	r := testRunner(st, bl, &fakeGenerator{}, &fakeNotifier{}, testNow)

	var sum Summary
	require.NoError(t, r.Cancel(context.Background(), &sum))

	assert.Equal(t, 1, sum.Cancelled)
	assert.Equal(t, []string{"inv_stale"}, bl.cancelled)
}

func TestRemindPassSendsAndStamps(t *testing.T) {
	due := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC) // 3 days overdue
	st := newFakeStore(models.InvoiceRecord{
		StoreID:    "row-1",
		ExternalID: "inv_late",
		Status:     models.StatusPending,
		DueDate:    due,
		Phone:      "+5511987654321",
		Email:      "maria@example.com",
	})
	bl := newFakeBilling(billing.Invoice{ID: "inv_late", RawStatus: "LATE"})
	nt := &fakeNotifier{result: notify.Result{ChatSent: true, EmailSent: true}}
	r := testRunner(st, bl, &fakeGenerator{}, nt, testNow)

	var sum Summary
	require.NoError(t, r.Remind(context.Background(), &sum))

	assert.Equal(t, 1, sum.Reminded)
	assert.Equal(t, 1, sum.ChatSent)
	assert.Equal(t, 1, sum.EmailSent)
	require.Len(t, nt.reminders, 1)
	assert.Equal(t, recon.ReminderOverdue, nt.reminders[0])

	rec := st.records["row-1"]
	require.NotNil(t, rec.LastReminder)
	assert.True(t, models.SameDate(*rec.LastReminder, testNow))
}

func TestRemindPassNoStampWhenAllChannelsFail(t *testing.T) {
	st := newFakeStore(models.InvoiceRecord{
		StoreID:    "row-1",
		ExternalID: "inv_late",
		Status:     models.StatusPending,
		DueDate:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	bl := newFakeBilling(billing.Invoice{ID: "inv_late", RawStatus: "OPEN"})
	nt := &fakeNotifier{result: notify.Result{}} // both channels fail
	r := testRunner(st, bl, &fakeGenerator{}, nt, testNow)

	var sum Summary
	require.NoError(t, r.Remind(context.Background(), &sum))

	assert.Equal(t, 0, sum.Reminded)
	assert.Equal(t, 1, sum.Errors)
	assert.Nil(t, st.records["row-1"].LastReminder)
}

func TestRemindPassPaidShortCircuit(t *testing.T) {
	st := newFakeStore(models.InvoiceRecord{
		StoreID:    "row-1",
		ExternalID: "inv_settled",
		Status:     models.StatusPending,
		DueDate:    time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	bl := newFakeBilling(billing.Invoice{ID: "inv_settled", RawStatus: "PAID"})
	nt := &fakeNotifier{result: notify.Result{ChatSent: true}}
	r := testRunner(st, bl, &fakeGenerator{}, nt, testNow)

	var sum Summary
	require.NoError(t, r.Remind(context.Background(), &sum))

	assert.Empty(t, nt.reminders)
	assert.Equal(t, 1, sum.MarkedPaid)
	assert.Equal(t, models.StatusPaid, st.records["row-1"].Status)
}

func TestRemindPassSuppressedSameDay(t *testing.T) {
	earlier := testNow.Add(-4 * time.Hour)
	st := newFakeStore(models.InvoiceRecord{
		StoreID:      "row-1",
		ExternalID:   "inv_late",
		Status:       models.StatusPending,
		DueDate:      time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		LastReminder: &earlier,
	})
	bl := newFakeBilling(billing.Invoice{ID: "inv_late", RawStatus: "LATE"})
	nt := &fakeNotifier{result: notify.Result{ChatSent: true}}
	r := testRunner(st, bl, &fakeGenerator{}, nt, testNow)

	var sum Summary
	require.NoError(t, r.Remind(context.Background(), &sum))

	assert.Empty(t, nt.reminders)
	assert.Equal(t, 0, sum.Reminded)
}

func TestRemindPassCollectsNoPhone(t *testing.T) {
	st := newFakeStore(models.InvoiceRecord{
		StoreID:    "row-1",
		ExternalID: "inv_late",
		DebtorName: "João Silva",
		Status:     models.StatusPending,
		DueDate:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Email:      "joao@example.com",
	})
	bl := newFakeBilling(billing.Invoice{ID: "inv_late", RawStatus: "OPEN"})
	nt := &fakeNotifier{result: notify.Result{EmailSent: true}}
	r := testRunner(st, bl, &fakeGenerator{}, nt, testNow)

	var sum Summary
	require.NoError(t, r.Remind(context.Background(), &sum))

	assert.Equal(t, []string{"João Silva"}, sum.NoPhone)
	assert.Equal(t, 1, sum.Reminded)
}

// An invoice unknown to the store is imported in one pass and, once
// overdue, reminded in a later pass without any manual stitching.
func TestImportThenRemindAcrossPasses(t *testing.T) {
	st := newFakeStore()
	bl := newFakeBilling(billing.Invoice{
		ID:         "inv_overdue",
		RawStatus:  "LATE",
		DueDate:    "2026-03-07", // 3 days overdue at testNow
		TotalCents: 19990,
		Customer: billing.Customer{
			Name:        "Ana Lima",
			PhoneNumber: "+5511987654321",
			Document:    billing.Document{Identity: "98765432100"},
		},
	})
	nt := &fakeNotifier{result: notify.Result{ChatSent: true}}
	r := testRunner(st, bl, &fakeGenerator{}, nt, testNow)

	var first Summary
	require.NoError(t, r.Import(context.Background(), &first))
	require.Equal(t, 1, first.Imported)

	var second Summary
	require.NoError(t, r.Remind(context.Background(), &second))

	assert.Equal(t, 1, second.Reminded)
	require.Len(t, nt.reminders, 1)
	assert.Equal(t, recon.ReminderOverdue, nt.reminders[0])
	assert.Equal(t, []int{3}, nt.overdue)
}

func TestRunAbortsOnAuthFailure(t *testing.T) {
	bl := newFakeBilling()
	bl.authErr = fmt.Errorf("handshake: %w", billing.ErrAuth)
	r := testRunner(newFakeStore(), bl, &fakeGenerator{}, &fakeNotifier{}, testNow)

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrAuth)
}

func TestRunSendsReport(t *testing.T) {
	st := newFakeStore(models.InvoiceRecord{
		StoreID:    "row-1",
		ExternalID: "inv_late",
		Status:     models.StatusPending,
		DueDate:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Phone:      "+5511987654321",
	})
	bl := newFakeBilling(billing.Invoice{ID: "inv_late", RawStatus: "OPEN"})
	nt := &fakeNotifier{result: notify.Result{ChatSent: true}}
	r := testRunner(st, bl, &fakeGenerator{}, nt, testNow)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, nt.reports, 1)
	assert.Equal(t, sum.Processed, nt.reports[0].Processed)
	assert.Equal(t, sum.ChatSent, nt.reports[0].ChatSent)
}

func TestRunPassUnknownName(t *testing.T) {
	r := testRunner(newFakeStore(), newFakeBilling(), &fakeGenerator{}, &fakeNotifier{}, testNow)
	_, err := r.RunPass(context.Background(), "bogus")
	assert.Error(t, err)
}
