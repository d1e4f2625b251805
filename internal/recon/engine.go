// Package recon holds the reconciliation decision engine.
//
// Decide is a pure function from the pair of observed states (store
// record, live billing invoice) plus the calendar to a single
// corrective action. All side effects live in the runner; this package
// performs no I/O, which is what makes the rule table exhaustively
// testable.
package recon

import (
	"time"

	"billsync/internal/billing"
	"billsync/pkg/models"
)

// Action is the corrective action for one record.
type Action int

const (
	// ActionNone: states are consistent, or no rule applies.
	ActionNone Action = iota

	// ActionGenerate: no billing invoice exists yet; create one from
	// the record's data.
	ActionGenerate

	// ActionCreateRecord: a billing invoice exists with no store record
	// referencing it; mirror it into the store.
	ActionCreateRecord

	// ActionCancelInBilling: the store says resolved but billing still
	// collects; force-cancel the billing invoice.
	ActionCancelInBilling

	// ActionMarkPaidInStore: billing reports paid; update the store.
	ActionMarkPaidInStore

	// ActionNotify: remind the debtor through the notification
	// channels.
	ActionNotify
)

func (a Action) String() string {
	switch a {
	case ActionGenerate:
		return "generate"
	case ActionCreateRecord:
		return "create_record"
	case ActionCancelInBilling:
		return "cancel_in_billing"
	case ActionMarkPaidInStore:
		return "mark_paid_in_store"
	case ActionNotify:
		return "notify"
	}
	return "noop"
}

// Input is everything Decide looks at.
type Input struct {
	// HasRecord is false when no store record references the invoice.
	HasRecord bool

	// StoreStatus is the record's lifecycle status; models.StatusNone
	// when absent or when the record has no lifecycle status yet.
	StoreStatus models.Status

	// GenerationStatus is the record's pre-invoice state.
	GenerationStatus models.GenerationStatus

	// HasInvoice is false when no billing invoice exists. A failed
	// status lookup must not reach Decide at all: the caller skips the
	// record for the pass instead of coercing the unknown status.
	HasInvoice bool

	// BillingStatus is the live invoice status;
	// billing.StatusUnknown when HasInvoice is false.
	BillingStatus billing.InvoiceStatus

	// DueOffsetDays is due date minus today in whole days; negative
	// when overdue.
	DueOffsetDays int

	// LastReminder is the date of the last reminder sent, nil when
	// never reminded.
	LastReminder *time.Time

	// Today anchors the reminder suppression check.
	Today time.Time
}

// Decision is the action plus the reminder details when the action is
// ActionNotify.
type Decision struct {
	Action      Action
	Reminder    ReminderKind
	OverdueDays int
}

// Decide maps one record's combined state to a corrective action.
//
// The rules are evaluated in a fixed precedence order and the first
// match wins. The order is load-bearing: the force-cancel rule must be
// checked before the reminder rule so that a record resolved in the
// store but still collectible in billing is cancelled, never reminded,
// regardless of how overdue it is.
func Decide(in Input) Decision {
	storeResolved := in.StoreStatus == models.StatusPaid || in.StoreStatus == models.StatusCancelled

	switch {
	// Rule 1: nothing exists on the billing side and the record is
	// absent or explicitly awaiting generation.
	case !in.HasInvoice && (!in.HasRecord || in.GenerationStatus == models.NeedsGeneration):
		return Decision{Action: ActionGenerate}

	// Rule 2: the invoice exists but the store has never seen it; the
	// store must converge to a superset of the billing window.
	case in.HasInvoice && !in.HasRecord:
		return Decision{Action: ActionCreateRecord}

	// Rule 3: store resolved, billing still collectible. Wins over the
	// reminder rule even for overdue invoices.
	case storeResolved && in.BillingStatus.Collectible():
		return Decision{Action: ActionCancelInBilling}

	// Rule 4: both sides resolved.
	case storeResolved && in.BillingStatus.Terminal():
		return Decision{Action: ActionNone}

	// Rule 5: billing learned of the payment first.
	case in.StoreStatus == models.StatusPending && in.BillingStatus == billing.StatusPaid:
		return Decision{Action: ActionMarkPaidInStore}

	// Rule 6: still collectible and pending; maybe remind.
	case in.StoreStatus == models.StatusPending && in.BillingStatus.Collectible():
		return reminderDecision(in)
	}

	// Rule 7: every unmatched combination is a no-op.
	return Decision{Action: ActionNone}
}
