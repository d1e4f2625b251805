// Package models defines the invoice record shared between the store,
// billing and reconciliation layers.
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status is the lifecycle status of a record once a billing invoice
// exists for it. The zero value means the record (or its status) is
// absent; the reconciliation engine treats it accordingly.
type Status string

const (
	StatusNone      Status = ""
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// GenerationStatus tracks the pre-billing-invoice state of a record.
// A record with no external identifier must be NeedsGeneration or
// GenerationError.
type GenerationStatus string

const (
	GenerationNone   GenerationStatus = ""
	NeedsGeneration  GenerationStatus = "NEEDS_GENERATION"
	Generated        GenerationStatus = "GENERATED"
	GenerationError  GenerationStatus = "GENERATION_ERROR"
)

// Store column labels. The store uses pt-BR select labels; they are
// mapped to the closed enums above at the decode boundary and nowhere
// else.
const (
	LabelStatusPending   = "Pendente"
	LabelStatusPaid      = "Quitado"
	LabelStatusCancelled = "Cancelada"

	LabelNeedsGeneration = "Gerar Boleto"
	LabelGenerated       = "Boleto OK"
	LabelGenerationError = "Erro"
)

// ParseStatus maps a store status label to its closed enum value.
// Legacy spellings that accumulated in the store are accepted here and
// only here.
func ParseStatus(label string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "":
		return StatusNone, nil
	case "PENDENTE", "PENDING":
		return StatusPending, nil
	case "QUITADO", "PAGO", "PAID":
		return StatusPaid, nil
	case "CANCELADA", "CANCELADO", "CANCELLED", "CANCELED":
		return StatusCancelled, nil
	}
	return StatusNone, fmt.Errorf("unrecognized status label %q", label)
}

// ParseGenerationStatus maps a store generation-status label to its
// closed enum value.
func ParseGenerationStatus(label string) (GenerationStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "":
		return GenerationNone, nil
	case "GERAR BOLETO", "GERAR":
		return NeedsGeneration, nil
	case "BOLETO OK", "GERADO":
		return Generated, nil
	case "ERRO", "ERROR":
		return GenerationError, nil
	}
	return GenerationNone, fmt.Errorf("unrecognized generation status label %q", label)
}

// StoreLabel returns the select label written back to the store.
func (s Status) StoreLabel() string {
	switch s {
	case StatusPending:
		return LabelStatusPending
	case StatusPaid:
		return LabelStatusPaid
	case StatusCancelled:
		return LabelStatusCancelled
	}
	return ""
}

// StoreLabel returns the select label written back to the store.
func (g GenerationStatus) StoreLabel() string {
	switch g {
	case NeedsGeneration:
		return LabelNeedsGeneration
	case Generated:
		return LabelGenerated
	case GenerationError:
		return LabelGenerationError
	}
	return ""
}

// InvoiceRecord is a row of the tabular store, decoded once at the
// store boundary. Amounts are integer minor units; fractional cents do
// not survive decoding.
type InvoiceRecord struct {
	// StoreID is the store's own row identifier, used for updates.
	StoreID string

	// ExternalID is the billing system's invoice identifier. Assigned
	// once, immutable afterwards; empty until generation succeeds.
	ExternalID string

	DebtorName string
	TaxID      string
	Email      string
	Phone      string // optional, normalized +55... form when present

	DueDate     time.Time // date granularity
	AmountCents int64

	// HasAmount distinguishes an empty amount column from a
	// legitimate zero amount.
	HasAmount bool

	InstallmentLabel string

	PaymentLink string
	PaymentCode string // PIX copy-and-paste payload

	Status           Status
	GenerationStatus GenerationStatus

	// LastReminder suppresses duplicate same-day notifications.
	LastReminder *time.Time

	// Address fields, consumed by invoice generation only.
	Street     string
	Number     string
	Complement string
	District   string
	City       string
	State      string // 2-letter code
	PostalCode string // 8 digits
}

var nonDigits = regexp.MustCompile(`\D`)

// Digits strips every non-digit rune from s.
func Digits(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// NormalizePhone cleans a free-text phone into +55-prefixed E.164-ish
// form. Returns false when the number is too short to be usable.
func NormalizePhone(raw string) (string, bool) {
	cleaned := Digits(raw)
	switch {
	case strings.HasPrefix(cleaned, "55") && len(cleaned) >= 12:
		return "+" + cleaned, true
	case len(cleaned) >= 10:
		return "+55" + cleaned, true
	}
	return "", false
}

// SameDate reports whether a and b fall on the same calendar day in UTC.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// DaysUntil returns the whole-day offset from today to due (due minus
// today), negative when due is in the past. Both are truncated to
// calendar days in UTC first.
func DaysUntil(due, today time.Time) int {
	d := dateOnly(due).Sub(dateOnly(today))
	return int(d.Hours() / 24)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
