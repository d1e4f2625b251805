package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"billsync/pkg/models"
)

// Store column labels. The table predates this service, hence the
// pt-BR labels; they live here and only here.
const (
	colDebtorName   = "Nome Aluno"
	colTaxID        = "CPF"
	colEmail        = "Email"
	colPhone        = "Telefone"
	colDueDate      = "Vecto"
	colAmount       = "Valor"
	colInstallment  = "Parcela/Mês"
	colPaymentLink  = "Link Boleto"
	colPaymentCode  = "PIX"
	colExternalID   = "ID Cobrança"
	colStatus       = "Status"
	colGenStatus    = "Status Geração"
	colGenError     = "Erro Geração"
	colLastReminder = "Último Lembrete"

	colStreet     = "Rua/Avenida"
	colNumber     = "Número"
	colComplement = "Complemento"
	colDistrict   = "Bairro"
	colCity       = "Cidade"
	colState      = "Estado"
	colPostalCode = "CEP"
)

// DecodeRecord maps a raw row into an InvoiceRecord, validating the
// closed status enumerations and the due date. It fails fast on
// malformed rows instead of letting half-decoded values leak into the
// engine.
func DecodeRecord(row Row) (models.InvoiceRecord, error) {
	const op = "DecodeRecord"

	props := row.Properties

	status, err := models.ParseStatus(selectText(props[colStatus]))
	if err != nil {
		return models.InvoiceRecord{}, fmt.Errorf("%s: row %s: %w", op, row.ID, err)
	}
	genStatus, err := models.ParseGenerationStatus(selectText(props[colGenStatus]))
	if err != nil {
		return models.InvoiceRecord{}, fmt.Errorf("%s: row %s: %w", op, row.ID, err)
	}

	rec := models.InvoiceRecord{
		StoreID:          row.ID,
		ExternalID:       strings.TrimSpace(plainText(props[colExternalID])),
		DebtorName:       strings.TrimSpace(titleText(props[colDebtorName])),
		TaxID:            models.Digits(plainText(props[colTaxID])),
		Email:            strings.ToLower(strings.TrimSpace(emailText(props[colEmail]))),
		InstallmentLabel: strings.TrimSpace(plainText(props[colInstallment])),
		PaymentLink:      strings.TrimSpace(plainText(props[colPaymentLink])),
		PaymentCode:      strings.TrimSpace(plainText(props[colPaymentCode])),
		Status:           status,
		GenerationStatus: genStatus,
		Street:           strings.TrimSpace(plainText(props[colStreet])),
		Number:           strings.TrimSpace(plainText(props[colNumber])),
		Complement:       strings.TrimSpace(plainText(props[colComplement])),
		District:         strings.TrimSpace(plainText(props[colDistrict])),
		City:             strings.TrimSpace(plainText(props[colCity])),
		State:            strings.ToUpper(strings.TrimSpace(plainText(props[colState]))),
		PostalCode:       models.Digits(plainText(props[colPostalCode])),
	}

	if phone, ok := models.NormalizePhone(phoneText(props[colPhone])); ok {
		rec.Phone = phone
	}

	if due := dateText(props[colDueDate]); due != "" {
		parsed, err := time.Parse("2006-01-02", due)
		if err != nil {
			return models.InvoiceRecord{}, fmt.Errorf("%s: row %s: invalid due date %q: %w", op, row.ID, due, err)
		}
		rec.DueDate = parsed
	}

	if reminded := dateText(props[colLastReminder]); reminded != "" {
		parsed, err := time.Parse("2006-01-02", reminded)
		if err != nil {
			return models.InvoiceRecord{}, fmt.Errorf("%s: row %s: invalid reminder date %q: %w", op, row.ID, reminded, err)
		}
		rec.LastReminder = &parsed
	}

	if amount := props[colAmount]; amount.Number != nil {
		// The store keeps whole currency units; rounding is
		// half-away-from-zero so 19.995 becomes 2000 cents.
		rec.AmountCents = decimal.NewFromFloat(*amount.Number).
			Mul(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
		rec.HasAmount = true
	}

	return rec, nil
}

// EncodeRecord builds the property bag for a new row mirroring a
// billing invoice into the store.
func EncodeRecord(rec models.InvoiceRecord) map[string]Property {
	amount, _ := decimal.NewFromInt(rec.AmountCents).
		Div(decimal.NewFromInt(100)).
		Float64()

	props := map[string]Property{
		colDebtorName:  titleProperty(rec.DebtorName),
		colDueDate:     dateProperty(rec.DueDate.UTC().Format("2006-01-02")),
		colAmount:      numberProperty(amount),
		colPaymentLink: textProperty(rec.PaymentLink),
		colExternalID:  textProperty(rec.ExternalID),
		colTaxID:       textProperty(rec.TaxID),
		colPhone:       textProperty(rec.Phone),
		colPaymentCode: textProperty(rec.PaymentCode),
		colInstallment: textProperty(rec.InstallmentLabel),
		colStatus:      selectProperty(rec.Status.StoreLabel()),
		colGenStatus:   selectProperty(rec.GenerationStatus.StoreLabel()),
	}
	if rec.Email != "" {
		props[colEmail] = emailProperty(rec.Email)
	}
	return props
}

// Filter constructors used by the batch passes.

// FilterGenerationStatus matches rows by generation status.
func FilterGenerationStatus(gs models.GenerationStatus) Filter {
	return Filter{Property: colGenStatus, Select: &SelectFilter{Equals: gs.StoreLabel()}}
}

// FilterStatus matches rows by lifecycle status.
func FilterStatus(s models.Status) Filter {
	return Filter{Property: colStatus, Select: &SelectFilter{Equals: s.StoreLabel()}}
}

// FilterPendingDueBetween matches pending rows with a due date inside
// [from, to], the reminder pass's candidate set.
func FilterPendingDueBetween(from, to time.Time) Filter {
	return Filter{And: []Filter{
		FilterStatus(models.StatusPending),
		{Property: colDueDate, Date: &DateFilter{OnOrAfter: from.UTC().Format("2006-01-02")}},
		{Property: colDueDate, Date: &DateFilter{OnOrBefore: to.UTC().Format("2006-01-02")}},
	}}
}

func plainText(p Property) string {
	if len(p.RichText) > 0 {
		if p.RichText[0].PlainText != "" {
			return p.RichText[0].PlainText
		}
		if p.RichText[0].Text != nil {
			return p.RichText[0].Text.Content
		}
	}
	return ""
}

func titleText(p Property) string {
	if len(p.Title) > 0 {
		if p.Title[0].PlainText != "" {
			return p.Title[0].PlainText
		}
		if p.Title[0].Text != nil {
			return p.Title[0].Text.Content
		}
	}
	return ""
}

func emailText(p Property) string {
	return p.Email
}

// selectText accepts either a select column or a legacy rich-text one.
func selectText(p Property) string {
	if p.Select != nil {
		return p.Select.Name
	}
	return plainText(p)
}

// phoneText accepts either a dedicated phone column or a legacy
// rich-text one.
func phoneText(p Property) string {
	if p.PhoneNumber != "" {
		return p.PhoneNumber
	}
	return plainText(p)
}

func dateText(p Property) string {
	if p.Date != nil {
		return p.Date.Start
	}
	return ""
}
