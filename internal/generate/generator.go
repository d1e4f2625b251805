// Package generate turns store records awaiting generation into
// billing invoices.
//
// A record is submitted only when every field the billing provider
// requires is present and well-formed; otherwise the attempt fails
// with a ValidationError carrying the full field list and nothing is
// sent. Each creation attempt mints a fresh idempotency token, so a
// retry of the same HTTP request cannot create two invoices — but a
// re-run after a success that never reached the store can, which is a
// documented gap recovered (imperfectly) by the import pass.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"billsync/internal/address"
	"billsync/internal/billing"
	"billsync/internal/logger"
	"billsync/pkg/models"
)

// BillingCreator is the slice of the billing client the generator
// needs.
type BillingCreator interface {
	CreateInvoice(ctx context.Context, payload billing.CreateInvoiceRequest, idempotencyToken string) (*billing.Invoice, error)
}

// DistrictResolver resolves an address by postal code, nil on miss.
type DistrictResolver interface {
	ByPostalCode(ctx context.Context, code string) *address.Address
}

// ValidationError reports the fields that block generation.
type ValidationError struct {
	Fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "missing or invalid fields: " + strings.Join(e.Fields, ", ")
}

// candidate is the validated shape of a generation request.
type candidate struct {
	DebtorName  string `validate:"required"`
	TaxID       string `validate:"required,numeric"`
	Email       string `validate:"required,email"`
	Phone       string `validate:"required"`
	DueDate     string `validate:"required,datetime=2006-01-02"`
	AmountCents int64  `validate:"gte=0"`
	Street      string `validate:"required"`
	Number      string `validate:"required"`
	District    string `validate:"required"`
	City        string `validate:"required"`
	State       string `validate:"required,len=2"`
	PostalCode  string `validate:"required,len=8,numeric"`
}

// Generator creates billing invoices from store records.
type Generator struct {
	billing  BillingCreator
	resolver DistrictResolver
	validate *validator.Validate
	log      zerolog.Logger
}

// NewGenerator builds a generator.
func NewGenerator(b BillingCreator, r DistrictResolver) *Generator {
	return &Generator{
		billing:  b,
		resolver: r,
		validate: validator.New(),
		log:      logger.WithComponent("generate"),
	}
}

// Generate validates the record and creates its billing invoice.
// Returns a *ValidationError when the record is incomplete (nothing is
// submitted), or the billing API error when the provider rejects the
// call.
func (g *Generator) Generate(ctx context.Context, rec models.InvoiceRecord) (*billing.Invoice, error) {
	const op = "Generate"

	district := g.resolveDistrict(ctx, rec)

	cand := candidate{
		DebtorName:  rec.DebtorName,
		TaxID:       rec.TaxID,
		Email:       rec.Email,
		Phone:       rec.Phone,
		AmountCents: rec.AmountCents,
		Street:      rec.Street,
		Number:      rec.Number,
		District:    district,
		City:        rec.City,
		State:       rec.State,
		PostalCode:  rec.PostalCode,
	}
	if !rec.DueDate.IsZero() {
		cand.DueDate = rec.DueDate.UTC().Format("2006-01-02")
	}

	var fields []string
	if err := g.validate.Struct(cand); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		for _, fe := range verrs {
			fields = append(fields, fieldName(fe.Field()))
		}
	}
	// An empty amount column is a missing field; an explicit zero is
	// a valid amount.
	if !rec.HasAmount {
		fields = append(fields, "amount")
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	label := rec.InstallmentLabel
	if label == "" {
		label = "Mensalidade"
	}

	payload := billing.CreateInvoiceRequest{
		Customer: billing.Customer{
			Name:        cand.DebtorName,
			Email:       cand.Email,
			PhoneNumber: cand.Phone,
			Document:    billing.Document{Type: "CPF", Identity: cand.TaxID},
			Address: &billing.Address{
				Street:     cand.Street,
				Number:     cand.Number,
				Complement: rec.Complement,
				District:   cand.District,
				City:       cand.City,
				State:      strings.ToUpper(cand.State),
				ZipCode:    cand.PostalCode,
			},
		},
		PaymentTerms: billing.PaymentTerms{DueDate: cand.DueDate},
		Services: []billing.Service{{
			Name:        label,
			AmountCents: cand.AmountCents,
		}},
		PaymentOptions: &billing.CreatePaymentOpts{
			BankSlip: &billing.BankSlip{PaymentLimitDate: cand.DueDate},
		},
	}

	token := uuid.NewString()
	g.log.Info().
		Str("row_id", rec.StoreID).
		Str("debtor", cand.DebtorName).
		Str("due_date", cand.DueDate).
		Int64("amount_cents", cand.AmountCents).
		Str("idempotency_token", token).
		Msg("Creating billing invoice")

	invoice, err := g.billing.CreateInvoice(ctx, payload, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return invoice, nil
}

// resolveDistrict prefers the postal-code lookup and falls back to the
// district stored on the record.
func (g *Generator) resolveDistrict(ctx context.Context, rec models.InvoiceRecord) string {
	if g.resolver != nil && len(rec.PostalCode) == 8 {
		if addr := g.resolver.ByPostalCode(ctx, rec.PostalCode); addr != nil && addr.District != "" {
			g.log.Debug().
				Str("postal_code", rec.PostalCode).
				Str("district", addr.District).
				Msg("District resolved by postal code")
			return addr.District
		}
	}
	return rec.District
}

// fieldName maps validated struct fields to the names surfaced on the
// record's error marker.
func fieldName(structField string) string {
	switch structField {
	case "DebtorName":
		return "debtor name"
	case "TaxID":
		return "tax id"
	case "Email":
		return "email"
	case "Phone":
		return "phone"
	case "DueDate":
		return "due date"
	case "AmountCents":
		return "amount"
	case "Street":
		return "street"
	case "Number":
		return "number"
	case "District":
		return "district"
	case "City":
		return "city"
	case "State":
		return "state"
	case "PostalCode":
		return "postal code"
	}
	return structField
}
