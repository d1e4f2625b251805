package billing

import "strings"

// InvoiceStatus is the billing provider's live invoice status. The
// zero value means the status is unknown (invoice absent or lookup
// failed) and must never be coerced to a terminal state.
type InvoiceStatus string

const (
	StatusUnknown   InvoiceStatus = ""
	StatusOpen      InvoiceStatus = "OPEN"
	StatusLate      InvoiceStatus = "LATE"
	StatusPaid      InvoiceStatus = "PAID"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

// ParseInvoiceStatus maps a provider status string to the closed enum,
// returning StatusUnknown for anything unrecognized.
func ParseInvoiceStatus(s string) InvoiceStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OPEN":
		return StatusOpen
	case "LATE":
		return StatusLate
	case "PAID":
		return StatusPaid
	case "CANCELLED", "CANCELED":
		return StatusCancelled
	}
	return StatusUnknown
}

// Collectible reports whether the invoice can still be paid, which is
// what makes it eligible for force-cancellation.
func (s InvoiceStatus) Collectible() bool {
	return s == StatusOpen || s == StatusLate
}

// Terminal reports whether the invoice reached a final state.
func (s InvoiceStatus) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Invoice is the provider's invoice representation, read-only from
// this system's perspective after creation.
type Invoice struct {
	ID             string         `json:"id"`
	RawStatus      string         `json:"status"`
	DueDate        string         `json:"due_date"` // YYYY-MM-DD
	TotalCents     int64          `json:"total_amount"`
	Customer       Customer       `json:"customer"`
	PaymentOptions PaymentOptions `json:"payment_options"`
	Pix            Pix            `json:"pix"`
	Services       []Service      `json:"services"`
}

// Status returns the decoded live status.
func (i *Invoice) Status() InvoiceStatus {
	return ParseInvoiceStatus(i.RawStatus)
}

// PaymentLink returns the hosted bank-slip URL, empty when absent.
func (i *Invoice) PaymentLink() string {
	return i.PaymentOptions.BankSlip.URL
}

type Customer struct {
	Name        string   `json:"name"`
	Email       string   `json:"email,omitempty"`
	PhoneNumber string   `json:"phone_number,omitempty"`
	Document    Document `json:"document"`
	Address     *Address `json:"address,omitempty"`
}

type Document struct {
	Type     string `json:"type"` // CPF or CNPJ
	Identity string `json:"identity"`
}

type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	ZipCode    string `json:"zip_code"`
}

type PaymentOptions struct {
	BankSlip BankSlip `json:"bank_slip"`
}

type BankSlip struct {
	URL              string `json:"url,omitempty"`
	Digitable        string `json:"digitable,omitempty"`
	PaymentLimitDate string `json:"payment_limit_date,omitempty"`
}

type Pix struct {
	Emv string `json:"emv,omitempty"`
}

type Service struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount"`
}

// CreateInvoiceRequest is the creation payload.
type CreateInvoiceRequest struct {
	Customer       Customer           `json:"customer"`
	PaymentTerms   PaymentTerms       `json:"payment_terms"`
	Services       []Service          `json:"services"`
	PaymentOptions *CreatePaymentOpts `json:"payment_options,omitempty"`
}

type PaymentTerms struct {
	DueDate string `json:"due_date"` // YYYY-MM-DD
}

type CreatePaymentOpts struct {
	BankSlip *BankSlip `json:"bank_slip,omitempty"`
}

type listResponse struct {
	Items      []Invoice `json:"items"`
	TotalItems int       `json:"totalItems"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}
