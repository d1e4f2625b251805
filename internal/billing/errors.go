package billing

import (
	"errors"
	"fmt"
)

// Common billing client errors
var (
	// ErrTransport is returned when the mutually-authenticated transport
	// cannot be established (certificate material missing or unreadable,
	// TLS handshake or network failure). Fatal to the whole run.
	ErrTransport = errors.New("billing transport failure")

	// ErrAuth is returned when the client-credential token cannot be
	// acquired. Fatal to the whole run.
	ErrAuth = errors.New("billing authentication failed")

	// ErrNotFound is returned when the billing system has no invoice
	// with the requested identifier.
	ErrNotFound = errors.New("billing invoice not found")

	// ErrLookupUnknown is returned when an invoice status fetch fails
	// for reasons other than a 404. The caller must defer the record to
	// the next run, never treat the status as terminal.
	ErrLookupUnknown = errors.New("billing invoice status unknown")
)

// APIError wraps a rejected billing API call with enough context to
// diagnose it from the logs.
type APIError struct {
	// Op is the operation that failed (e.g. "CreateInvoice").
	Op string

	// StatusCode is the HTTP status returned by the billing API.
	StatusCode int

	// Body is the raw response body, truncated.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("billing: %s rejected with status %d: %s", e.Op, e.StatusCode, e.Body)
}

func newAPIError(op string, statusCode int, body []byte) *APIError {
	const maxBody = 2000
	s := string(body)
	if len(s) > maxBody {
		s = s[:maxBody]
	}
	return &APIError{Op: op, StatusCode: statusCode, Body: s}
}
