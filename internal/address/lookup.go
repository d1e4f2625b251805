// Package address resolves postal addresses by CEP (Brazilian postal
// code) through the public lookup API. Lookups degrade gracefully: a
// miss or an API failure returns nil so callers can fall back to the
// address stored on the record.
package address

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"billsync/internal/logger"
)

// Address is the subset of the lookup response the generator needs.
type Address struct {
	Street   string
	District string
	City     string
	State    string
}

type lookupResponse struct {
	Street   string `json:"logradouro"`
	District string `json:"bairro"`
	City     string `json:"localidade"`
	State    string `json:"uf"`
	Erro     bool   `json:"erro"`
}

// Lookup is a postal-code lookup client.
type Lookup struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewLookup builds a lookup client.
func NewLookup(baseURL string) *Lookup {
	return &Lookup{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     logger.WithComponent("address"),
	}
}

// ByPostalCode resolves an 8-digit postal code. Returns nil (no error)
// when the code is malformed, unknown, or the service is unavailable.
func (l *Lookup) ByPostalCode(ctx context.Context, code string) *Address {
	if len(code) != 8 {
		l.log.Warn().Str("postal_code", code).Msg("Postal code not 8 digits, skipping lookup")
		return nil
	}

	endpoint := fmt.Sprintf("%s/ws/%s/json/", l.baseURL, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}

	resp, err := l.http.Do(req)
	if err != nil {
		l.log.Warn().Err(err).Str("postal_code", code).Msg("Postal lookup failed")
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		l.log.Warn().Int("status", resp.StatusCode).Str("postal_code", code).Msg("Postal lookup rejected")
		return nil
	}

	var parsed lookupResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Erro {
		l.log.Warn().Str("postal_code", code).Msg("Postal lookup returned no address")
		return nil
	}

	return &Address{
		Street:   parsed.Street,
		District: parsed.District,
		City:     parsed.City,
		State:    parsed.State,
	}
}
