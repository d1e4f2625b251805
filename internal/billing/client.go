// Package billing is the client for the billing provider's invoice
// API.
//
// The provider requires mutual TLS: the client certificate and key are
// loaded from PEM files or inline PEM strings. On top of the
// authenticated transport, a client-credential token is fetched once
// per run and reused for every call; the client is the per-run session
// object, constructed once and injected into everything that talks to
// the provider.
package billing

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"billsync/internal/logger"
)

const listPageSize = 200

// Credentials holds the transport and client identity material.
type Credentials struct {
	ClientID string

	// CertFile/KeyFile are PEM paths; CertPEM/KeyPEM, when non-empty,
	// take precedence and carry the material inline.
	CertFile string
	KeyFile  string
	CertPEM  string
	KeyPEM   string
}

// Client is an authenticated billing API session.
type Client struct {
	baseURL  string
	clientID string
	http     *http.Client
	token    string
	log      zerolog.Logger
}

// NewClient establishes the mutually-authenticated transport. It does
// not fetch a token yet; call Authenticate before issuing requests.
func NewClient(baseURL string, creds Credentials) (*Client, error) {
	const op = "NewClient"

	cert, err := loadCertificate(creds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: creds.ClientID,
		http:     &http.Client{Transport: transport, Timeout: 30 * time.Second},
		log:      logger.WithComponent("billing"),
	}, nil
}

func loadCertificate(creds Credentials) (tls.Certificate, error) {
	certPEM := []byte(creds.CertPEM)
	keyPEM := []byte(creds.KeyPEM)

	var err error
	if len(certPEM) == 0 {
		if certPEM, err = os.ReadFile(creds.CertFile); err != nil {
			return tls.Certificate{}, fmt.Errorf("reading certificate: %w", err)
		}
	}
	if len(keyPEM) == 0 {
		if keyPEM, err = os.ReadFile(creds.KeyFile); err != nil {
			return tls.Certificate{}, fmt.Errorf("reading private key: %w", err)
		}
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// Authenticate runs the client-credential flow and caches the token on
// the session.
func (c *Client) Authenticate(ctx context.Context) error {
	const op = "Authenticate"

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %w: status %d: %s", op, ErrAuth, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.AccessToken == "" {
		return fmt.Errorf("%s: %w: invalid token response", op, ErrAuth)
	}

	c.token = parsed.AccessToken
	c.log.Debug().Int("expires_in", parsed.ExpiresIn).Msg("Billing token acquired")
	return nil
}

// CreateInvoice submits a new invoice. The idempotency token must be
// freshly generated per attempt; the provider deduplicates retried
// requests carrying the same token.
func (c *Client) CreateInvoice(ctx context.Context, payload CreateInvoiceRequest, idempotencyToken string) (*Invoice, error) {
	const op = "CreateInvoice"

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v2/invoices", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyToken)

	var invoice Invoice
	if err := c.dispatch(op, req, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetInvoice fetches an invoice by identifier. A 404 maps to
// ErrNotFound; any other failure maps to ErrLookupUnknown so the
// caller defers the record instead of guessing a status.
func (c *Client) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	const op = "GetInvoice"

	req, err := c.newRequest(ctx, http.MethodGet, "/v2/invoices/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLookupUnknown, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLookupUnknown, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: id %s: %w", op, id, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLookupUnknown, newAPIError(op, resp.StatusCode, body))
	}

	var invoice Invoice
	if err := json.Unmarshal(body, &invoice); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLookupUnknown, err)
	}
	return &invoice, nil
}

// CancelInvoice cancels a still-collectible invoice.
func (c *Client) CancelInvoice(ctx context.Context, id string) error {
	const op = "CancelInvoice"

	req, err := c.newRequest(ctx, http.MethodDelete, "/v2/invoices/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return c.dispatch(op, req, nil)
}

// ListInvoices drains every page of invoices due inside [from, to].
// Partial pages are never returned: the loop runs until the provider
// reports the full total.
func (c *Client) ListInvoices(ctx context.Context, from, to time.Time) ([]Invoice, error) {
	const op = "ListInvoices"

	var all []Invoice
	page := 1
	for {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("perPage", strconv.Itoa(listPageSize))
		params.Set("start", from.UTC().Format("2006-01-02"))
		params.Set("end", to.UTC().Format("2006-01-02"))

		req, err := c.newRequest(ctx, http.MethodGet, "/v2/invoices?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		var parsed listResponse
		if err := c.dispatch(op, req, &parsed); err != nil {
			return nil, err
		}
		if len(parsed.Items) == 0 {
			break
		}
		all = append(all, parsed.Items...)

		total := parsed.TotalItems
		if total == 0 {
			total = len(all)
		}
		if len(all) >= total {
			break
		}
		page++
	}

	c.log.Debug().Int("invoices", len(all)).Msg("Billing invoice list drained")
	return all, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c.token == "" {
		return nil, errors.New("client not authenticated")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) dispatch(op string, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(op, resp.StatusCode, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s: decoding response: %w", op, err)
		}
	}
	return nil
}
