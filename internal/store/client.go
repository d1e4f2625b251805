// Package store is the client for the tabular record store.
//
// The store exposes cursor-paged queries over typed rows plus per-row
// create/update. Every query helper here drains pagination completely
// before returning: aggregate decisions (like the set of known billing
// identifiers) must never be made from a partial page.
//
// Rows are decoded into models.InvoiceRecord exactly once, at this
// boundary (decode.go); the rest of the system never touches the raw
// property bag.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"billsync/internal/logger"
	"billsync/pkg/models"
)

const pageSize = 100

// Client talks to the record store.
type Client struct {
	baseURL string
	token   string
	tableID string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient builds a store client.
func NewClient(baseURL, token, tableID string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		tableID: tableID,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logger.WithComponent("store"),
	}
}

// QueryAll drains every page matching the filter and returns the raw
// rows.
func (c *Client) QueryAll(ctx context.Context, filter Filter) ([]Row, error) {
	const op = "QueryAll"

	var rows []Row
	cursor := ""
	for {
		page, err := c.queryPage(ctx, filter, cursor)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rows = append(rows, page.Results...)
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	return rows, nil
}

// ListRecords drains every page matching the filter and decodes the
// rows. Rows that fail decoding are logged and skipped; the count of
// skipped rows is returned so the caller can surface it in run
// counters.
func (c *Client) ListRecords(ctx context.Context, filter Filter) ([]models.InvoiceRecord, int, error) {
	rows, err := c.QueryAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	records := make([]models.InvoiceRecord, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		rec, err := DecodeRecord(row)
		if err != nil {
			skipped++
			c.log.Warn().
				Err(err).
				Str("row_id", row.ID).
				Msg("Skipping row that failed decoding")
			continue
		}
		records = append(records, rec)
	}

	c.log.Debug().
		Int("rows", len(rows)).
		Int("decoded", len(records)).
		Int("skipped", skipped).
		Msg("Store query drained")

	return records, skipped, nil
}

func (c *Client) queryPage(ctx context.Context, filter Filter, cursor string) (*queryResponse, error) {
	reqBody := queryRequest{PageSize: pageSize, StartCursor: cursor}
	if !filter.IsZero() {
		raw, err := json.Marshal(filter)
		if err != nil {
			return nil, err
		}
		reqBody.Filter = raw
	}

	var parsed queryResponse
	endpoint := fmt.Sprintf("%s/v1/tables/%s/query", c.baseURL, c.tableID)
	if err := c.do(ctx, http.MethodPost, endpoint, reqBody, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// CreateRecord inserts a new row mirroring a billing invoice.
func (c *Client) CreateRecord(ctx context.Context, rec models.InvoiceRecord) error {
	const op = "CreateRecord"

	endpoint := fmt.Sprintf("%s/v1/tables/%s/rows", c.baseURL, c.tableID)
	if err := c.do(ctx, http.MethodPost, endpoint, writeRequest{Properties: EncodeRecord(rec)}, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateRow patches a subset of a row's properties.
func (c *Client) UpdateRow(ctx context.Context, rowID string, props map[string]Property) error {
	const op = "UpdateRow"

	endpoint := fmt.Sprintf("%s/v1/rows/%s", c.baseURL, rowID)
	if err := c.do(ctx, http.MethodPatch, endpoint, writeRequest{Properties: props}, nil); err != nil {
		return fmt.Errorf("%s: row %s: %w", op, rowID, err)
	}
	return nil
}

// MarkPaid flips the record's lifecycle status to paid.
func (c *Client) MarkPaid(ctx context.Context, rowID string) error {
	return c.UpdateRow(ctx, rowID, map[string]Property{
		colStatus: selectProperty(models.StatusPaid.StoreLabel()),
	})
}

// MarkGenerated records a successful billing invoice creation: the
// external identifier is written exactly once here and never changed.
func (c *Client) MarkGenerated(ctx context.Context, rowID, externalID, link, code string) error {
	return c.UpdateRow(ctx, rowID, map[string]Property{
		colExternalID:  textProperty(externalID),
		colPaymentLink: textProperty(link),
		colPaymentCode: textProperty(code),
		colGenStatus:   selectProperty(models.Generated.StoreLabel()),
		colStatus:      selectProperty(models.StatusPending.StoreLabel()),
	})
}

// MarkGenerationError flags a record whose generation failed, with the
// reason (field list or API response) for diagnosis.
func (c *Client) MarkGenerationError(ctx context.Context, rowID, reason string) error {
	if len(reason) > 2000 {
		reason = reason[:2000]
	}
	return c.UpdateRow(ctx, rowID, map[string]Property{
		colGenStatus: selectProperty(models.GenerationError.StoreLabel()),
		colGenError:  textProperty(reason),
	})
}

// SetLastReminder stamps the reminder date, suppressing further
// reminders for the same day.
func (c *Client) SetLastReminder(ctx context.Context, rowID string, day time.Time) error {
	return c.UpdateRow(ctx, rowID, map[string]Property{
		colLastReminder: dateProperty(day.UTC().Format("2006-01-02")),
	})
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("store api error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return err
		}
	}
	return nil
}
