package notify

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
)

// EmailClient sends HTML email through the transactional email API.
type EmailClient struct {
	baseURL string
	apiKey  string
	from    string
	http    *http.Client
	log     zerolog.Logger
}

// NewEmailClient builds an email channel client.
func NewEmailClient(baseURL, apiKey, from string) *EmailClient {
	return &EmailClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		from:    from,
		http:    &http.Client{Timeout: 20 * time.Second},
		log:     logger.WithComponent("notify-email"),
	}
}

type emailSendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send delivers one HTML email.
func (c *EmailClient) Send(ctx context.Context, to, subject, html string) error {
	const op = "Send"

	raw, err := json.Marshal(emailSendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: email api error %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
