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
	"billsync/pkg/models"
)

// ChatClient sends text messages through the chat platform's cloud
// API. The platform wants digits-only phone numbers with the country
// code prefixed.
type ChatClient struct {
	baseURL  string
	token    string
	senderID string
	http     *http.Client
	log      zerolog.Logger
}

// NewChatClient builds a chat channel client.
func NewChatClient(baseURL, token, senderID string) *ChatClient {
	return &ChatClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		senderID: senderID,
		http:     &http.Client{Timeout: 20 * time.Second},
		log:      logger.WithComponent("notify-chat"),
	}
}

type chatSendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             chatText `json:"text"`
}

type chatText struct {
	Body string `json:"body"`
}

// Send delivers a text message to the phone number. The number is
// reduced to digits before sending.
func (c *ChatClient) Send(ctx context.Context, phone, message string) error {
	const op = "Send"

	to := models.Digits(phone)
	if to == "" {
		return fmt.Errorf("%s: empty phone number", op)
	}

	raw, err := json.Marshal(chatSendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             chatText{Body: message},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, c.senderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: chat api error %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
