// Package gateway talks to the payment gateway's orders API and verifies
// its webhook signatures.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matrimony-api/internal/domain"
)

var errBadSignature = errors.New("webhook signature mismatch")

// Client is an orders API client authenticated with the key id and secret.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
}

func NewClient(baseURL, keyID, keySecret, webhookSecret string) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		baseURL:       strings.TrimRight(baseURL, "/"),
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
	}
}

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateOrder opens an order for amountMinor (paise) and returns its id.
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (string, error) {
	// receipts are capped at 40 characters by the gateway
	if len(receipt) > 40 {
		receipt = receipt[:40]
	}
	var out orderResponse
	err := c.do(ctx, http.MethodPost, "/orders", orderRequest{
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("order response without id: %w", domain.ErrUpstream)
	}
	return out.ID, nil
}

// OrderStatus returns the gateway's status string for an order
// (created, attempted or paid).
func (c *Client) OrderStatus(ctx context.Context, orderID string) (string, error) {
	if orderID == "" {
		return "", fmt.Errorf("order id is required: %w", domain.ErrBadRequest)
	}
	var out orderResponse
	if err := c.do(ctx, http.MethodGet, "/orders/"+orderID, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// VerifyWebhook checks the hex HMAC-SHA256 of the raw body against the
// signature header. With no webhook secret configured every body passes.
func (c *Client) VerifyWebhook(body []byte, signature string) error {
	if c.webhookSecret == "" {
		return nil
	}
	if !hmac.Equal([]byte(Sign(c.webhookSecret, body)), []byte(strings.TrimSpace(signature))) {
		return errBadSignature
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode gateway request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payment gateway: %w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("order not found: %w", domain.ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("payment gateway (%d %s): %w", resp.StatusCode, strings.TrimSpace(string(msg)), domain.ErrUpstream)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", domain.ErrUpstream)
	}
	return nil
}
