// Package tradenet talks to the trade-gateway sidecar that owns the trading
// network session (login, confirmation signing, inventory). Offers arrive
// from the gateway as webhooks; all actions on the network go back through
// this client.
package tradenet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	domerrors "github.com/keyvault-service/keyvault_service/internal/domain/errors"
	"github.com/keyvault-service/keyvault_service/pkg/logger"
)

// Config represents trade gateway client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client represents a trade gateway client.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new trade gateway client.
func NewClient(config Config, logger *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// SendMessage sends a chat message to the given identity.
func (c *Client) SendMessage(ctx context.Context, identity, text string) error {
	payload := map[string]string{"identity": identity, "text": text}
	return c.do(ctx, http.MethodPost, "/v1/messages", payload, nil)
}

// SetStatus publishes the bot's presence line.
func (c *Client) SetStatus(ctx context.Context, text string) error {
	payload := map[string]string{"text": text}
	return c.do(ctx, http.MethodPost, "/v1/status", payload, nil)
}

// TradableCount returns how many tradable items the bot currently holds.
func (c *Client) TradableCount(ctx context.Context) (int, error) {
	var result struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/inventory/count", nil, &result); err != nil {
		return 0, fmt.Errorf("fetch inventory count: %w", err)
	}
	return result.Count, nil
}

// actOnOffer drives the gateway-side offer state machine. The gateway
// responds with "ok" or "escrow".
func (c *Client) actOnOffer(ctx context.Context, offerID, action string) (string, error) {
	var result struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/v1/offers/%s/%s", offerID, action)
	if err := c.do(ctx, http.MethodPost, path, nil, &result); err != nil {
		return "", fmt.Errorf("%s offer %s: %w", action, offerID, err)
	}
	return result.Status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domerrors.TransportError("trade gateway", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domerrors.TransportError("trade gateway", fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
