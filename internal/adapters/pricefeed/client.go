// Package pricefeed fetches the current fiat/coin exchange rate from the
// external quote API.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	domerrors "github.com/keyvault-service/keyvault_service/internal/domain/errors"
	"github.com/keyvault-service/keyvault_service/pkg/logger"
)

// Config represents price feed configuration.
type Config struct {
	URL     string
	APIKey  string
	AssetID int
	Timeout time.Duration
}

// Client represents a price feed client.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new price feed client.
func NewClient(config Config, logger *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// quoteResponse mirrors the feed's envelope. The price is decoded as a
// json.Number and converted to decimal without a float round trip.
type quoteResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string]struct {
		Quote struct {
			USD struct {
				Price json.Number `json:"price"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

// USDPrice returns the current USD price for the configured asset.
func (c *Client) USDPrice(ctx context.Context) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s?id=%d", c.config.URL, c.config.AssetID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("X-CMC_PRO_API_KEY", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, domerrors.TransportError("price feed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, domerrors.TransportError("price feed", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var quote quoteResponse
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&quote); err != nil {
		return decimal.Zero, fmt.Errorf("decode quote response: %w", err)
	}

	if quote.Status.ErrorCode != 0 {
		return decimal.Zero, fmt.Errorf("quote feed error %d: %s", quote.Status.ErrorCode, quote.Status.ErrorMessage)
	}

	asset, ok := quote.Data[fmt.Sprintf("%d", c.config.AssetID)]
	if !ok {
		return decimal.Zero, fmt.Errorf("quote feed returned no data for asset %d", c.config.AssetID)
	}

	price, err := decimal.NewFromString(asset.Quote.USD.Price.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse quoted price: %w", err)
	}
	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("quote feed returned non-positive price %s", price)
	}

	return price, nil
}
