// Package walletrpc is the JSON-RPC client for the wallet node. It is the
// only component that talks to the node; callers get domain errors
// (ErrTransport, ErrInvalidDestination) instead of wire-level detail.
package walletrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/keyvault-service/keyvault_service/internal/domain/entities"
	domerrors "github.com/keyvault-service/keyvault_service/internal/domain/errors"
	"github.com/keyvault-service/keyvault_service/pkg/logger"
)

// Config represents wallet RPC client configuration.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client represents a wallet RPC client.
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewClient creates a new wallet RPC client.
func NewClient(config Config, logger *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "wallet-rpc",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

// GetBalance returns the wallet's unlocked balance in atomic units.
func (c *Client) GetBalance(ctx context.Context) (uint64, error) {
	var result getBalanceResult
	if err := c.call(ctx, "getbalance", nil, &result); err != nil {
		return 0, fmt.Errorf("getbalance failed: %w", err)
	}
	return result.UnlockedBalance, nil
}

// GetHeight returns the wallet's current chain height.
func (c *Client) GetHeight(ctx context.Context) (uint64, error) {
	var result getHeightResult
	if err := c.call(ctx, "getheight", nil, &result); err != nil {
		return 0, fmt.Errorf("getheight failed: %w", err)
	}
	return result.Height, nil
}

// GetTransfers returns inbound transfers at or above minHeight.
func (c *Client) GetTransfers(ctx context.Context, minHeight uint64) ([]entities.Transfer, error) {
	params := getTransfersParams{
		In:             true,
		FilterByHeight: true,
		MinHeight:      minHeight,
	}

	var result getTransfersResult
	if err := c.call(ctx, "get_transfers", params, &result); err != nil {
		return nil, fmt.Errorf("get_transfers failed: %w", err)
	}
	return result.In, nil
}

// MakeIntegratedAddress derives a deposit address from the wallet's base
// address plus the given payment id. An empty payment id lets the wallet
// choose a random one.
func (c *Client) MakeIntegratedAddress(ctx context.Context, paymentID string) (string, error) {
	params := makeIntegratedAddressParams{PaymentID: paymentID}

	var result makeIntegratedAddressResult
	if err := c.call(ctx, "make_integrated_address", params, &result); err != nil {
		return "", fmt.Errorf("make_integrated_address failed: %w", err)
	}
	return result.IntegratedAddress, nil
}

// Transfer sends amount (atomic units) to address. With doNotRelay the wallet
// builds the transaction without transmitting it, which is how the network
// fee is learned before the real send.
func (c *Client) Transfer(ctx context.Context, address string, amount uint64, doNotRelay bool) (*entities.TransferReceipt, error) {
	params := transferParams{
		Destinations: []transferDestination{{Amount: amount, Address: address}},
		DoNotRelay:   doNotRelay,
	}

	var receipt entities.TransferReceipt
	if err := c.call(ctx, "transfer", params, &receipt); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == errInvalidAddress {
			return nil, fmt.Errorf("transfer to %s: %w", address, domerrors.ErrInvalidDestination)
		}
		return nil, fmt.Errorf("transfer failed: %w", err)
	}
	return &receipt, nil
}

// call performs one JSON-RPC exchange. The HTTP round trip runs inside the
// circuit breaker; RPC-level errors are returned as *RPCError so callers can
// inspect the code.
func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      "0",
		Method:  method,
		Params:  params,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		var envelope rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}

		return &envelope, nil
	})
	if err != nil {
		c.logger.Warn("wallet rpc transport failure", "method", method, "error", err)
		return domerrors.TransportError("wallet rpc", err)
	}

	envelope := raw.(*rpcResponse)

	if envelope.Error != nil {
		return envelope.Error
	}

	if result != nil && envelope.Result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}

	return nil
}
