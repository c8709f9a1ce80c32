package walletrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/keyvault-service/keyvault_service/internal/domain/errors"
	"github.com/keyvault-service/keyvault_service/pkg/logger"
)

func newRPCServer(t *testing.T, handler func(method string, params json.RawMessage) (interface{}, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": "0"}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestGetBalanceReturnsUnlocked(t *testing.T) {
	server := newRPCServer(t, func(method string, _ json.RawMessage) (interface{}, *RPCError) {
		assert.Equal(t, "getbalance", method)
		return map[string]uint64{"balance": 900, "unlocked_balance": 600}, nil
	})
	defer server.Close()

	client := NewClient(Config{URL: server.URL}, logger.New("debug", "test"))

	balance, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(600), balance)
}

func TestGetTransfersPassesMinHeight(t *testing.T) {
	server := newRPCServer(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		assert.Equal(t, "get_transfers", method)

		var p getTransfersParams
		require.NoError(t, json.Unmarshal(params, &p))
		assert.True(t, p.In)
		assert.True(t, p.FilterByHeight)
		assert.Equal(t, uint64(1000), p.MinHeight)

		return map[string]interface{}{"in": []map[string]interface{}{
			{"txid": "tx-1", "payment_id": "aabb", "amount": 5, "height": 1001},
		}}, nil
	})
	defer server.Close()

	client := NewClient(Config{URL: server.URL}, logger.New("debug", "test"))

	transfers, err := client.GetTransfers(context.Background(), 1000)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "tx-1", transfers[0].TxID)
	assert.Equal(t, uint64(1001), transfers[0].Height)
}

func TestTransferMapsInvalidDestination(t *testing.T) {
	server := newRPCServer(t, func(method string, _ json.RawMessage) (interface{}, *RPCError) {
		assert.Equal(t, "transfer", method)
		return nil, &RPCError{Code: -2, Message: "invalid address"}
	})
	defer server.Close()

	client := NewClient(Config{URL: server.URL}, logger.New("debug", "test"))

	_, err := client.Transfer(context.Background(), "bad-address", 100, false)
	assert.ErrorIs(t, err, domerrors.ErrInvalidDestination)
}

func TestTransferDryRunReturnsFee(t *testing.T) {
	server := newRPCServer(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		var p transferParams
		require.NoError(t, json.Unmarshal(params, &p))
		assert.True(t, p.DoNotRelay)
		require.Len(t, p.Destinations, 1)
		assert.Equal(t, uint64(200), p.Destinations[0].Amount)

		return map[string]interface{}{"fee": 17, "tx_hash": "hash-1"}, nil
	})
	defer server.Close()

	client := NewClient(Config{URL: server.URL}, logger.New("debug", "test"))

	receipt, err := client.Transfer(context.Background(), "some-address", 200, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(17), receipt.Fee)
	assert.Equal(t, "hash-1", receipt.TxHash)
}

func TestTransportFailureMapsToTransportError(t *testing.T) {
	client := NewClient(Config{URL: "http://127.0.0.1:1"}, logger.New("debug", "test"))

	_, err := client.GetHeight(context.Background())
	assert.ErrorIs(t, err, domerrors.ErrTransport)
}
