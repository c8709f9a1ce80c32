package walletrpc

import (
	"encoding/json"

	"github.com/keyvault-service/keyvault_service/internal/domain/entities"
)

// errInvalidAddress is the wallet node's error code for a destination address
// it cannot parse.
const errInvalidAddress = -2

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Error   *RPCError       `json:"error,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// RPCError is a structured error returned by the wallet node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

type getBalanceResult struct {
	Balance         uint64 `json:"balance"`
	UnlockedBalance uint64 `json:"unlocked_balance"`
}

type getHeightResult struct {
	Height uint64 `json:"height"`
}

type getTransfersParams struct {
	In             bool   `json:"in"`
	FilterByHeight bool   `json:"filter_by_height"`
	MinHeight      uint64 `json:"min_height"`
}

type getTransfersResult struct {
	In []entities.Transfer `json:"in"`
}

type makeIntegratedAddressParams struct {
	PaymentID string `json:"payment_id"`
}

type makeIntegratedAddressResult struct {
	IntegratedAddress string `json:"integrated_address"`
	PaymentID         string `json:"payment_id"`
}

type transferDestination struct {
	Amount  uint64 `json:"amount"`
	Address string `json:"address"`
}

type transferParams struct {
	Destinations []transferDestination `json:"destinations"`
	DoNotRelay   bool                  `json:"do_not_relay,omitempty"`
}
