package entities

import "github.com/shopspring/decimal"

const (
	// CoinDecimals is the number of fractional digits in one coin; amounts on
	// the wire are integers of 10^-CoinDecimals coin ("atomic units").
	CoinDecimals = 12

	// NoPaymentID is the sentinel correlation id carried by transfers that
	// cannot be attributed to any customer.
	NoPaymentID = "0000000000000000"
)

// atomicPerCoin is 10^CoinDecimals as a decimal, computed once.
var atomicPerCoin = decimal.New(1, CoinDecimals)

// Transfer is one inbound blockchain transfer as reported by the wallet.
// The external transfer log is append-only and never mutated locally.
type Transfer struct {
	TxID      string `json:"txid"`
	PaymentID string `json:"payment_id"`
	Amount    uint64 `json:"amount"`
	Height    uint64 `json:"height"`
}

// TransferReceipt is the wallet's response to an outbound transfer.
type TransferReceipt struct {
	Fee    uint64 `json:"fee"`
	TxHash string `json:"tx_hash"`
}

// CoinFromAtomic converts atomic units to whole-coin decimal.
func CoinFromAtomic(atomic uint64) decimal.Decimal {
	return decimal.NewFromUint64(atomic).Div(atomicPerCoin)
}

// AtomicFromCoin converts a whole-coin decimal to atomic units, truncating
// anything below one atomic unit.
func AtomicFromCoin(coin decimal.Decimal) uint64 {
	return coin.Truncate(CoinDecimals).Mul(atomicPerCoin).BigInt().Uint64()
}
