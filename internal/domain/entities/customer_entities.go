package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer is a trading-network user known to the bot. Created lazily on
// first contact, never deleted. The balance is fiat-denominated and is the
// sole source of truth for what the customer is owed; it is mutated only
// through the customer repository.
type Customer struct {
	Identity       string          `db:"identity"`
	DepositAddress string          `db:"deposit_address"`
	Balance        decimal.Decimal `db:"balance"`
	CreatedAt      time.Time       `db:"created_at"`
}

// DepositRecord is an append-only audit row written after a completed deposit
// settlement (customer sent items, bot paid out coin).
type DepositRecord struct {
	ID          uuid.UUID       `db:"id"`
	Identity    string          `db:"identity"`
	ItemCount   int             `db:"item_count"`
	AddressUsed string          `db:"address_used"`
	AmountSent  decimal.Decimal `db:"amount_sent"`
	OfferID     string          `db:"offer_id"`
	CreatedAt   time.Time       `db:"created_at"`
}

// WithdrawalRecord is an append-only audit row written after a completed
// withdrawal settlement (bot sent items, customer balance was debited).
type WithdrawalRecord struct {
	ID             uuid.UUID       `db:"id"`
	Identity       string          `db:"identity"`
	ItemCount      int             `db:"item_count"`
	AmountDeducted decimal.Decimal `db:"amount_deducted"`
	OfferID        string          `db:"offer_id"`
	CreatedAt      time.Time       `db:"created_at"`
}
