package entities

import "time"

// OfferKind classifies a trade offer by which side carries items.
type OfferKind string

const (
	// OfferKindDeposit means only the counterparty sends items (they buy coin).
	OfferKindDeposit OfferKind = "deposit"
	// OfferKindWithdraw means only the bot sends items (they spend balance).
	OfferKindWithdraw OfferKind = "withdraw"
	// OfferKindAmbiguous means items flow in both directions. Always declined.
	OfferKindAmbiguous OfferKind = "ambiguous"
	// OfferKindInvalid means neither side carries items (a no-op offer).
	OfferKindInvalid OfferKind = "invalid"
)

// TradeItem is one item inside a trade offer.
type TradeItem struct {
	CategoryID int64
	Name       string
}

// OfferSnapshot is the immutable view of an incoming trade offer as reported
// by the trading network. ItemsToGive are items leaving the bot's inventory;
// ItemsToReceive are items the counterparty sends.
type OfferSnapshot struct {
	ID             string
	Partner        string
	ItemsToGive    []TradeItem
	ItemsToReceive []TradeItem
	Message        string
	EscrowEnds     *time.Time
	Glitched       bool
}

// AcceptStatus is the outcome of an accept/decline/confirm call on the
// trading network.
type AcceptStatus string

const (
	// AcceptStatusOK means the operation completed.
	AcceptStatusOK AcceptStatus = "ok"
	// AcceptStatusEscrow means the network placed the offer in an escrow
	// hold; neither party has received anything yet.
	AcceptStatusEscrow AcceptStatus = "escrow"
)
