package tradenet

import (
	"context"

	"github.com/keyvault-service/keyvault_service/internal/domain/entities"
)

// LiveOffer binds an offer snapshot received over the webhook to the gateway
// operations acting on it.
type LiveOffer struct {
	snapshot *entities.OfferSnapshot
	client   *Client
}

// NewLiveOffer creates a live offer backed by the gateway.
func NewLiveOffer(client *Client, snapshot *entities.OfferSnapshot) *LiveOffer {
	return &LiveOffer{
		snapshot: snapshot,
		client:   client,
	}
}

// Snapshot returns the immutable offer view.
func (o *LiveOffer) Snapshot() *entities.OfferSnapshot {
	return o.snapshot
}

// Accept accepts the offer on the trading network.
func (o *LiveOffer) Accept(ctx context.Context) (entities.AcceptStatus, error) {
	return o.act(ctx, "accept")
}

// Decline declines the offer on the trading network.
func (o *LiveOffer) Decline(ctx context.Context) error {
	_, err := o.act(ctx, "decline")
	return err
}

// Confirm runs the gateway-side mobile confirmation for an accepted offer.
func (o *LiveOffer) Confirm(ctx context.Context) (entities.AcceptStatus, error) {
	return o.act(ctx, "confirm")
}

func (o *LiveOffer) act(ctx context.Context, action string) (entities.AcceptStatus, error) {
	status, err := o.client.actOnOffer(ctx, o.snapshot.ID, action)
	if err != nil {
		return "", err
	}
	if status == "escrow" {
		return entities.AcceptStatusEscrow, nil
	}
	return entities.AcceptStatusOK, nil
}
