// Package classifier is the pure decision logic for incoming trade offers:
// which direction the offer settles in, and whether it passes structural
// validation. It touches no storage and no network.
package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/keyvault-service/keyvault_service/internal/domain/entities"
)

// Deposit-address grammars per network. Fixed prefix plus fixed total length,
// mutually exclusive between networks.
var addressPatterns = map[string]*regexp.Regexp{
	"mainnet":  regexp.MustCompile(`^4([0-9]|[A-B])(.){93}$`),
	"stagenet": regexp.MustCompile(`^(9|A)(.){94}$`),
}

// Decision is the outcome of a validation pass. Reason is the user-facing
// decline text when the offer is not allowed.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func decline(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Classifier validates offers against the active network's address grammar
// and the configured item allow-list.
type Classifier struct {
	network        string
	addressPattern *regexp.Regexp
	permissive     bool
	categoryID     int64
	allowedNames   map[string]struct{}
}

// New builds a classifier for the given network. Permissive mode disables the
// item allow-list entirely and must stay confined to controlled testing.
func New(network string, categoryID int64, allowedNames []string, permissive bool) (*Classifier, error) {
	pattern, ok := addressPatterns[network]
	if !ok {
		return nil, fmt.Errorf("no address grammar for network %q", network)
	}

	names := make(map[string]struct{}, len(allowedNames))
	for _, n := range allowedNames {
		names[n] = struct{}{}
	}

	return &Classifier{
		network:        network,
		addressPattern: pattern,
		permissive:     permissive,
		categoryID:     categoryID,
		allowedNames:   names,
	}, nil
}

// Classify maps an offer to exactly one kind based on which sides carry
// items. Total over all four combinations.
func (c *Classifier) Classify(offer *entities.OfferSnapshot) entities.OfferKind {
	giving := len(offer.ItemsToGive) > 0
	receiving := len(offer.ItemsToReceive) > 0

	switch {
	case giving && receiving:
		return entities.OfferKindAmbiguous
	case giving:
		return entities.OfferKindWithdraw
	case receiving:
		return entities.OfferKindDeposit
	default:
		return entities.OfferKindInvalid
	}
}

// ValidateDeposit runs the structural checks for a deposit offer, cheapest
// and most certain first. The offer message must carry the payout address.
func (c *Classifier) ValidateDeposit(offer *entities.OfferSnapshot) Decision {
	if offer.Glitched {
		return decline("The trade network reported this offer as glitched. Please re-send it.")
	}
	if offer.EscrowEnds != nil {
		return decline("Offers subject to an escrow hold are not accepted.")
	}

	if strings.TrimSpace(offer.Message) == "" {
		return decline(fmt.Sprintf("No payout address found. Put your %s address in the offer message.", c.network))
	}
	// The raw message is used verbatim as the payout destination, so padding
	// around an otherwise valid address must fail the grammar here rather
	// than reach the wallet.
	if !c.addressPattern.MatchString(offer.Message) {
		return decline(fmt.Sprintf("The offer message does not look like a valid %s address.", c.network))
	}

	for _, item := range offer.ItemsToReceive {
		if !c.IsAllowedItem(item) {
			return decline(fmt.Sprintf("Item %q is not on the accepted list.", item.Name))
		}
	}

	return allow()
}

// ValidateWithdraw runs the structural checks for a withdrawal offer.
// Balance sufficiency is evaluated separately by the settlement engine.
func (c *Classifier) ValidateWithdraw(offer *entities.OfferSnapshot) Decision {
	if offer.Glitched {
		return decline("The trade network reported this offer as glitched. Please re-send it.")
	}
	if len(offer.ItemsToReceive) > 0 {
		return decline("Withdrawal offers must not ask for items in return.")
	}
	if offer.EscrowEnds != nil {
		return decline("Offers subject to an escrow hold are not accepted.")
	}

	for _, item := range offer.ItemsToGive {
		if !c.IsAllowedItem(item) {
			return decline(fmt.Sprintf("Item %q is not on the accepted list.", item.Name))
		}
	}

	return allow()
}

// IsAllowedItem reports whether the item is tradable. In permissive mode
// every item passes; otherwise the item must carry the configured category id
// and its display name must be on the allow-list.
func (c *Classifier) IsAllowedItem(item entities.TradeItem) bool {
	if c.permissive {
		return true
	}
	if item.CategoryID != c.categoryID {
		return false
	}
	_, ok := c.allowedNames[item.Name]
	return ok
}
