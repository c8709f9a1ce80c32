// Package settlement orchestrates trade-offer handling: classification,
// validation, balance mutation, wallet payouts and counterparty notification.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/keyvault-service/keyvault_service/internal/domain/entities"
	domerrors "github.com/keyvault-service/keyvault_service/internal/domain/errors"
	"github.com/keyvault-service/keyvault_service/internal/domain/services/classifier"
	"github.com/keyvault-service/keyvault_service/internal/infrastructure/config"
	"github.com/keyvault-service/keyvault_service/pkg/logger"
	"github.com/keyvault-service/keyvault_service/pkg/metrics"
)

// Offer is a live trade offer on the trading network. Snapshot is immutable;
// the act operations drive the network-side state machine.
type Offer interface {
	Snapshot() *entities.OfferSnapshot
	Accept(ctx context.Context) (entities.AcceptStatus, error)
	Decline(ctx context.Context) error
	Confirm(ctx context.Context) (entities.AcceptStatus, error)
}

// Messenger sends chat messages and updates the bot's presence line.
type Messenger interface {
	SendMessage(ctx context.Context, identity, text string) error
	SetStatus(ctx context.Context, text string) error
}

// Inventory reports how many tradable items the bot currently holds.
type Inventory interface {
	TradableCount(ctx context.Context) (int, error)
}

// Wallet is the payout surface of the wallet node.
type Wallet interface {
	GetBalance(ctx context.Context) (uint64, error)
	Transfer(ctx context.Context, address string, amount uint64, doNotRelay bool) (*entities.TransferReceipt, error)
}

// BalanceStore mutates and reads customer balances.
type BalanceStore interface {
	GetBalance(ctx context.Context, identity string) (decimal.Decimal, error)
	Credit(ctx context.Context, identity string, amount decimal.Decimal) error
	Debit(ctx context.Context, identity string, amount decimal.Decimal) error
}

// AuditLog appends settlement audit rows.
type AuditLog interface {
	RecordDeposit(ctx context.Context, record *entities.DepositRecord) error
	RecordWithdrawal(ctx context.Context, record *entities.WithdrawalRecord) error
}

// PriceQuoter returns the cached exchange rate.
type PriceQuoter interface {
	CurrentPrice() (decimal.Decimal, error)
}

// Alerter notifies the operator about incidents needing manual attention.
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

const supportMessage = "Something went wrong finalizing your trade. Please contact support with your offer id."

// Service implements the settlement engine.
type Service struct {
	cfg        *config.Config
	classifier *classifier.Classifier
	oracle     PriceQuoter
	balances   BalanceStore
	audit      AuditLog
	wallet     Wallet
	inventory  Inventory
	messenger  Messenger
	alerter    Alerter
	metrics    *metrics.Metrics
	logger     *logger.Logger

	buyPrice  decimal.Decimal
	sellPrice decimal.Decimal
	capacity  int
}

// NewService creates a new settlement engine.
func NewService(
	cfg *config.Config,
	cls *classifier.Classifier,
	oracle PriceQuoter,
	balances BalanceStore,
	audit AuditLog,
	wallet Wallet,
	inventory Inventory,
	messenger Messenger,
	alerter Alerter,
	metrics *metrics.Metrics,
	logger *logger.Logger,
) (*Service, error) {
	buy, sell, err := cfg.Trading.Prices()
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:        cfg,
		classifier: cls,
		oracle:     oracle,
		balances:   balances,
		audit:      audit,
		wallet:     wallet,
		inventory:  inventory,
		messenger:  messenger,
		alerter:    alerter,
		metrics:    metrics,
		logger:     logger,
		buyPrice:   buy,
		sellPrice:  sell,
		capacity:   cfg.Trading.InventoryCapacity,
	}, nil
}

// HandleOffer is the entry point for one incoming trade offer.
func (s *Service) HandleOffer(ctx context.Context, offer Offer) error {
	snap := offer.Snapshot()

	s.logger.Info("offer received",
		"offer_id", snap.ID,
		"partner", snap.Partner,
		"items_to_give", len(snap.ItemsToGive),
		"items_to_receive", len(snap.ItemsToReceive),
	)

	if s.cfg.IsBanned(snap.Partner) {
		return s.decline(ctx, offer, snap, "banned", "You are not allowed to trade with this bot.")
	}

	if s.cfg.Maintenance && !s.cfg.IsAdmin(snap.Partner) {
		s.logger.Info("offer ignored, maintenance mode", "offer_id", snap.ID, "partner", snap.Partner)
		return nil
	}

	switch s.classifier.Classify(snap) {
	case entities.OfferKindDeposit:
		return s.handleDeposit(ctx, offer, snap)
	case entities.OfferKindWithdraw:
		return s.handleWithdraw(ctx, offer, snap)
	case entities.OfferKindAmbiguous:
		return s.decline(ctx, offer, snap, "ambiguous", "Offers with items on both sides are not supported. Send a separate offer per direction.")
	default:
		return s.decline(ctx, offer, snap, "empty", "This offer contains no items.")
	}
}

// QuoteBuy returns the coin payout for count incoming items at the cached
// rate, truncated to the coin's full fractional precision.
func (s *Service) QuoteBuy(count int) (decimal.Decimal, error) {
	price, err := s.oracle.CurrentPrice()
	if err != nil {
		return decimal.Zero, err
	}
	payout := s.buyPrice.Mul(decimal.NewFromInt(int64(count))).Div(price)
	return payout.Truncate(entities.CoinDecimals), nil
}

// QuoteSell returns the fiat cost of withdrawing count items.
func (s *Service) QuoteSell(count int) decimal.Decimal {
	return s.sellPrice.Mul(decimal.NewFromInt(int64(count)))
}

func (s *Service) handleDeposit(ctx context.Context, offer Offer, snap *entities.OfferSnapshot) error {
	count := len(snap.ItemsToReceive)

	if decision := s.classifier.ValidateDeposit(snap); !decision.Allowed {
		return s.decline(ctx, offer, snap, "validation", decision.Reason)
	}

	payout, err := s.QuoteBuy(count)
	if err != nil {
		if errors.Is(err, domerrors.ErrPriceUnavailable) {
			return s.decline(ctx, offer, snap, "price_unavailable", "The bot is still starting up. Please try again in a minute.")
		}
		return fmt.Errorf("quote deposit payout: %w", err)
	}
	payoutAtomic := entities.AtomicFromCoin(payout)

	liquidity, err := s.wallet.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("check wallet liquidity: %w", err)
	}
	if liquidity < payoutAtomic {
		s.alert(ctx, "liquidity",
			"Hot wallet liquidity exhausted",
			fmt.Sprintf("Offer %s needs %s coin but unlocked balance is %s. Top up the hot wallet.",
				snap.ID, payout, entities.CoinFromAtomic(liquidity)))
		return s.decline(ctx, offer, snap, "liquidity", "The bot cannot take this trade right now. Please try again later.")
	}

	held, err := s.inventory.TradableCount(ctx)
	if err != nil {
		return fmt.Errorf("check inventory capacity: %w", err)
	}
	if s.capacity-held < count {
		s.alert(ctx, "capacity",
			"Inventory capacity exhausted",
			fmt.Sprintf("Offer %s brings %d items but only %d slots remain of %d.",
				snap.ID, count, s.capacity-held, s.capacity))
		return s.decline(ctx, offer, snap, "capacity", "The bot cannot take this trade right now. Please try again later.")
	}

	status, err := offer.Accept(ctx)
	if err != nil {
		return fmt.Errorf("accept deposit offer %s: %w", snap.ID, err)
	}
	if status == entities.AcceptStatusEscrow {
		s.logger.Warn("deposit offer went to escrow, no credit issued",
			"offer_id", snap.ID, "partner", snap.Partner)
		s.notify(ctx, snap.Partner, "Your offer was placed in an escrow hold by the trade network. It will not be processed.")
		return nil
	}

	// Dry-run transfer to learn the network fee; the fee comes out of the
	// payout so the wallet never overspends the quoted amount.
	dryRun, err := s.wallet.Transfer(ctx, snap.Message, payoutAtomic, true)
	if err != nil {
		return s.payoutFailed(ctx, snap, err)
	}
	if dryRun.Fee >= payoutAtomic {
		return s.payoutFailed(ctx, snap, fmt.Errorf("network fee %d exceeds payout %d", dryRun.Fee, payoutAtomic))
	}
	finalAtomic := payoutAtomic - dryRun.Fee

	receipt, err := s.wallet.Transfer(ctx, snap.Message, finalAtomic, false)
	if err != nil {
		return s.payoutFailed(ctx, snap, err)
	}

	finalCoin := entities.CoinFromAtomic(finalAtomic)
	s.logger.Info("deposit settled",
		"offer_id", snap.ID,
		"partner", snap.Partner,
		"items", count,
		"amount_coin", finalCoin.String(),
		"fee", dryRun.Fee,
		"tx_hash", receipt.TxHash,
	)
	s.metrics.OffersAccepted.WithLabelValues("deposit").Inc()

	s.notify(ctx, snap.Partner, fmt.Sprintf("Deposit complete. Sent %s coin (network fee deducted). Tx: %s", finalCoin, receipt.TxHash))

	record := &entities.DepositRecord{
		ID:          uuid.New(),
		Identity:    snap.Partner,
		ItemCount:   count,
		AddressUsed: snap.Message,
		AmountSent:  finalCoin,
		OfferID:     snap.ID,
		CreatedAt:   time.Now(),
	}
	if err := s.audit.RecordDeposit(ctx, record); err != nil {
		s.logger.Error("failed to write deposit audit row", "offer_id", snap.ID, "error", err)
	}

	s.RefreshStatus(ctx)
	return nil
}

func (s *Service) handleWithdraw(ctx context.Context, offer Offer, snap *entities.OfferSnapshot) error {
	count := len(snap.ItemsToGive)

	if decision := s.classifier.ValidateWithdraw(snap); !decision.Allowed {
		return s.decline(ctx, offer, snap, "validation", decision.Reason)
	}

	cost := s.QuoteSell(count)

	balance, err := s.balances.GetBalance(ctx, snap.Partner)
	if err != nil {
		if domerrors.IsNotFound(err) {
			balance = decimal.Zero
		} else {
			return fmt.Errorf("read balance for %s: %w", snap.Partner, err)
		}
	}
	if balance.LessThan(cost) {
		return s.decline(ctx, offer, snap, "balance",
			fmt.Sprintf("Insufficient balance: %d items cost $%s but you have $%s.", count, cost, balance))
	}

	if err := s.balances.Debit(ctx, snap.Partner, cost); err != nil {
		if errors.Is(err, domerrors.ErrInsufficientBalance) {
			// Lost a race against another withdrawal from the same customer.
			return s.decline(ctx, offer, snap, "balance",
				fmt.Sprintf("Insufficient balance: %d items cost $%s.", count, cost))
		}
		return fmt.Errorf("debit %s from %s: %w", cost, snap.Partner, err)
	}

	status, err := offer.Accept(ctx)
	if err != nil {
		s.compensateDebit(ctx, snap, cost, fmt.Sprintf("accept failed: %v", err))
		return fmt.Errorf("accept withdrawal offer %s: %w", snap.ID, err)
	}
	if status == entities.AcceptStatusEscrow {
		s.compensateDebit(ctx, snap, cost, "offer went to escrow")
		s.notify(ctx, snap.Partner, "Your offer was placed in an escrow hold by the trade network. Your balance has been restored.")
		return nil
	}

	if _, err := offer.Confirm(ctx); err != nil {
		// The acceptance already went through; the trade may still complete
		// on the network side, so an automatic refund here could pay twice.
		// Held for manual resolution instead.
		s.alert(ctx, "confirm_failed",
			"Withdrawal confirmation failed",
			fmt.Sprintf("Offer %s for %s was accepted and debited $%s but confirmation failed: %v. Resolve manually.",
				snap.ID, snap.Partner, cost, err))
		s.notify(ctx, snap.Partner, supportMessage)
		return nil
	}

	s.logger.Info("withdrawal settled",
		"offer_id", snap.ID,
		"partner", snap.Partner,
		"items", count,
		"amount_usd", cost.String(),
	)
	s.metrics.OffersAccepted.WithLabelValues("withdraw").Inc()

	s.notify(ctx, snap.Partner, fmt.Sprintf("Withdrawal complete. %d items sent, $%s deducted from your balance.", count, cost))

	record := &entities.WithdrawalRecord{
		ID:             uuid.New(),
		Identity:       snap.Partner,
		ItemCount:      count,
		AmountDeducted: cost,
		OfferID:        snap.ID,
		CreatedAt:      time.Now(),
	}
	if err := s.audit.RecordWithdrawal(ctx, record); err != nil {
		s.logger.Error("failed to write withdrawal audit row", "offer_id", snap.ID, "error", err)
	}

	s.RefreshStatus(ctx)
	return nil
}

// payoutFailed handles a failed outbound transfer after the items were
// already taken. There is no automatic retry and no automatic refund; the
// operator resolves it by hand.
func (s *Service) payoutFailed(ctx context.Context, snap *entities.OfferSnapshot, cause error) error {
	incident := "payout_failed"
	if errors.Is(cause, domerrors.ErrInvalidDestination) {
		incident = "invalid_destination"
	}

	s.logger.Error("deposit payout failed after items were taken",
		"offer_id", snap.ID,
		"partner", snap.Partner,
		"address", snap.Message,
		"error", cause,
	)
	s.alert(ctx, incident,
		"Deposit payout failed",
		fmt.Sprintf("Offer %s from %s: items taken but payout to %s failed: %v. Resolve manually.",
			snap.ID, snap.Partner, snap.Message, cause))
	s.notify(ctx, snap.Partner, supportMessage)
	return nil
}

// compensateDebit restores a debit whose withdrawal did not go through.
func (s *Service) compensateDebit(ctx context.Context, snap *entities.OfferSnapshot, amount decimal.Decimal, reason string) {
	s.logger.Warn("compensating withdrawal debit",
		"offer_id", snap.ID,
		"partner", snap.Partner,
		"amount_usd", amount.String(),
		"reason", reason,
	)

	if err := s.balances.Credit(ctx, snap.Partner, amount); err != nil {
		// Funds are now stuck; this needs a human.
		s.alert(ctx, "compensation_failed",
			"Compensating credit failed",
			fmt.Sprintf("Offer %s: could not restore $%s to %s after %s: %v. Balance is short, fix manually.",
				snap.ID, amount, snap.Partner, reason, err))
	}
}

// decline declines the offer and tells the counterparty why.
func (s *Service) decline(ctx context.Context, offer Offer, snap *entities.OfferSnapshot, reason, userText string) error {
	s.logger.Info("offer declined",
		"offer_id", snap.ID,
		"partner", snap.Partner,
		"reason", reason,
	)
	s.metrics.OffersDeclined.WithLabelValues(reason).Inc()

	if err := offer.Decline(ctx); err != nil {
		s.logger.Warn("failed to decline offer", "offer_id", snap.ID, "error", err)
	}
	s.notify(ctx, snap.Partner, userText)
	return nil
}

// notify sends a chat message; notification failures are logged, never fatal.
func (s *Service) notify(ctx context.Context, identity, text string) {
	if err := s.messenger.SendMessage(ctx, identity, text); err != nil {
		s.logger.Warn("failed to notify counterparty", "identity", identity, "error", err)
	}
}

// alert counts and dispatches an operator incident.
func (s *Service) alert(ctx context.Context, incident, subject, body string) {
	s.metrics.OperatorAlerts.WithLabelValues(incident).Inc()
	if err := s.alerter.Alert(ctx, subject, body); err != nil {
		s.logger.Error("failed to send operator alert", "incident", incident, "error", err)
	}
}

// StatusLine builds the presence line shown on the bot's profile.
func (s *Service) StatusLine(ctx context.Context) (string, error) {
	if s.cfg.Maintenance {
		return "Maintenance", nil
	}

	held, err := s.inventory.TradableCount(ctx)
	if err != nil {
		return "", fmt.Errorf("read inventory count: %w", err)
	}
	return fmt.Sprintf("B: $%s | S: $%s | %d/%d", s.buyPrice, s.sellPrice, held, s.capacity), nil
}

// RefreshStatus recomputes and publishes the presence line. Cosmetic;
// failures are logged and dropped.
func (s *Service) RefreshStatus(ctx context.Context) {
	line, err := s.StatusLine(ctx)
	if err != nil {
		s.logger.Warn("failed to build status line", "error", err)
		return
	}
	if err := s.messenger.SetStatus(ctx, line); err != nil {
		s.logger.Warn("failed to set status line", "error", err)
	}
}
