// Package txpoller ingests inbound blockchain transfers and drives customer
// balance credits. One persisted cursor per network marks the last transfer
// attempted; every tick processes only what arrived after it.
package txpoller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/keyvault-service/keyvault_service/internal/domain/entities"
	domerrors "github.com/keyvault-service/keyvault_service/internal/domain/errors"
	"github.com/keyvault-service/keyvault_service/internal/infrastructure/cache"
	"github.com/keyvault-service/keyvault_service/pkg/logger"
	"github.com/keyvault-service/keyvault_service/pkg/metrics"
)

// WalletReader lists inbound transfers from the wallet node.
type WalletReader interface {
	GetTransfers(ctx context.Context, minHeight uint64) ([]entities.Transfer, error)
}

// AddressResolver attributes a transfer's payment id to a customer.
type AddressResolver interface {
	DeriveAddress(ctx context.Context, paymentID string) (string, error)
	LookupByAddress(ctx context.Context, address string) (*entities.Customer, error)
}

// BalanceCrediter credits a customer balance.
type BalanceCrediter interface {
	Credit(ctx context.Context, identity string, amount decimal.Decimal) error
}

// PriceQuoter returns the cached exchange rate.
type PriceQuoter interface {
	CurrentPrice() (decimal.Decimal, error)
}

// Messenger notifies a customer about a credited deposit.
type Messenger interface {
	SendMessage(ctx context.Context, identity, text string) error
}

// Alerter notifies the operator about unattributable funds.
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

// Config holds poller configuration.
type Config struct {
	MinBlockHeight uint64
	Interval       time.Duration
}

// Worker polls the wallet for inbound transfers.
type Worker struct {
	wallet    WalletReader
	registry  AddressResolver
	balances  BalanceCrediter
	cursor    cache.CursorStore
	oracle    PriceQuoter
	messenger Messenger
	alerter   Alerter
	metrics   *metrics.Metrics
	logger    *logger.Logger
	config    Config

	polling atomic.Bool
	stopCh  chan struct{}
}

// NewWorker creates a new transaction poller.
func NewWorker(
	wallet WalletReader,
	registry AddressResolver,
	balances BalanceCrediter,
	cursor cache.CursorStore,
	oracle PriceQuoter,
	messenger Messenger,
	alerter Alerter,
	metrics *metrics.Metrics,
	logger *logger.Logger,
	config Config,
) *Worker {
	return &Worker{
		wallet:    wallet,
		registry:  registry,
		balances:  balances,
		cursor:    cursor,
		oracle:    oracle,
		messenger: messenger,
		alerter:   alerter,
		metrics:   metrics,
		logger:    logger,
		config:    config,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the polling loop. A persisted cursor is a hard precondition:
// without it the poller cannot tell old transfers from new and would either
// re-credit history or skip real deposits, so startup halts instead.
func (w *Worker) Start(ctx context.Context) {
	if _, err := w.cursor.Get(ctx); err != nil {
		if errors.Is(err, cache.ErrCursorNotSet) {
			w.logger.Fatal("no poll cursor persisted; seed one in maintenance mode before going live")
		}
		w.logger.Fatal("failed to read poll cursor", "error", err)
	}

	w.logger.Info("Starting transaction poller",
		"interval", w.config.Interval.String(),
		"min_block_height", w.config.MinBlockHeight,
	)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Transaction poller stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("Transaction poller stopped")
			return
		case <-ticker.C:
			// A tick landing while the previous poll still runs is dropped,
			// not queued; the next tick picks up whatever accumulated.
			if !w.polling.CompareAndSwap(false, true) {
				w.logger.Warn("poll tick dropped, previous poll still running")
				w.metrics.PollTicksDropped.Inc()
				continue
			}
			go func() {
				defer w.polling.Store(false)
				w.poll(ctx)
			}()
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// poll runs one ingestion pass. A transport error aborts the pass and leaves
// the cursor where it was; the batch is retried in full on the next tick.
func (w *Worker) poll(ctx context.Context) {
	transfers, err := w.wallet.GetTransfers(ctx, w.config.MinBlockHeight)
	if err != nil {
		w.logger.Warn("failed to list transfers, will retry next tick", "error", err)
		w.metrics.PollBatchesAborted.Inc()
		return
	}

	cursorTxID, err := w.cursor.Get(ctx)
	if err != nil {
		w.logger.Error("failed to read poll cursor", "error", err)
		w.metrics.PollBatchesAborted.Inc()
		return
	}

	batch, ok := newSince(transfers, cursorTxID)
	if !ok {
		// The transfer the cursor points at vanished from the window.
		// Guessing where to resume risks double credits, so halt.
		w.logger.Fatal("poll cursor not present in transfer window",
			"cursor_txid", cursorTxID,
			"window_size", len(transfers),
		)
	}
	if len(batch) == 0 {
		return
	}

	w.logger.Info("processing transfer batch", "count", len(batch), "cursor_txid", cursorTxID)

	for _, transfer := range batch {
		if err := w.processTransfer(ctx, transfer); err != nil {
			w.logger.Warn("transfer batch aborted, will retry next tick",
				"txid", transfer.TxID,
				"error", err,
			)
			w.metrics.PollBatchesAborted.Inc()
			return
		}
	}
}

// processTransfer settles one inbound transfer and advances the cursor past
// it. Returning an error aborts the batch with the cursor still pointing at
// the previous transfer.
func (w *Worker) processTransfer(ctx context.Context, transfer entities.Transfer) error {
	if transfer.PaymentID == entities.NoPaymentID {
		w.logger.Warn("transfer carries no payment id, skipping",
			"txid", transfer.TxID,
			"amount_atomic", transfer.Amount,
		)
		w.metrics.TransactionsSkipped.WithLabelValues("no_payment_id").Inc()
		return w.advanceCursor(ctx, transfer.TxID)
	}

	address, err := w.registry.DeriveAddress(ctx, transfer.PaymentID)
	if err != nil {
		return fmt.Errorf("derive address: %w", err)
	}

	customer, err := w.registry.LookupByAddress(ctx, address)
	if err != nil {
		if domerrors.IsNotFound(err) {
			w.logger.Warn("transfer to unknown address, skipping",
				"txid", transfer.TxID,
				"address", address,
				"amount_atomic", transfer.Amount,
			)
			w.metrics.TransactionsSkipped.WithLabelValues("unknown_address").Inc()
			w.alertOperator(ctx, "Funds received on unknown address",
				fmt.Sprintf("Transfer %s (%d atomic units) arrived on %s which no customer owns. Investigate.",
					transfer.TxID, transfer.Amount, address))
			return w.advanceCursor(ctx, transfer.TxID)
		}
		return fmt.Errorf("look up transfer owner: %w", err)
	}

	price, err := w.oracle.CurrentPrice()
	if err != nil {
		return fmt.Errorf("credit transfer %s: %w", transfer.TxID, err)
	}

	// Credited at the rate cached now, not at the transfer's original time.
	coin := entities.CoinFromAtomic(transfer.Amount)
	fiat := coin.Mul(price)

	if err := w.balances.Credit(ctx, customer.Identity, fiat); err != nil {
		return fmt.Errorf("credit %s to %s: %w", fiat, customer.Identity, err)
	}

	w.logger.Info("transfer credited",
		"txid", transfer.TxID,
		"identity", customer.Identity,
		"amount_coin", coin.String(),
		"amount_usd", fiat.String(),
		"height", transfer.Height,
	)
	w.metrics.TransactionsCredited.Inc()

	if err := w.messenger.SendMessage(ctx, customer.Identity,
		fmt.Sprintf("Deposit received: %s coin credited as $%s.", coin, fiat)); err != nil {
		w.logger.Warn("failed to notify customer of credit", "identity", customer.Identity, "error", err)
	}

	return w.advanceCursor(ctx, transfer.TxID)
}

func (w *Worker) advanceCursor(ctx context.Context, txid string) error {
	if err := w.cursor.Set(ctx, txid); err != nil {
		// The transfer was already handled; re-processing it next tick is the
		// known at-least-once window downstream must tolerate.
		return fmt.Errorf("persist cursor %s: %w", txid, err)
	}
	return nil
}

func (w *Worker) alertOperator(ctx context.Context, subject, body string) {
	w.metrics.OperatorAlerts.WithLabelValues("unknown_address").Inc()
	if err := w.alerter.Alert(ctx, subject, body); err != nil {
		w.logger.Error("failed to send operator alert", "error", err)
	}
}

// newSince sorts transfers ascending and returns those strictly after the
// cursor. Height alone does not discriminate transfers in the same block, so
// the sort key is (height, txid). ok is false when the cursor txid is absent
// from the window.
func newSince(transfers []entities.Transfer, cursorTxID string) ([]entities.Transfer, bool) {
	if len(transfers) == 0 {
		return nil, false
	}

	sorted := make([]entities.Transfer, len(transfers))
	copy(sorted, transfers)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Height != sorted[j].Height {
			return sorted[i].Height < sorted[j].Height
		}
		return sorted[i].TxID < sorted[j].TxID
	})

	if sorted[len(sorted)-1].TxID == cursorTxID {
		return nil, true
	}

	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].TxID == cursorTxID {
			return sorted[i+1:], true
		}
	}

	return nil, false
}
