package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/keyvault-service/keyvault_service/internal/domain/entities"
	domerrors "github.com/keyvault-service/keyvault_service/internal/domain/errors"
	"github.com/keyvault-service/keyvault_service/internal/domain/services/classifier"
	"github.com/keyvault-service/keyvault_service/internal/infrastructure/config"
	"github.com/keyvault-service/keyvault_service/pkg/logger"
	"github.com/keyvault-service/keyvault_service/pkg/metrics"
)

const payoutAddress = "48abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789abcdefghijklmnopqrstuvwxyz01234"

type MockOffer struct {
	mock.Mock
	snapshot *entities.OfferSnapshot
}

func (m *MockOffer) Snapshot() *entities.OfferSnapshot {
	return m.snapshot
}

func (m *MockOffer) Accept(ctx context.Context) (entities.AcceptStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(entities.AcceptStatus), args.Error(1)
}

func (m *MockOffer) Decline(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockOffer) Confirm(ctx context.Context) (entities.AcceptStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(entities.AcceptStatus), args.Error(1)
}

type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) SendMessage(ctx context.Context, identity, text string) error {
	args := m.Called(ctx, identity, text)
	return args.Error(0)
}

func (m *MockMessenger) SetStatus(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

type MockInventory struct {
	mock.Mock
}

func (m *MockInventory) TradableCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockWallet struct {
	mock.Mock
}

func (m *MockWallet) GetBalance(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockWallet) Transfer(ctx context.Context, address string, amount uint64, doNotRelay bool) (*entities.TransferReceipt, error) {
	args := m.Called(ctx, address, amount, doNotRelay)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.TransferReceipt), args.Error(1)
}

type MockBalanceStore struct {
	mock.Mock
}

func (m *MockBalanceStore) GetBalance(ctx context.Context, identity string) (decimal.Decimal, error) {
	args := m.Called(ctx, identity)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockBalanceStore) Credit(ctx context.Context, identity string, amount decimal.Decimal) error {
	args := m.Called(ctx, identity, amount)
	return args.Error(0)
}

func (m *MockBalanceStore) Debit(ctx context.Context, identity string, amount decimal.Decimal) error {
	args := m.Called(ctx, identity, amount)
	return args.Error(0)
}

type MockAuditLog struct {
	mock.Mock
}

func (m *MockAuditLog) RecordDeposit(ctx context.Context, record *entities.DepositRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockAuditLog) RecordWithdrawal(ctx context.Context, record *entities.WithdrawalRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

type MockPriceQuoter struct {
	mock.Mock
}

func (m *MockPriceQuoter) CurrentPrice() (decimal.Decimal, error) {
	args := m.Called()
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) Alert(ctx context.Context, subject, body string) error {
	args := m.Called(ctx, subject, body)
	return args.Error(0)
}

type testDeps struct {
	oracle    *MockPriceQuoter
	balances  *MockBalanceStore
	audit     *MockAuditLog
	wallet    *MockWallet
	inventory *MockInventory
	messenger *MockMessenger
	alerter   *MockAlerter
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
		Banned:      []string{"banned-user"},
		Trading: config.TradingConfig{
			BuyPriceUSD:       "10.00",
			SellPriceUSD:      "0.10",
			AllowedItemNames:  []string{"Chroma 2 Case"},
			ItemCategoryID:    730,
			InventoryCapacity: 1000,
		},
	}

	cls, err := classifier.New("mainnet", 730, []string{"Chroma 2 Case"}, false)
	require.NoError(t, err)

	deps := &testDeps{
		oracle:    new(MockPriceQuoter),
		balances:  new(MockBalanceStore),
		audit:     new(MockAuditLog),
		wallet:    new(MockWallet),
		inventory: new(MockInventory),
		messenger: new(MockMessenger),
		alerter:   new(MockAlerter),
	}

	svc, err := NewService(
		cfg, cls, deps.oracle, deps.balances, deps.audit,
		deps.wallet, deps.inventory, deps.messenger, deps.alerter,
		metrics.New(prometheus.NewRegistry()), logger.New("debug", "test"),
	)
	require.NoError(t, err)

	return svc, deps
}

func caseItems(n int) []entities.TradeItem {
	items := make([]entities.TradeItem, n)
	for i := range items {
		items[i] = entities.TradeItem{CategoryID: 730, Name: "Chroma 2 Case"}
	}
	return items
}

func TestQuoteBuyTruncatesToTwelveDecimals(t *testing.T) {
	svc, deps := newTestService(t)
	deps.oracle.On("CurrentPrice").Return(decimal.RequireFromString("150.00"), nil)

	payout, err := svc.QuoteBuy(20)
	require.NoError(t, err)
	assert.Equal(t, "1.333333333333", payout.String())
}

func TestQuoteSell(t *testing.T) {
	svc, _ := newTestService(t)
	assert.True(t, svc.QuoteSell(5).Equal(decimal.RequireFromString("0.50")))
}

func TestDepositSettlesWithFeeDeducted(t *testing.T) {
	svc, deps := newTestService(t)

	// 3 items at $10.00 against a rate of $150.00 is 0.2 coin
	payoutAtomic := uint64(200_000_000_000)
	fee := uint64(10_000_000_000)

	deps.oracle.On("CurrentPrice").Return(decimal.RequireFromString("150.00"), nil)
	deps.wallet.On("GetBalance", mock.Anything).Return(uint64(5_000_000_000_000), nil)
	deps.inventory.On("TradableCount", mock.Anything).Return(10, nil)
	deps.wallet.On("Transfer", mock.Anything, payoutAddress, payoutAtomic, true).
		Return(&entities.TransferReceipt{Fee: fee}, nil)
	deps.wallet.On("Transfer", mock.Anything, payoutAddress, payoutAtomic-fee, false).
		Return(&entities.TransferReceipt{Fee: fee, TxHash: "tx-hash-1"}, nil)
	deps.messenger.On("SendMessage", mock.Anything, "alice", mock.Anything).Return(nil)
	deps.messenger.On("SetStatus", mock.Anything, mock.Anything).Return(nil)
	deps.audit.On("RecordDeposit", mock.Anything, mock.MatchedBy(func(r *entities.DepositRecord) bool {
		return r.Identity == "alice" && r.ItemCount == 3 && r.AmountSent.Equal(entities.CoinFromAtomic(payoutAtomic-fee))
	})).Return(nil)

	offer := &MockOffer{snapshot: &entities.OfferSnapshot{
		ID:             "offer-1",
		Partner:        "alice",
		ItemsToReceive: caseItems(3),
		Message:        payoutAddress,
	}}
	offer.On("Accept", mock.Anything).Return(entities.AcceptStatusOK, nil)

	require.NoError(t, svc.HandleOffer(context.Background(), offer))

	deps.wallet.AssertExpectations(t)
	deps.audit.AssertExpectations(t)
	offer.AssertExpectations(t)
}

func TestDepositDeclinesPaddedPayoutAddress(t *testing.T) {
	svc, deps := newTestService(t)
	deps.messenger.On("SendMessage", mock.Anything, "alice", mock.Anything).Return(nil)

	// The message is handed to the wallet verbatim as the destination, so a
	// whitespace-padded address must be declined up front, not accepted and
	// then failed at payout time.
	offer := &MockOffer{snapshot: &entities.OfferSnapshot{
		ID:             "offer-13",
		Partner:        "alice",
		ItemsToReceive: caseItems(1),
		Message:        " " + payoutAddress + " ",
	}}
	offer.On("Decline", mock.Anything).Return(nil)

	require.NoError(t, svc.HandleOffer(context.Background(), offer))

	offer.AssertExpectations(t)
	offer.AssertNotCalled(t, "Accept", mock.Anything)
	deps.wallet.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDepositAuditRecordedForFirstTimePartner(t *testing.T) {
	svc, deps := newTestService(t)

	// A deposit counterparty never has a customer row; the flow must not
	// consult the balance store and the audit row must still be written.
	deps.oracle.On("CurrentPrice").Return(decimal.RequireFromString("150.00"), nil)
	deps.wallet.On("GetBalance", mock.Anything).Return(uint64(5_000_000_000_000), nil)
	deps.inventory.On("TradableCount", mock.Anything).Return(10, nil)
	deps.wallet.On("Transfer", mock.Anything, payoutAddress, mock.Anything, true).
		Return(&entities.TransferReceipt{Fee: 10_000_000_000}, nil)
	deps.wallet.On("Transfer", mock.Anything, payoutAddress, mock.Anything, false).
		Return(&entities.TransferReceipt{TxHash: "tx-hash-2"}, nil)
	deps.messenger.On("SendMessage", mock.Anything, "stranger", mock.Anything).Return(nil)
	deps.messenger.On("SetStatus", mock.Anything, mock.Anything).Return(nil)
	deps.audit.On("RecordDeposit", mock.Anything, mock.MatchedBy(func(r *entities.DepositRecord) bool {
		return r.Identity == "stranger"
	})).Return(nil)

	offer := &MockOffer{snapshot: &entities.OfferSnapshot{
		ID:             "offer-14",
		Partner:        "stranger",
		ItemsToReceive: caseItems(1),
		Message:        payoutAddress,
	}}
	offer.On("Accept", mock.Anything).Return(entities.AcceptStatusOK, nil)

	require.NoError(t, svc.HandleOffer(context.Background(), offer))

	deps.audit.AssertExpectations(t)
	deps.balances.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything)
	deps.balances.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything)
}

func TestDepositDeclinedWhileLiquidityShort(t *testing.T) {
	svc, deps := newTestService(t)

	deps.oracle.On("CurrentPrice").Return(decimal.RequireFromString("150.00"), nil)
	deps.wallet.On("GetBalance", mock.Anything).Return(uint64(1), nil)
	deps.alerter.On("Alert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	deps.messenger.On("SendMessage", mock.Anything, "alice", mock.Anything).Return(nil)

	offer := &MockOffer{snapshot: &entities.OfferSnapshot{
		ID:             "offer-2",
		Partner:        "alice",
		ItemsToReceive: caseItems(3),
		Message:        payoutAddress,
	}}
	offer.On("Decline", mock.Anything).Return(nil)

	require.NoError(t, svc.HandleOffer(context.Background(), offer))

	offer.AssertExpectations(t)
	deps.alerter.AssertExpectations(t)
	deps.wallet.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDepositStopsOnEscrowOutcome(t *testing.T) {
	svc, deps := newTestService(t)

	deps.oracle.On("CurrentPrice").Return(decimal.RequireFromString("150.00"), nil)
	deps.wallet.On("GetBalance", mock.Anything).Return(uint64(5_000_000_000_000), nil)
	deps.inventory.On("TradableCount", mock.Anything).Return(10, nil)
	deps.messenger.On("SendMessage", mock.Anything, "alice", mock.Anything).Return(nil)

	offer := &MockOffer{snapshot: &entities.OfferSnapshot{
		ID:             "offer-3",
		Partner:        "alice",
		ItemsToReceive: caseItems(1),
		Message:        payoutAddress,
	}}
	offer.On("Accept", mock.Anything).Return(entities.AcceptStatusEscrow, nil)

	require.NoError(t, svc.HandleOffer(context.Background(), offer))

	offer.AssertExpectations(t)
	deps.wallet.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	deps.audit.AssertNotCalled(t, "RecordDeposit", mock.Anything, mock.Anything)
}

func TestDepositInvalidDestinationBecomesIncident(t *testing.T) {
	svc, deps := newTestService(t)

	deps.oracle.On("CurrentPrice").Return(decimal.RequireFromString("150.00"), nil)
	deps.wallet.On("GetBalance", mock.Anything).Return(uint64(5_000_000_000_000), nil)
	deps.inventory.On("TradableCount", mock.Anything).Return(10, nil)
	deps.wallet.On("Transfer", mock.Anything, payoutAddress, mock.Anything, true).
		Return(nil, domerrors.ErrInvalidDestination)
	deps.alerter.On("Alert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	deps.messenger.On("SendMessage", mock.Anything, "alice", supportMessage).Return(nil)

	offer := &MockOffer{snapshot: &entities.OfferSnapshot{
		ID:             "offer-4",
		Partner:        "alice",
		ItemsToReceive: caseItems(1),
		Message:        payoutAddress,
	}}
	offer.On("Accept", mock.Anything).Return(entities.AcceptStatusOK, nil)

	require.NoError(t, svc.HandleOffer(context.Background(), offer))

	deps.alerter.AssertExpectations(t)
	deps.messenger.AssertExpectations(t)
}

func TestWithdrawDeclinedOnInsufficientBalance(t *testing.T) {
	svc, deps := newTestService(t)

	// 5 items at $0.10 cost $0.50 against a stored balance of $0.30
	deps.balances.On("GetBalance", mock.Anything, "bob").
		Return(decimal.RequireFromString("0.30"), nil)
	deps.messenger.On("SendMessage", mock.Anything, "bob", mock.Anything).Return(nil)

	offer := &MockOffer{snapshot: &entities.OfferSnapshot{
		ID:          "offer-5",
		Partner:     "bob",
		ItemsToGive: caseItems(5),
	}}
	offer.On("Decline", mock.Anything).Return(nil)

	require.NoError(t, svc.HandleOffer(context.Background(), offer))

	offer.AssertExpectations(t)
	deps.balances.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything)
}

func TestWithdrawSettles(t *testing.T) {
	svc, deps := newTestService(t)
	cost := decimal.RequireFromString("0.50")

	deps.balances.On("GetBalance", mock.Anything, "bob").Return(decimal.RequireFromString("2.00"), nil)
	deps.balances.On("Debit", mock.Anything, "bob", cost).Return(nil)
	deps.messenger.On("SendMessage", mock.Anything, "bob", mock.Anything).Return(nil)
	deps.messenger.On("SetStatus", mock.Anything, mock.Anything).Return(nil)
	deps.inventory.On("TradableCount", mock.Anything).Return(10, nil)
	deps.audit.On("RecordWithdrawal", mock.Anything, mock.MatchedBy(func(r *entities.WithdrawalRecord) bool {
		return r.Identity == "bob" && r.ItemCount == 5 && r.AmountDeducted.Equal(cost)
	})).Return(nil)

	offer := &MockOffer{snapshot: &entities.OfferSnapshot{
		ID:          "offer-6",
		Partner:     "bob",
		ItemsToGive: caseItems(5),
	}}
	offer.On("Accept", mock.Anything).Return(entities.AcceptStatusOK, nil)
	offer.On("Confirm", mock.Anything).Return(entities.AcceptStatusOK, nil)

	require.NoError(t, svc.HandleOffer(context.Background(), offer))

	deps.balances.AssertExpectations(t)
	deps.audit.AssertExpectations(t)
	offer.AssertExpectations(t)
}

func TestWithdrawCompensatesWhenAcceptFails(t *testing.T) {
	svc, deps := newTestService(t)
	cost := decimal.RequireFromString("0.50")

	deps.balances.On("GetBalance", mock.Anything, "bob").Return(decimal.RequireFromString("2.00"), nil)
	deps.balances.On("Debit", mock.Anything, "bob", cost).Return(nil)
	deps.balances.On("Credit", mock.Anything, "bob", cost).Return(nil)

	offer := &MockOffer{snapshot: &entities.OfferSnapshot{
		ID:          "offer-7",
		Partner:     "bob",
		ItemsToGive: caseItems(5),
	}}
	offer.On("Accept", mock.Anything).Return(entities.AcceptStatus(""), errors.New("gateway down"))

	err := svc.HandleOffer(context.Background(), offer)
	assert.Error(t, err)

	deps.balances.AssertExpectations(t)
}

func TestWithdrawCompensatesOnEscrowOutcome(t *testing.T) {
	svc, deps := newTestService(t)
	cost := decimal.RequireFromString("0.10")

	deps.balances.On("GetBalance", mock.Anything, "bob").Return(decimal.RequireFromString("2.00"), nil)
	deps.balances.On("Debit", mock.Anything, "bob", cost).Return(nil)
	deps.balances.On("Credit", mock.Anything, "bob", cost).Return(nil)
	deps.messenger.On("SendMessage", mock.Anything, "bob", mock.Anything).Return(nil)

	offer := &MockOffer{snapshot: &entities.OfferSnapshot{
		ID:          "offer-8",
		Partner:     "bob",
		ItemsToGive: caseItems(1),
	}}
	offer.On("Accept", mock.Anything).Return(entities.AcceptStatusEscrow, nil)

	require.NoError(t, svc.HandleOffer(context.Background(), offer))

	deps.balances.AssertExpectations(t)
	offer.AssertNotCalled(t, "Confirm", mock.Anything)
}

func TestAmbiguousOfferAlwaysDeclined(t *testing.T) {
	svc, deps := newTestService(t)
	deps.messenger.On("SendMessage", mock.Anything, "carol", mock.Anything).Return(nil)

	offer := &MockOffer{snapshot: &entities.OfferSnapshot{
		ID:             "offer-9",
		Partner:        "carol",
		ItemsToGive:    caseItems(1),
		ItemsToReceive: caseItems(1),
		Message:        payoutAddress,
	}}
	offer.On("Decline", mock.Anything).Return(nil)

	require.NoError(t, svc.HandleOffer(context.Background(), offer))
	offer.AssertExpectations(t)
}

func TestEmptyOfferDeclinedAsNoOp(t *testing.T) {
	svc, deps := newTestService(t)
	deps.messenger.On("SendMessage", mock.Anything, "carol", mock.Anything).Return(nil)

	offer := &MockOffer{snapshot: &entities.OfferSnapshot{ID: "offer-10", Partner: "carol"}}
	offer.On("Decline", mock.Anything).Return(nil)

	require.NoError(t, svc.HandleOffer(context.Background(), offer))
	offer.AssertExpectations(t)
}

func TestBannedPartnerDeclined(t *testing.T) {
	svc, deps := newTestService(t)
	deps.messenger.On("SendMessage", mock.Anything, "banned-user", mock.Anything).Return(nil)

	offer := &MockOffer{snapshot: &entities.OfferSnapshot{
		ID:             "offer-11",
		Partner:        "banned-user",
		ItemsToReceive: caseItems(1),
		Message:        payoutAddress,
	}}
	offer.On("Decline", mock.Anything).Return(nil)

	require.NoError(t, svc.HandleOffer(context.Background(), offer))

	offer.AssertExpectations(t)
	deps.wallet.AssertNotCalled(t, "GetBalance", mock.Anything)
}

func TestMaintenanceModeIgnoresNonAdmins(t *testing.T) {
	svc, deps := newTestService(t)
	svc.cfg.Maintenance = true
	svc.cfg.Admins = []string{"operator"}

	offer := &MockOffer{snapshot: &entities.OfferSnapshot{
		ID:             "offer-12",
		Partner:        "carol",
		ItemsToReceive: caseItems(1),
		Message:        payoutAddress,
	}}

	require.NoError(t, svc.HandleOffer(context.Background(), offer))

	// Neither declined nor accepted: the offer is left untouched
	offer.AssertNotCalled(t, "Decline", mock.Anything)
	offer.AssertNotCalled(t, "Accept", mock.Anything)
	deps.messenger.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}
