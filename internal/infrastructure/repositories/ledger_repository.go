package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/keyvault-service/keyvault_service/internal/domain/entities"
)

// LedgerRepository writes the append-only settlement audit rows.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new ledger repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// RecordDeposit appends a deposit audit row.
func (r *LedgerRepository) RecordDeposit(ctx context.Context, record *entities.DepositRecord) error {
	query := `
		INSERT INTO deposits (id, identity, item_count, address_used, amount_sent, offer_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Identity,
		record.ItemCount,
		record.AddressUsed,
		record.AmountSent,
		record.OfferID,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record deposit: %w", err)
	}

	return nil
}

// RecordWithdrawal appends a withdrawal audit row.
func (r *LedgerRepository) RecordWithdrawal(ctx context.Context, record *entities.WithdrawalRecord) error {
	query := `
		INSERT INTO withdrawals (id, identity, item_count, amount_deducted, offer_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Identity,
		record.ItemCount,
		record.AmountDeducted,
		record.OfferID,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record withdrawal: %w", err)
	}

	return nil
}
