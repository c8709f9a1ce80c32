package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/keyvault-service/keyvault_service/internal/domain/entities"
	domerrors "github.com/keyvault-service/keyvault_service/internal/domain/errors"
)

// uniqueViolation is the postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

// CustomerRepository handles customer and balance persistence. All balance
// mutations go through Credit/Debit, which are single atomic statements so
// interleaved settlements for the same customer can never lose an update.
type CustomerRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewCustomerRepository creates a new customer repository.
func NewCustomerRepository(db *sqlx.DB, logger *zap.Logger) *CustomerRepository {
	return &CustomerRepository{
		db:     db,
		logger: logger,
	}
}

// GetByIdentity retrieves a customer by their trading-network identity.
func (r *CustomerRepository) GetByIdentity(ctx context.Context, identity string) (*entities.Customer, error) {
	query := `
		SELECT identity, deposit_address, balance, created_at
		FROM customers
		WHERE identity = $1
	`

	var customer entities.Customer
	err := r.db.GetContext(ctx, &customer, query, identity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", identity, domerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return &customer, nil
}

// GetByAddress retrieves a customer by their deposit address. Used by the
// transaction poller to attribute incoming transfers.
func (r *CustomerRepository) GetByAddress(ctx context.Context, address string) (*entities.Customer, error) {
	query := `
		SELECT identity, deposit_address, balance, created_at
		FROM customers
		WHERE deposit_address = $1
	`

	var customer entities.Customer
	err := r.db.GetContext(ctx, &customer, query, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer with address %s: %w", address, domerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer by address: %w", err)
	}

	return &customer, nil
}

// Create inserts a new zero-balance customer row. Both identity and
// deposit_address carry UNIQUE constraints; a conflict on either returns
// ErrAlreadyExists so the caller can re-read the winning row.
func (r *CustomerRepository) Create(ctx context.Context, customer *entities.Customer) error {
	query := `
		INSERT INTO customers (identity, deposit_address, balance, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query,
		customer.Identity,
		customer.DepositAddress,
		customer.Balance,
		customer.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("customer %s: %w", customer.Identity, domerrors.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}

	r.logger.Info("customer created",
		zap.String("identity", customer.Identity),
		zap.String("deposit_address", customer.DepositAddress),
	)

	return nil
}

// Credit atomically adds amount to the customer's balance.
func (r *CustomerRepository) Credit(ctx context.Context, identity string, amount decimal.Decimal) error {
	query := `
		UPDATE customers
		SET balance = balance + $2
		WHERE identity = $1
	`

	result, err := r.db.ExecContext(ctx, query, identity, amount)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("customer %s: %w", identity, domerrors.ErrNotFound)
	}

	r.logger.Info("balance credited",
		zap.String("identity", identity),
		zap.String("amount", amount.String()),
	)

	return nil
}

// Debit atomically subtracts amount from the customer's balance, failing with
// ErrInsufficientBalance when funds do not cover it. The conditional update is
// the per-customer serialization point: two interleaved withdrawals cannot
// both succeed against the same funds.
func (r *CustomerRepository) Debit(ctx context.Context, identity string, amount decimal.Decimal) error {
	query := `
		UPDATE customers
		SET balance = balance - $2
		WHERE identity = $1 AND balance >= $2
	`

	result, err := r.db.ExecContext(ctx, query, identity, amount)
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, getErr := r.GetByIdentity(ctx, identity); getErr != nil {
			return getErr
		}
		return fmt.Errorf("debit %s from %s: %w", amount, identity, domerrors.ErrInsufficientBalance)
	}

	r.logger.Info("balance debited",
		zap.String("identity", identity),
		zap.String("amount", amount.String()),
	)

	return nil
}

// GetBalance returns the customer's current balance.
func (r *CustomerRepository) GetBalance(ctx context.Context, identity string) (decimal.Decimal, error) {
	customer, err := r.GetByIdentity(ctx, identity)
	if err != nil {
		return decimal.Zero, err
	}
	return customer.Balance, nil
}

// Count returns the number of known customers. Logged at startup.
func (r *CustomerRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM customers`); err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return count, nil
}

// NewCustomer builds a zero-balance customer row for first contact.
func NewCustomer(identity, depositAddress string) *entities.Customer {
	return &entities.Customer{
		Identity:       identity,
		DepositAddress: depositAddress,
		Balance:        decimal.Zero,
		CreatedAt:      time.Now(),
	}
}
