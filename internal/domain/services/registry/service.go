// Package registry maps trading-network identities to deposit addresses,
// minting one address per customer on first contact.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/keyvault-service/keyvault_service/internal/domain/entities"
	domerrors "github.com/keyvault-service/keyvault_service/internal/domain/errors"
	"github.com/keyvault-service/keyvault_service/internal/infrastructure/repositories"
	"github.com/keyvault-service/keyvault_service/pkg/logger"
)

// AddressMinter derives deposit addresses from the wallet node. An empty
// payment id asks the wallet to choose a random one.
type AddressMinter interface {
	MakeIntegratedAddress(ctx context.Context, paymentID string) (string, error)
}

// CustomerStore is the persistence surface the registry needs.
type CustomerStore interface {
	GetByIdentity(ctx context.Context, identity string) (*entities.Customer, error)
	GetByAddress(ctx context.Context, address string) (*entities.Customer, error)
	Create(ctx context.Context, customer *entities.Customer) error
}

// Service implements the address registry.
type Service struct {
	minter    AddressMinter
	customers CustomerStore
	logger    *logger.Logger
}

// NewService creates a new address registry.
func NewService(minter AddressMinter, customers CustomerStore, logger *logger.Logger) *Service {
	return &Service{
		minter:    minter,
		customers: customers,
		logger:    logger,
	}
}

// GetOrCreateAddress returns the customer's deposit address, minting one and
// creating the zero-balance row on first contact. The customers table carries
// a uniqueness constraint on identity, so two concurrent first contacts race
// to a single insert; the loser re-reads the winning row and its address, and
// the losing freshly minted address is discarded unused.
func (s *Service) GetOrCreateAddress(ctx context.Context, identity string) (string, error) {
	customer, err := s.customers.GetByIdentity(ctx, identity)
	if err == nil {
		return customer.DepositAddress, nil
	}
	if !domerrors.IsNotFound(err) {
		return "", fmt.Errorf("look up customer: %w", err)
	}

	address, err := s.minter.MakeIntegratedAddress(ctx, "")
	if err != nil {
		return "", fmt.Errorf("mint deposit address: %w", err)
	}

	if err := s.customers.Create(ctx, repositories.NewCustomer(identity, address)); err != nil {
		if errors.Is(err, domerrors.ErrAlreadyExists) {
			s.logger.Info("lost first-contact race, re-reading customer", "identity", identity)
			winner, getErr := s.customers.GetByIdentity(ctx, identity)
			if getErr != nil {
				return "", fmt.Errorf("re-read customer after conflict: %w", getErr)
			}
			return winner.DepositAddress, nil
		}
		return "", fmt.Errorf("create customer: %w", err)
	}

	s.logger.Info("deposit address minted", "identity", identity, "address", address)
	return address, nil
}

// DeriveAddress reconstructs the deposit address a given payment id resolves
// to. The wallet derivation is deterministic, so the poller can turn a
// transfer's payment id back into the address it was sent to.
func (s *Service) DeriveAddress(ctx context.Context, paymentID string) (string, error) {
	address, err := s.minter.MakeIntegratedAddress(ctx, paymentID)
	if err != nil {
		return "", fmt.Errorf("derive address for payment id %s: %w", paymentID, err)
	}
	return address, nil
}

// LookupByAddress returns the customer owning the given deposit address.
func (s *Service) LookupByAddress(ctx context.Context, address string) (*entities.Customer, error) {
	return s.customers.GetByAddress(ctx, address)
}
