// Package oracle caches the fiat/coin exchange rate for quote computation.
package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	domerrors "github.com/keyvault-service/keyvault_service/internal/domain/errors"
	"github.com/keyvault-service/keyvault_service/pkg/logger"
)

// PriceSource fetches the current USD price from the external feed.
type PriceSource interface {
	USDPrice(ctx context.Context) (decimal.Decimal, error)
}

// Service holds the last known exchange rate. A zero rate means no fetch has
// succeeded yet and quote-dependent work must refuse to proceed.
type Service struct {
	source PriceSource
	logger *logger.Logger

	mu   sync.RWMutex
	rate decimal.Decimal
}

// NewService creates a new price oracle.
func NewService(source PriceSource, logger *logger.Logger) *Service {
	return &Service{
		source: source,
		logger: logger,
	}
}

// Refresh fetches the current rate. On failure the previous rate is kept and
// the error is returned for logging; the next scheduled tick tries again.
func (s *Service) Refresh(ctx context.Context) error {
	price, err := s.source.USDPrice(ctx)
	if err != nil {
		s.logger.Warn("price refresh failed, keeping previous rate",
			"previous_rate", s.snapshot().String(),
			"error", err,
		)
		return fmt.Errorf("refresh price: %w", err)
	}

	s.mu.Lock()
	previous := s.rate
	s.rate = price
	s.mu.Unlock()

	if previous.IsZero() {
		s.logger.Info("exchange rate initialized", "rate_usd", price.String())
	} else if !previous.Equal(price) {
		s.logger.Info("exchange rate updated",
			"previous_usd", previous.String(),
			"rate_usd", price.String(),
		)
	}

	return nil
}

// CurrentPrice returns the last known rate, or ErrPriceUnavailable while no
// fetch has succeeded.
func (s *Service) CurrentPrice() (decimal.Decimal, error) {
	rate := s.snapshot()
	if rate.IsZero() {
		return decimal.Zero, domerrors.ErrPriceUnavailable
	}
	return rate, nil
}

// Ready reports whether at least one fetch has succeeded.
func (s *Service) Ready() bool {
	return !s.snapshot().IsZero()
}

func (s *Service) snapshot() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate
}
