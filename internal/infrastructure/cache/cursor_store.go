// Package cache holds the redis-backed poll cursor: one string key per
// network with the txid of the last transfer the poller attempted.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/keyvault-service/keyvault_service/internal/infrastructure/config"
	"github.com/keyvault-service/keyvault_service/pkg/retry"
)

// ErrCursorNotSet is returned when no cursor has ever been persisted for the
// network. The poller treats this as a startup precondition failure rather
// than assuming "everything is new".
var ErrCursorNotSet = errors.New("poll cursor not set")

// CursorStore persists the transaction poller's high-water mark.
type CursorStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, txid string) error
	Ping(ctx context.Context) error
	Close() error
}

type cursorStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
	policy retry.Policy
}

// NewCursorStore connects to redis and returns the cursor store for the
// given network. The key is namespaced per network so a testnet bot never
// reads a mainnet cursor.
func NewCursorStore(cfg config.RedisConfig, network string, logger *zap.Logger) (CursorStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.String("network", network))

	return &cursorStore{
		client: rdb,
		key:    fmt.Sprintf("cursor:%s:last_txid", network),
		logger: logger,
		policy: retry.DefaultPolicy(),
	}, nil
}

// Get returns the persisted cursor txid, or ErrCursorNotSet.
func (s *cursorStore) Get(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCursorNotSet
	}
	if err != nil {
		return "", fmt.Errorf("get cursor %q: %w", s.key, err)
	}
	return val, nil
}

// Set advances the cursor. The write is retried with backoff: losing a cursor
// update risks re-crediting a transfer on restart, so a transient redis blip
// should not drop it.
func (s *cursorStore) Set(ctx context.Context, txid string) error {
	err := retry.Do(ctx, s.policy, s.logger, func() error {
		return s.client.Set(ctx, s.key, txid, 0).Err()
	})
	if err != nil {
		return fmt.Errorf("persist cursor %q: %w", s.key, err)
	}
	return nil
}

// Ping checks redis connectivity for the health endpoint.
func (s *cursorStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the redis connection.
func (s *cursorStore) Close() error {
	return s.client.Close()
}
