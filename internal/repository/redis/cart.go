package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JoaquinSabater/EcommerceCPF-sub000/internal/cart"
)

const keyPrefix = "cart:"

// CartStores hands out Redis-backed cart stores, one per session, sharing a
// client and TTL. Every save refreshes the TTL.
type CartStores struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCartStores creates a factory of Redis-backed cart stores.
func NewCartStores(client *redis.Client, ttl time.Duration, logger *slog.Logger) *CartStores {
	return &CartStores{client: client, ttl: ttl, logger: logger}
}

// For returns the store of one session. It matches cart.StoreFactory.
func (s *CartStores) For(sessionID string) cart.Store {
	return &CartStore{stores: s, key: keyPrefix + sessionID}
}

// CartStore implements cart.Store for a single session key.
type CartStore struct {
	stores *CartStores
	key    string
}

// Save overwrites the session's snapshot.
func (s *CartStore) Save(ctx context.Context, snap cart.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal cart snapshot: %w", err)
	}
	if err := s.stores.client.Set(ctx, s.key, data, s.stores.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// Load returns the session's snapshot or nil when there is none. A payload
// that no longer decodes is discarded and reported as absent.
func (s *CartStore) Load(ctx context.Context) (*cart.Snapshot, error) {
	data, err := s.stores.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var snap cart.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.stores.logger.Warn("discarding undecodable cart snapshot",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return &snap, nil
}

// Clear deletes the session's snapshot.
func (s *CartStore) Clear(ctx context.Context) error {
	if err := s.stores.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", s.key, err)
	}
	return nil
}
