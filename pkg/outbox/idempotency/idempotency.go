// Package idempotency records which deliveries a consumer has already handled.
// The notification worker keys it by outbox event id and the payment webhook
// by gateway update id.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/giftdrop-backend/pkg/redis"
)

// Guard is scoped to one consumer. Keys look like
// `gd:idempotency:<consumer>:<id>` and expire after the configured TTL.
type Guard struct {
	store    redis.IdempotencyStore
	consumer string
	ttl      time.Duration
}

func NewGuard(store redis.IdempotencyStore, consumer string, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, errors.New("consumer name is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, consumer: consumer, ttl: ttl}, nil
}

// Consumer names the scope the guard writes under.
func (g *Guard) Consumer() string {
	return g.consumer
}

// CheckAndMark reports whether id was seen before. A first sighting is
// recorded atomically, so exactly one concurrent caller gets false.
func (g *Guard) CheckAndMark(ctx context.Context, id string) (bool, error) {
	key, err := g.key(id)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return !set, nil
}

// Forget drops the mark so a failed delivery can be attempted again.
func (g *Guard) Forget(ctx context.Context, id string) error {
	key, err := g.key(id)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("delivery id is required")
	}
	return g.store.IdempotencyKey(g.consumer, id), nil
}
