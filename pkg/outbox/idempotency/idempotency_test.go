package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	keys    map[string]time.Duration
	failSet error
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return "1", nil
	}
	return "", errors.New("nil")
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return false, m.failSet
	}
	if m.keys == nil {
		m.keys = map[string]time.Duration{}
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "gd:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func TestGuardMarksFirstSightingOnly(t *testing.T) {
	store := &memoryStore{}
	guard, err := NewGuard(store, "notification-worker", 24*time.Hour)
	require.NoError(t, err)

	seen, err := guard.CheckAndMark(context.Background(), "evt-1")
	require.NoError(t, err)
	require.False(t, seen)
	require.Equal(t, 24*time.Hour, store.keys["gd:idempotency:notification-worker:evt-1"])

	seen, err = guard.CheckAndMark(context.Background(), "evt-1")
	require.NoError(t, err)
	require.True(t, seen)
}

func TestGuardForgetAllowsRetry(t *testing.T) {
	store := &memoryStore{}
	guard, err := NewGuard(store, "cryptopay-webhook", time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = guard.CheckAndMark(ctx, "17")
	require.NoError(t, err)
	require.NoError(t, guard.Forget(ctx, "17"))

	seen, err := guard.CheckAndMark(ctx, "17")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestGuardScopesKeysPerConsumer(t *testing.T) {
	store := &memoryStore{}
	webhook, err := NewGuard(store, "cryptopay-webhook", time.Hour)
	require.NoError(t, err)
	worker, err := NewGuard(store, "notification-worker", time.Hour)
	require.NoError(t, err)

	_, err = webhook.CheckAndMark(context.Background(), "42")
	require.NoError(t, err)
	seen, err := worker.CheckAndMark(context.Background(), "42")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestGuardConcurrentMarksHaveOneWinner(t *testing.T) {
	store := &memoryStore{}
	guard, err := NewGuard(store, "notification-worker", time.Hour)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen, err := guard.CheckAndMark(context.Background(), "evt-9")
			if err == nil && !seen {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, fresh)
}

func TestGuardRejectsBadInput(t *testing.T) {
	_, err := NewGuard(nil, "c", time.Hour)
	require.Error(t, err)
	_, err = NewGuard(&memoryStore{}, " ", time.Hour)
	require.Error(t, err)
	_, err = NewGuard(&memoryStore{}, "c", -time.Second)
	require.Error(t, err)

	guard, err := NewGuard(&memoryStore{failSet: errors.New("boom")}, "c", time.Hour)
	require.NoError(t, err)
	_, err = guard.CheckAndMark(context.Background(), "")
	require.Error(t, err)
	_, err = guard.CheckAndMark(context.Background(), "x")
	require.Error(t, err)
}
