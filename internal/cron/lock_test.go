package cron

import (
	"context"
	"sync"
	"testing"
	"time"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]string{}
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value.(string)
	return true, nil
}

func (m *memoryStore) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] != owner {
		return false, nil
	}
	delete(m.keys, key)
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	first, err := NewRedisLock(store, "gd:lock:invoice-monitor", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "gd:lock:invoice-monitor", time.Minute)

	if ok, _ := first.Acquire(ctx); !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("expected second acquire to fail while held")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("non-owner release must not free the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected acquire after release to succeed")
	}
}

func TestLocalLockTryLock(t *testing.T) {
	lock := &LocalLock{}
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	if ok, _ := lock.Acquire(ctx); ok {
		t.Fatal("expected second acquire to fail")
	}
	_ = lock.Release(ctx)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire after release")
	}
}
