package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/giftdrop-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "buy:42", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("expected allowed on first request")
	}
	if count != 1 {
		t.Fatalf("expected counter 1 got %d", count)
	}
	if got := mock.windows[client.RateLimitKey("buy:42")]; got != 1000 {
		t.Fatalf("expected a 1000ms window on first hit, got %d", got)
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "buy:42", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 2 {
		t.Fatalf("unexpected second call state allowed=%v count=%d", allowed, count)
	}
	if len(mock.windows) != 1 {
		t.Fatalf("window should only start once, got %v", mock.windows)
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "buy:42", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}

	if _, _, err := client.FixedWindowAllow(ctx, "buy:42", 2, 0); err == nil {
		t.Fatalf("expected zero window to be rejected")
	}
}

func TestReleaseIfOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("invoice-monitor")

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock acquisition, ok=%v err=%v", ok, err)
	}

	released, err := client.ReleaseIfOwner(ctx, key, "owner-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released {
		t.Fatalf("foreign owner must not release the lock")
	}

	released, err = client.ReleaseIfOwner(ctx, key, "owner-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !released {
		t.Fatalf("expected owner to release the lock")
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after release, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("cryptopay", "update-9"); got != "gd:idempotency:cryptopay:update-9" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("buy"); got != "gd:rate_limit:buy" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.LockKey("invoice-monitor"); got != "gd:lock:invoice-monitor" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.IdempotencyKey("", "id"); got != "gd:idempotency:id" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 3 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options db=%d pool=%d", opts.DB, opts.PoolSize)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected error from empty client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op, got %v", err)
	}
}

type mockCmdable struct {
	data    map[string]string
	incr    map[string]int64
	windows map[string]int64
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:    make(map[string]string),
		incr:    make(map[string]int64),
		windows: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval emulates the two scripts the client ships.
func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script arguments"))
	}
	key := keys[0]
	switch script {
	case releaseScript:
		if m.data[key] == fmt.Sprint(args[0]) {
			delete(m.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case windowScript:
		m.incr[key]++
		if m.incr[key] == 1 {
			m.windows[key] = args[0].(int64)
		}
		return redis.NewCmdResult(m.incr[key], nil)
	default:
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
}
