package lockx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerExcludesSecondWriter(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	l := NewLocker(client, "test:", time.Second)

	unlock, ok, err := l.TryLock(ctx, "alert:1")
	if err != nil || !ok {
		t.Fatalf("expected lock, got ok=%v err=%v", ok, err)
	}
	if !mr.Exists("test:alert:1") {
		t.Fatalf("expected prefixed key to exist")
	}
	if _, ok, err := l.TryLock(ctx, "alert:1"); err != nil || ok {
		t.Fatalf("expected second lock to be refused, got ok=%v err=%v", ok, err)
	}
	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, ok, _ := l.TryLock(ctx, "alert:1"); !ok {
		t.Fatalf("expected lock after release")
	}
}

func TestReleaseLeavesForeignToken(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	lock, ok, err := Acquire(ctx, client, "k", time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	mr.FastForward(2 * time.Second)
	if _, ok, _ := Acquire(ctx, client, "k", time.Second); !ok {
		t.Fatalf("expected expired lock to be re-acquirable")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !mr.Exists("k") {
		t.Fatalf("stale release removed the new holder's lock")
	}
}

func TestAcquireRejectsBadInput(t *testing.T) {
	if _, _, err := Acquire(context.Background(), nil, "k", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	_, client := newRedis(t)
	if _, _, err := Acquire(context.Background(), client, "k", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
