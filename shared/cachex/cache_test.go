package cachex

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type summary struct {
	CompletionRate int            `json:"completion_rate"`
	Equipment      map[string]int `json:"equipment"`
}

func TestJSONRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	var got summary
	ok, err := c.GetJSON(ctx, "compliance:summary", &got)
	if err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	want := summary{CompletionRate: 80, Equipment: map[string]int{"operational": 3}}
	if err := c.SetJSON(ctx, "compliance:summary", want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	ok, err = c.GetJSON(ctx, "compliance:summary", &got)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.CompletionRate != 80 || got.Equipment["operational"] != 3 {
		t.Fatalf("unexpected value %+v", got)
	}

	mr.FastForward(2 * time.Minute)
	if ok, _ := c.GetJSON(ctx, "compliance:summary", &got); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()
	if err := c.SetJSON(ctx, "k", 1, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("k") {
		t.Fatalf("expected key to be gone")
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected error from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
}

func TestUndecodableEntryIsEvicted(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()
	if err := mr.Set("compliance:summary", "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var got summary
	ok, err := c.GetJSON(ctx, "compliance:summary", &got)
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if mr.Exists("compliance:summary") {
		t.Fatalf("expected corrupt entry to be removed")
	}
}

func TestTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()
	if err := c.SetJSON(ctx, "k", 1, 30*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if d, err := c.TTL(ctx, "k"); err != nil || d <= 0 || d > 30*time.Second {
		t.Fatalf("unexpected ttl %s err=%v", d, err)
	}
	if d, err := c.TTL(ctx, "missing"); err != nil || d != 0 {
		t.Fatalf("missing key ttl %s err=%v", d, err)
	}
}
