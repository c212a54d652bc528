package cache

import (
	"context"
	"testing"

	"github.com/food-passport/api/internal/platform/config"
)

func TestNewWithoutURLDisablesCache(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if client != nil {
		t.Fatal("expected nil client when redis is not configured")
	}
}

func TestNewRejectsMalformedURL(t *testing.T) {
	if _, err := New(context.Background(), config.RedisConfig{URL: "mysql://nope"}); err == nil {
		t.Fatal("expected parse error for non-redis scheme")
	}
}

func TestNilClientIsANoop(t *testing.T) {
	var client *Client
	ctx := context.Background()

	var dst []string
	hit, err := client.Load(ctx, "passport:feed:20", &dst)
	if err != nil || hit {
		t.Fatalf("expected miss without error, got hit=%v err=%v", hit, err)
	}
	if err := client.Store(ctx, "passport:feed:20", []string{"x"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := client.Invalidate(ctx, "passport:"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if err := client.Ping(ctx); err == nil {
		t.Fatal("expected ping error for nil client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
