package keystore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "smc"), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "cachedToken", "tok-123"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := store.Get(ctx, "cachedToken")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "tok-123" {
		t.Fatalf("expected tok-123, got %q", got)
	}
}

func TestRedisStoreMissingKey(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStorePrefixesKeys(t *testing.T) {
	store, mr := newTestStore(t)

	if err := store.Set(context.Background(), "stayLoggedIn", "true"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !mr.Exists("smc:stayLoggedIn") {
		t.Fatal("expected the raw key to carry the smc prefix")
	}
	if mr.Exists("stayLoggedIn") {
		t.Fatal("unprefixed key must not exist")
	}
}

func TestRedisStoreDefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "")
	if err := store.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !mr.Exists("smc:k") {
		t.Fatal("empty prefix must fall back to smc")
	}
}

func TestRedisStoreDeleteMultiple(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b"} {
		if err := store.Set(ctx, k, "v"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := store.Delete(ctx, "a", "b", "absent"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	for _, k := range []string{"a", "b"} {
		if _, err := store.Get(ctx, k); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected %q deleted, got %v", k, err)
		}
	}
}

func TestRedisStoreDeleteNoKeys(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Delete(context.Background()); err != nil {
		t.Fatalf("Delete with no keys must be a no-op, got %v", err)
	}
}

func TestRedisStoreUnavailableBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client, "smc")
	mr.Close()

	if _, err := store.Get(context.Background(), "k"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := store.Set(context.Background(), "k", "v"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
