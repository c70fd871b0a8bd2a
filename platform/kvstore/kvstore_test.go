package kvstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client)
}

func TestSetGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	type draft struct {
		Notes   string  `json:"notes"`
		Pending float64 `json:"pending"`
	}

	in := draft{Notes: "falta tornilleria", Pending: 4.5}
	if err := store.SetJSON(ctx, "reception_OT-2025-013", in); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var out draft
	found, err := store.GetJSON(ctx, "reception_OT-2025-013", &out)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !found {
		t.Fatal("expected value to be present")
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestGetMissingKey(t *testing.T) {
	store := newTestStore(t)

	var out map[string]interface{}
	found, err := store.GetJSON(context.Background(), "override_nope", &out)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if found {
		t.Error("expected missing key to report not found")
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetJSON(ctx, "safety_X", map[string]bool{"completed": true}); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	if err := store.Delete(ctx, "safety_X"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var out map[string]bool
	found, err := store.GetJSON(ctx, "safety_X", &out)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if found {
		t.Error("expected deleted key to be gone")
	}
}
