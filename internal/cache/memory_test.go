package cache

import (
	"context"
	"testing"
)

func TestMemoryCacheScopeIsolation(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	a := Scope{RoomID: "hall", UserID: "mira", Action: "RITUAL"}
	b := Scope{RoomID: "hall", UserID: "tomas", Action: "RITUAL"}

	if err := c.Set(ctx, a, "step", "2"); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := c.Get(ctx, a, "step")
	if err != nil || !ok || got != "2" {
		t.Fatalf("get own scope = %q, %v, %v", got, ok, err)
	}
	if _, ok, _ := c.Get(ctx, b, "step"); ok {
		t.Error("other user's scope must start empty")
	}
}

func TestMemoryCacheClear(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	s := Scope{RoomID: "hall", UserID: "mira", Action: "RITUAL"}

	c.Set(ctx, s, "step", "1")
	c.Set(ctx, s, "tool", "candle")
	if err := c.Clear(ctx, s); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := c.Get(ctx, s, "step"); ok {
		t.Error("step survived clear")
	}
	if _, ok, _ := c.Get(ctx, s, "tool"); ok {
		t.Error("tool survived clear")
	}

	// Clearing an absent scope is a no-op.
	if err := c.Clear(ctx, Scope{RoomID: "nowhere"}); err != nil {
		t.Fatalf("clear empty scope: %v", err)
	}
}

func TestScopeKey(t *testing.T) {
	s := Scope{RoomID: "hall", UserID: "mira", Action: "RITUAL"}
	if got := s.Key(); got != "action:hall:mira:RITUAL" {
		t.Errorf("Key() = %q", got)
	}
}
