package audit

import (
	"context"
	"testing"
	"time"
)

func TestActorFallsBackToSystem(t *testing.T) {
	if got := Actor(context.Background()); got != SystemActor {
		t.Fatalf("Actor=%q, want %q", got, SystemActor)
	}

	ctx := WithPrincipal(context.Background(), Principal{ID: "ana@example.com", Role: "planner"})
	if got := Actor(ctx); got != "ana@example.com" {
		t.Fatalf("Actor=%q, want %q", got, "ana@example.com")
	}
}

func TestStampCreatedStartsAtVersionZero(t *testing.T) {
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.FixedZone("x", 3600))
	a := NewStamp(WithPrincipal(context.Background(), Principal{ID: "u1"}), at).Created()

	if a.Version != 0 {
		t.Fatalf("Version=%d, want 0", a.Version)
	}
	if a.CreatedBy != "u1" || a.UpdatedBy != "u1" {
		t.Fatalf("unexpected actors: %+v", a)
	}
	if a.CreatedAt.Location() != time.UTC || !a.CreatedAt.Equal(at) {
		t.Fatalf("CreatedAt=%v, want %v in UTC", a.CreatedAt, at)
	}
}
