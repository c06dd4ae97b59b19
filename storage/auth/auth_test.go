package auth

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestMemoryKeyStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryKeyStore()
	s.Seed("  ", "blank", "seed")
	s.Seed("operator-secret", "ops", "seed")

	if !s.Validate(ctx, "operator-secret") {
		t.Fatal("seeded key rejected")
	}
	if s.Validate(ctx, "") || s.Validate(ctx, "nope") {
		t.Fatal("unknown key accepted")
	}

	rec, err := s.Issue(ctx, "ci", "issued")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(rec.Key) != 64 {
		t.Fatalf("key length %d", len(rec.Key))
	}
	stored, ok := s.Get(ctx, rec.Key)
	if !ok || stored.Label != "ci" || stored.Key != "" {
		t.Fatalf("stored record %+v", stored)
	}
	if err := s.Revoke(ctx, rec.Key); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := s.Revoke(ctx, rec.Key); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPGKeyStore(t *testing.T) {
	dsn := os.Getenv("BOUNTY_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("BOUNTY_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPGKeyStore(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()

	rec, err := s.Issue(ctx, "pg", "issued")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !s.Validate(ctx, rec.Key) {
		t.Fatal("issued key rejected")
	}
	if err := s.Revoke(ctx, rec.Key); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if s.Validate(ctx, rec.Key) {
		t.Fatal("revoked key accepted")
	}

	for i := 0; i < 2; i++ {
		if err := s.Seed(ctx, "pg-operator-secret", "ops", "config"); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	if !s.Validate(ctx, "pg-operator-secret") {
		t.Fatal("seeded key rejected")
	}

	closed, err := NewPGKeyStore(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	closed.Close()
	if err := closed.Seed(ctx, "unreachable", "ops", "config"); err == nil {
		t.Fatal("seed on a closed pool reported success")
	}
	if err := closed.Seed(ctx, "  ", "ops", "config"); err != nil {
		t.Fatalf("blank seed should be a no-op: %v", err)
	}
}

func TestReplayGuard(t *testing.T) {
	g := NewReplayGuard(time.Minute)
	base := time.Unix(1000, 0)
	g.now = func() time.Time { return base }

	d := [32]byte{1}
	if !g.Check(d) {
		t.Fatal("first use rejected")
	}
	if g.Check(d) {
		t.Fatal("replay accepted")
	}
	g.now = func() time.Time { return base.Add(2 * time.Minute) }
	if !g.Check(d) {
		t.Fatal("expired digest still rejected")
	}
}
