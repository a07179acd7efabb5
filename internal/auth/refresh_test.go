package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeRefreshStore struct {
	recs map[string]*RefreshToken
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{recs: make(map[string]*RefreshToken)}
}

func (s *fakeRefreshStore) Create(_ context.Context, tok *RefreshToken) error {
	cp := *tok
	s.recs[tok.ID] = &cp
	return nil
}

func (s *fakeRefreshStore) Find(_ context.Context, id string) (*RefreshToken, error) {
	rec, ok := s.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeRefreshStore) MarkRevoked(_ context.Context, id string) error {
	rec, ok := s.recs[id]
	if !ok {
		return ErrNotFound
	}
	rec.Revoked = true
	return nil
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	raw, rec, err := NewRefreshToken("user-1", now, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	id, secret, err := SplitRefreshToken(raw)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if id != rec.ID {
		t.Fatalf("id mismatch: %s vs %s", id, rec.ID)
	}
	if !RefreshTokenMatches(rec, secret) {
		t.Fatal("expected secret to match its record")
	}
	if RefreshTokenMatches(rec, "wrong") {
		t.Fatal("expected mismatch for wrong secret")
	}
}

func TestRotateRefreshToken(t *testing.T) {
	ctx := context.Background()
	store := newFakeRefreshStore()
	now := time.Now().UTC()

	raw, rec, err := NewRefreshToken("user-1", now, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("store: %v", err)
	}

	next, nextRec, err := RotateRefreshToken(ctx, store, raw, now, time.Hour)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if next == raw {
		t.Fatal("expected a fresh token")
	}
	if nextRec.UserID != "user-1" {
		t.Fatalf("unexpected user %s", nextRec.UserID)
	}
	if !store.recs[rec.ID].Revoked {
		t.Fatal("expected old record revoked")
	}

	// The old token is single-use.
	if _, _, err := RotateRefreshToken(ctx, store, raw, now, time.Hour); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token on reuse, got %v", err)
	}
}

func TestRotateRejectsExpired(t *testing.T) {
	ctx := context.Background()
	store := newFakeRefreshStore()
	now := time.Now().UTC()

	raw, rec, err := NewRefreshToken("user-1", now.Add(-2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("store: %v", err)
	}

	if _, _, err := RotateRefreshToken(ctx, store, raw, now, time.Hour); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for expired credential, got %v", err)
	}
}

func TestRotateRevokesOnSecretMismatch(t *testing.T) {
	ctx := context.Background()
	store := newFakeRefreshStore()
	now := time.Now().UTC()

	_, rec, err := NewRefreshToken("user-1", now, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("store: %v", err)
	}

	forged := rec.ID + ".bogus-secret"
	if _, _, err := RotateRefreshToken(ctx, store, forged, now, time.Hour); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if !store.recs[rec.ID].Revoked {
		t.Fatal("expected record revoked after secret mismatch")
	}
}
