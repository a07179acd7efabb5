package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"slotswapper.dev/internal/ids"
)

// DefaultRefreshTTL is the lifetime of the longer-lived refresh credential.
const DefaultRefreshTTL = 24 * time.Hour * 7

// RefreshToken is the persisted half of a refresh credential. Only a sha256
// hash of the secret is stored; the wire form is "<id>.<secret>".
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
}

// NewRefreshToken mints a refresh credential for the user. The returned string
// is handed to the client; the record is what gets persisted.
func NewRefreshToken(userID string, now time.Time, ttl time.Duration) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	tokenSecret := base64.RawURLEncoding.EncodeToString(secretBytes)
	tokenID := ids.New()
	sum := sha256.Sum256([]byte(tokenSecret))
	rec := &RefreshToken{
		ID:        tokenID,
		UserID:    userID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	return tokenID + "." + tokenSecret, rec, nil
}

// SplitRefreshToken separates the wire form into record id and secret.
func SplitRefreshToken(raw string) (id, tokenSecret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

// RefreshTokenMatches compares the stored hash against the presented secret in
// constant time.
func RefreshTokenMatches(rec *RefreshToken, tokenSecret string) bool {
	sum := sha256.Sum256([]byte(tokenSecret))
	actual := hex.EncodeToString(sum[:])
	if len(rec.TokenHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(actual)) == 1
}

// RotateRefreshToken validates a presented refresh credential and, when valid,
// revokes it and mints a replacement. A hash mismatch on a live record also
// revokes it, so a stolen id cannot be retried offline.
func RotateRefreshToken(ctx context.Context, store RefreshTokenStore, raw string, now time.Time, ttl time.Duration) (string, *RefreshToken, error) {
	tokenID, tokenSecret, err := SplitRefreshToken(raw)
	if err != nil {
		return "", nil, ErrInvalidToken
	}
	rec, err := store.Find(ctx, tokenID)
	if err != nil {
		return "", nil, ErrInvalidToken
	}
	if rec.Revoked || now.After(rec.ExpiresAt) {
		return "", nil, ErrInvalidToken
	}
	if !RefreshTokenMatches(rec, tokenSecret) {
		_ = store.MarkRevoked(ctx, rec.ID)
		return "", nil, ErrInvalidToken
	}
	if err := store.MarkRevoked(ctx, rec.ID); err != nil {
		return "", nil, err
	}
	next, nextRec, err := NewRefreshToken(rec.UserID, now, ttl)
	if err != nil {
		return "", nil, err
	}
	if err := store.Create(ctx, nextRec); err != nil {
		return "", nil, err
	}
	return next, nextRec, nil
}
