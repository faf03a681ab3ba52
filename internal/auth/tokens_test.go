package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clipshare/backend/internal/db"
)

func testUser() *db.User {
	return &db.User{
		ID:       uuid.New(),
		Username: "alice",
		Email:    "alice@example.com",
		FullName: "Alice Example",
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	user := testUser()

	tokenString, err := m.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claims, err := m.ValidateAccessToken(tokenString)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != user.ID.String() {
		t.Errorf("user id mismatch: %s", claims.UserID)
	}
	if claims.Email != user.Email || claims.Username != user.Username || claims.FullName != user.FullName {
		t.Error("identity claims must round-trip")
	}
	if claims.Issuer != tokenIssuer {
		t.Errorf("unexpected issuer %q", claims.Issuer)
	}
}

func TestAccessTokenExpired(t *testing.T) {
	m := NewTokenManager("access-secret", "refresh-secret", -time.Minute, 24*time.Hour)

	tokenString, err := m.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	_, err = m.ValidateAccessToken(tokenString)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAccessTokenWrongSecret(t *testing.T) {
	m := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	other := NewTokenManager("different", "refresh-secret", 15*time.Minute, 24*time.Hour)

	tokenString, err := m.IssueAccessToken(testUser())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := other.ValidateAccessToken(tokenString); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSecretsAreNotInterchangeable(t *testing.T) {
	m := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	user := testUser()

	refresh, err := m.IssueRefreshToken(user)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// A refresh token must not validate as an access token.
	if _, err := m.ValidateAccessToken(refresh); err == nil {
		t.Error("refresh token validated against the access secret")
	}

	access, err := m.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := m.VerifyRefreshToken(access); !errors.Is(err, ErrInvalidToken) {
		t.Error("access token verified against the refresh secret")
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	user := testUser()

	tokenString, err := m.IssueRefreshToken(user)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	id, err := m.VerifyRefreshToken(tokenString)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if id != user.ID {
		t.Errorf("user id mismatch: %s", id)
	}
}

func TestRefreshTokensAreUnique(t *testing.T) {
	m := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	user := testUser()

	// Same user, same second: the jti must still make each token distinct,
	// otherwise rotation would re-store the identical value.
	a, err := m.IssueRefreshToken(user)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	b, err := m.IssueRefreshToken(user)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if a == b {
		t.Error("consecutive refresh tokens must differ")
	}
}

func TestVerifyRefreshTokenGarbage(t *testing.T) {
	m := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)

	for _, tokenString := range []string{"", "garbage", "a.b.c"} {
		if _, err := m.VerifyRefreshToken(tokenString); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", tokenString, err)
		}
	}
}
