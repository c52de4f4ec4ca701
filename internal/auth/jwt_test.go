package auth

import (
	"testing"
	"time"

	"github.com/erazemk/inventar/internal/model"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, 1, "admin", model.RoleAdmin, KindAccess, AccessExpiry)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.UserID != 1 {
		t.Errorf("expected user_id 1, got %d", claims.UserID)
	}
	if claims.Username != "admin" {
		t.Errorf("expected username 'admin', got %q", claims.Username)
	}
	if claims.Role != model.RoleAdmin {
		t.Errorf("expected role 'admin', got %q", claims.Role)
	}
	if claims.TokenType != KindAccess {
		t.Errorf("expected token_type 'access', got %q", claims.TokenType)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", 1, "admin", model.RoleAdmin, KindAccess, AccessExpiry)

	_, err := ValidateToken("secret2", token)
	if err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := ValidateToken("secret", "not-a-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestInspectTokenWithoutKey(t *testing.T) {
	token, _ := GenerateToken("server-only", 7, "alice", model.RoleUser, KindRefresh, RefreshExpiry)

	claims, err := InspectToken(token)
	if err != nil {
		t.Fatalf("InspectToken: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("expected username 'alice', got %q", claims.Username)
	}

	// Should be within a few seconds.
	diff := time.Now().Add(RefreshExpiry).Sub(claims.ExpiresAt.Time)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}

func TestExpiresWithin(t *testing.T) {
	now := time.Now()
	short, _ := GenerateToken("s", 1, "a", "", KindAccess, 10*time.Second)
	long, _ := GenerateToken("s", 1, "a", "", KindAccess, time.Hour)

	if !expiresWithin(short, now, 30*time.Second) {
		t.Error("expected short-lived token to be within skew")
	}
	if expiresWithin(long, now, 30*time.Second) {
		t.Error("expected long-lived token to be outside skew")
	}
	if expiresWithin("opaque-token", now, time.Hour) {
		t.Error("expected opaque token to never expire by time")
	}
}
