package handlers

import (
	"testing"

	"github.com/carebook-app/carebook/services/identity-service/internal/storage"
)

func TestPasswordHashing(t *testing.T) {
	password := "pass123"
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword failed: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}
	if err := verifyPassword(hash, password); err != nil {
		t.Fatalf("verifyPassword should succeed: %v", err)
	}
	if err := verifyPassword(hash, "wrong-pass"); err == nil {
		t.Fatal("verifyPassword should fail for wrong password")
	}
}

func TestAccessTokenClaims(t *testing.T) {
	signer := NewHS256Signer("test-secret")
	owner := storage.Owner{ID: "owner-1", Email: "a@b.test", Role: "owner"}

	token, err := issueJWT(owner, signer)
	if err != nil {
		t.Fatalf("issueJWT failed: %v", err)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Sub != "owner-1" {
		t.Errorf("expected sub owner-1, got %s", claims.Sub)
	}
	if claims.OwnerID != "owner-1" {
		t.Errorf("expected owner_id owner-1, got %s", claims.OwnerID)
	}
	if claims.Role != "owner" {
		t.Errorf("expected role owner, got %s", claims.Role)
	}
	if claims.Exp <= claims.Iat {
		t.Errorf("expected exp after iat, got iat=%d exp=%d", claims.Iat, claims.Exp)
	}
}

func TestNewRefreshTokenIsUnique(t *testing.T) {
	a, err := newRefreshToken()
	if err != nil {
		t.Fatalf("newRefreshToken failed: %v", err)
	}
	b, err := newRefreshToken()
	if err != nil {
		t.Fatalf("newRefreshToken failed: %v", err)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Error("expected distinct tokens")
	}
}
