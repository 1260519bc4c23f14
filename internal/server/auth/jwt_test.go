package auth

import (
	"testing"
	"time"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := []byte("test-secret")

	token, err := GenerateToken("u-1", "alice", secret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	claims, err := GetClaimsFromToken(token, secret)
	if err != nil {
		t.Fatalf("GetClaimsFromToken error: %v", err)
	}
	if claims.UserID != "u-1" || claims.Username != "alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestGetClaimsFromToken_WrongKey(t *testing.T) {
	token, err := GenerateToken("u-1", "alice", []byte("right"), time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := GetClaimsFromToken(token, []byte("wrong")); err == nil {
		t.Fatal("expected error for wrong key")
	}
}

func TestGetClaimsFromToken_Expired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := GenerateToken("u-1", "alice", secret, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := GetClaimsFromToken(token, secret); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestGetClaimsFromToken_Garbage(t *testing.T) {
	if _, err := GetClaimsFromToken("not-a-token", []byte("k")); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
