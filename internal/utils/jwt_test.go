package utils

import (
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestTokenRoundTrip(t *testing.T) {
	os.Setenv("JWT_SECRET_KEY", "test_secret")
	t.Cleanup(func() { os.Unsetenv("JWT_SECRET_KEY") })

	id := uuid.New()
	tok, err := GenerateToken(id)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	got, err := ParseToken(tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if got != id {
		t.Fatalf("identity claim mismatch: got %s want %s", got, id)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	os.Setenv("JWT_SECRET_KEY", "test_secret")
	t.Cleanup(func() { os.Unsetenv("JWT_SECRET_KEY") })

	if _, err := ParseToken("not.a.token"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	os.Unsetenv("JWT_SECRET_KEY")
	if _, err := GenerateToken(uuid.New()); err == nil {
		t.Fatal("expected error without JWT_SECRET_KEY")
	}
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("p@ssw0rd!!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPasswordHash("p@ssw0rd!!", h) {
		t.Fatal("correct password rejected")
	}
	if CheckPasswordHash("wrong", h) {
		t.Fatal("wrong password accepted")
	}
}
