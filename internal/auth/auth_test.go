package auth

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func testAuth(t *testing.T) *Auth {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return New("test-secret", time.Hour, []User{
		{Username: "alice", PasswordHash: string(hash), Role: "admin"},
	})
}

func TestAuthenticate(t *testing.T) {
	a := testAuth(t)

	u, err := a.Authenticate("alice", "hunter22")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.Role != "admin" {
		t.Fatalf("role = %q; want admin", u.Role)
	}

	if _, err := a.Authenticate("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := a.Authenticate("mallory", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v", err)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	a := testAuth(t)

	token, expires, err := a.GenerateJWT("alice", "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("token already expired at %v", expires)
	}

	claims, err := a.ValidateJWT(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Username != "alice" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestJWTRejectsExpiredAndForeignTokens(t *testing.T) {
	a := testAuth(t)
	token, _, err := a.GenerateJWT("alice", "admin")
	if err != nil {
		t.Fatal(err)
	}

	other := New("other-secret", time.Hour, nil)
	if _, err := other.ValidateJWT(token); err == nil {
		t.Fatal("token signed with another secret should not validate")
	}

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := a.ValidateJWT(token); err == nil {
		t.Fatal("expired token should not validate")
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckPassword("correct horse", hash); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := CheckPassword("battery staple", hash); err == nil {
		t.Fatal("mismatched password accepted")
	}
}
