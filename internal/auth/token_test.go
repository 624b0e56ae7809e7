// ABOUTME: Unit tests for JWT token verification and generation
// ABOUTME: Tests valid tokens, invalid tokens, expiry and weak secrets

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("token-test-secret-that-is-32-byt")

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}
	return v
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := verifier.Generate("claude-desktop", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != "claude-desktop" {
		t.Errorf("Verify() = %q, want %q", got, "claude-desktop")
	}
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	verifier := newTestVerifier(t)

	other, err := NewJWTVerifier([]byte("a-completely-different-32b-secret"))
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}
	wrongSecret, _ := other.Generate("someone", time.Hour)

	foreignIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "x",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(testSecret)

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:  Issuer,
		Subject: "x",
	}).SignedString(testSecret)

	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   "x",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage token", "not-a-jwt-token"},
		{"malformed JWT", "header.payload.signature"},
		{"wrong secret", wrongSecret},
		{"foreign issuer", foreignIssuer},
		{"no expiry", noExpiry},
		{"other algorithm", hs512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := verifier.Generate("claude-desktop", time.Minute)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	verifier.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := verifier.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTVerifier_MissingSubject(t *testing.T) {
	verifier := newTestVerifier(t)

	if _, err := verifier.Generate("", time.Hour); !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Generate(\"\") error = %v, want ErrMissingClaim", err)
	}

	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(testSecret)
	if _, err := verifier.Verify(token); !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Verify() error = %v, want ErrMissingClaim", err)
	}
}

func TestNewJWTVerifier_WeakSecret(t *testing.T) {
	if _, err := NewJWTVerifier([]byte("short")); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("NewJWTVerifier() error = %v, want ErrWeakSecret", err)
	}
}
