package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wuwenbin0122/convo-sync/internal/auth"
)

func TestAuthServiceIssueAndVerify(t *testing.T) {
	svc, err := auth.NewService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error creating auth service: %v", err)
	}

	token, err := svc.IssueToken("ops")
	if err != nil {
		t.Fatalf("issue returned error: %v", err)
	}

	if token.Value == "" {
		t.Fatalf("expected signed token")
	}

	if token.ExpiresAt.Before(time.Now().Add(59 * time.Minute)) {
		t.Fatalf("expected expiry about one hour out, got %s", token.ExpiresAt)
	}

	claims, err := svc.VerifyToken(token.Value)
	if err != nil {
		t.Fatalf("verify token failed: %v", err)
	}

	if claims.Subject != "ops" {
		t.Fatalf("expected token subject ops, got %s", claims.Subject)
	}

	if _, err := svc.IssueToken("  "); !errors.Is(err, auth.ErrSubjectRequired) {
		t.Fatalf("expected subject required error, got %v", err)
	}
}

func TestAuthServiceRejectsForeignTokens(t *testing.T) {
	svc, _ := auth.NewService("test-secret", time.Hour)
	other, _ := auth.NewService("other-secret", time.Hour)

	token, err := other.IssueToken("ops")
	if err != nil {
		t.Fatalf("issue returned error: %v", err)
	}

	if _, err := svc.VerifyToken(token.Value); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected invalid token error for wrong secret, got %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "convo-sync",
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	signed, _ := expired.SignedString([]byte("test-secret"))
	if _, err := svc.VerifyToken(signed); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected invalid token error for expired token, got %v", err)
	}

	if _, err := svc.VerifyToken("not-a-jwt"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected invalid token error for garbage, got %v", err)
	}

	if _, err := auth.NewService(" ", time.Hour); !errors.Is(err, auth.ErrSecretRequired) {
		t.Fatalf("expected secret required error, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if token, ok := auth.BearerToken("Bearer abc.def"); !ok || token != "abc.def" {
		t.Fatalf("expected abc.def, got %q", token)
	}
	if token, ok := auth.BearerToken("bearer  xyz "); !ok || token != "xyz" {
		t.Fatalf("expected xyz, got %q", token)
	}
	if _, ok := auth.BearerToken("Basic abc"); ok {
		t.Fatalf("expected basic auth to be rejected")
	}
	if _, ok := auth.BearerToken(""); ok {
		t.Fatalf("expected empty header to be rejected")
	}
}
