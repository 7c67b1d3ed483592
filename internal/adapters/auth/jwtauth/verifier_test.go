package jwtauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerifier_ValidToken(t *testing.T) {
	v := NewVerifier("secret-1")

	raw := signToken(t, "secret-1", jwt.MapClaims{
		"user_id": "doctor-1",
		"email":   "doc@example.com",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.UserID != "doctor-1" || claims.Email != "doc@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifier_FallsBackToSubject(t *testing.T) {
	v := NewVerifier("secret-1")

	raw := signToken(t, "secret-1", jwt.MapClaims{
		"sub": "patient-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.UserID != "patient-1" {
		t.Fatalf("expected subject fallback, got %+v", claims)
	}
}

func TestVerifier_RejectsBadSignature(t *testing.T) {
	v := NewVerifier("secret-1")

	raw := signToken(t, "other-secret", jwt.MapClaims{
		"user_id": "doctor-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	if _, err := v.Verify(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifier_RejectsExpired(t *testing.T) {
	v := NewVerifier("secret-1")

	raw := signToken(t, "secret-1", jwt.MapClaims{
		"user_id": "doctor-1",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := v.Verify(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifier_RejectsMissingIdentity(t *testing.T) {
	v := NewVerifier("secret-1")

	raw := signToken(t, "secret-1", jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := v.Verify(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken without identity, got %v", err)
	}
}

func TestVerifier_NotConfigured(t *testing.T) {
	v := NewVerifier("  ")

	if _, err := v.Verify(context.Background(), "whatever"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
