package auth

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestValidateRoundTrip(t *testing.T) {
	v := NewValidator("test-secret")

	token, err := v.Sign(1234, time.Minute)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	userID, err := v.Validate(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != 1234 {
		t.Errorf("expected user id 1234, got %d", userID)
	}
}

func TestValidateRejectsEmptyToken(t *testing.T) {
	v := NewValidator("test-secret")

	if _, err := v.Validate(""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	v := NewValidator("test-secret")

	token, err := v.Sign(1, -time.Minute)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := v.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	signer := NewValidator("secret-a")
	v := NewValidator("secret-b")

	token, err := signer.Sign(1, time.Minute)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := v.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestValidateRejectsNonNumericSubject(t *testing.T) {
	secret := "test-secret"
	claims := jwt.RegisteredClaims{
		Subject:   "not-a-user-id",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	v := NewValidator(secret)
	if _, err := v.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for non-numeric subject, got %v", err)
	}
}

func TestValidateRejectsMissingSubject(t *testing.T) {
	secret := "test-secret"
	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	v := NewValidator(secret)
	if _, err := v.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for missing subject, got %v", err)
	}
}

func TestValidateRejectsUnsignedToken(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: strconv.Itoa(5)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}

	v := NewValidator("test-secret")
	if _, err := v.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for alg=none token, got %v", err)
	}
}
