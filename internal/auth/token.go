// Package auth validates the bearer tokens presented when a client opens a
// realtime connection. Token issuance lives in the auth service; this
// package only verifies the HS256 signature and resolves the subject claim
// to a user id.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails validation: bad
// signature, expiry, malformed claims, or a non-numeric subject. Callers
// treat all of these the same way (refuse the connection), so the cause is
// wrapped rather than split into separate sentinels.
var ErrInvalidToken = errors.New("auth: invalid token")

// Validator verifies HS256 access tokens whose "sub" claim carries the
// user id.
type Validator struct {
	secret []byte
}

// NewValidator creates a Validator for tokens signed with the given shared
// secret.
func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Validate parses and verifies token and returns the user id from the
// subject claim. Expired, tampered, or otherwise malformed tokens fail with
// an error wrapping ErrInvalidToken.
func (v *Validator) Validate(token string) (int64, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return 0, fmt.Errorf("%w: missing subject claim", ErrInvalidToken)
	}

	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric subject %q", ErrInvalidToken, subject)
	}
	return userID, nil
}

// Sign creates an HS256 token for userID valid for ttl. The gateway never
// issues tokens in production; this exists for tests and local tooling.
func (v *Validator) Sign(userID int64, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
