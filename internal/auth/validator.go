// Package auth validates bearer tokens. Token issuance lives with the
// identity provider; this service only needs to check signatures and extract
// the caller's identity.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"catcher/internal/platform/middleware"
)

// Validator checks HS256-signed tokens.
type Validator struct {
	signingKey []byte
}

// NewValidator constructs a Validator with the shared signing key.
func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ValidateToken parses and verifies a token, returning the caller's identity.
func (v *Validator) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return &middleware.JWTClaims{UserID: c.Subject, Email: c.Email}, nil
}

// SignToken mints a token for the given identity. Used by tests and local
// development tooling; production tokens come from the identity provider.
func (v *Validator) SignToken(userID, email string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	})
	return token.SignedString(v.signingKey)
}
