// Package auth guards the trusted-caller endpoints with HS256 tokens.
// Player identity is not handled here.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TrustedSubject is the only subject allowed to force turn progress.
const TrustedSubject = "timeout-escalator"

// ErrUnauthorized is returned for missing, malformed or foreign tokens.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Tokens signs and verifies trusted-caller tokens with a shared secret.
type Tokens struct {
	secret []byte
	Now    func() time.Time
}

// NewTokens builds Tokens. The secret must not be empty.
func NewTokens(secret string) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("auth: trusted caller secret is required")
	}
	return &Tokens{secret: []byte(secret), Now: time.Now}, nil
}

// Sign issues a token for subject valid for ttl.
func (t *Tokens) Sign(subject string, ttl time.Duration) (string, error) {
	now := t.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	s, err := tok.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify accepts only unexpired HS256 tokens for TrustedSubject.
func (t *Tokens) Verify(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrUnauthorized)
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.Now),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(TrustedSubject),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

// Middleware rejects requests without a valid bearer token.
func (t *Tokens) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || t.Verify(raw) != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
