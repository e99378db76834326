// Package mobile implements the long-term mobile device identity: a paired
// device holds a rotatable long-term token inside a signed 90-day cookie,
// independent of the regular session cookie. On every successful
// validation a fresh employee session is established for the device and the
// cookie is reissued to roll its expiry.
package mobile

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the long-term mobile device cookie.
const CookieName = "evaka.employee.mobile"

// Config holds mobile token settings with environment variable support.
type Config struct {
	// TokenSecret signs the long-term token JWT.
	TokenSecret string `env:"MOBILE_TOKEN_SECRET,required"`

	// TokenTTL is the rolling lifetime of the long-term cookie.
	TokenTTL time.Duration `env:"MOBILE_TOKEN_TTL" envDefault:"2160h"` // 90 days
}

// ErrInvalidToken is returned when a long-term token JWT does not verify.
var ErrInvalidToken = errors.New("mobile: invalid long-term token")

// TokenCodec issues and verifies the JWT carried in the long-term cookie.
// The JWT wraps the backend-issued long-term token string; the signature
// only proves the cookie came from this gateway, recognition of the token
// itself stays with the backend.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenCodec creates a codec from config.
func NewTokenCodec(cfg Config) (*TokenCodec, error) {
	if len(cfg.TokenSecret) < 32 {
		return nil, errors.New("mobile: token secret must be at least 32 characters")
	}
	return &TokenCodec{secret: []byte(cfg.TokenSecret), ttl: cfg.TokenTTL}, nil
}

// TTL returns the configured token lifetime.
func (c *TokenCodec) TTL() time.Duration { return c.ttl }

// Issue wraps a backend long-term token into a signed JWT.
func (c *TokenCodec) Issue(longTermToken string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   longTermToken,
		ID:        uuid.New().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("mobile: sign long-term token: %w", err)
	}
	return token, nil
}

// Verify validates the JWT and returns the wrapped long-term token.
func (c *TokenCodec) Verify(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
