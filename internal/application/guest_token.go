package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SecretSource supplies the HMAC key for guest session cookies.
type SecretSource interface {
	SessionSecret(ctx context.Context) ([]byte, error)
}

// GuestClaims are carried by an invite session cookie.
type GuestClaims struct {
	SessionToken string `json:"sid"`
	MovieNightID string `json:"nid"`
	jwt.RegisteredClaims
}

// GuestTokenSigner signs and verifies invite session cookies with HS256.
type GuestTokenSigner struct {
	secrets SecretSource
	now     func() time.Time
}

// NewGuestTokenSigner constructs a signer reading its key from secrets.
func NewGuestTokenSigner(secrets SecretSource, now func() time.Time) *GuestTokenSigner {
	if now == nil {
		now = time.Now
	}
	return &GuestTokenSigner{secrets: secrets, now: now}
}

// Sign issues a cookie value for an invite-scoped session.
func (g *GuestTokenSigner) Sign(ctx context.Context, session Session) (string, error) {
	secret, err := g.secrets.SessionSecret(ctx)
	if err != nil {
		return "", err
	}
	claims := GuestClaims{
		SessionToken: session.Token,
		MovieNightID: session.MovieNightID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(g.now()),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign guest token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry of a cookie value.
func (g *GuestTokenSigner) Parse(ctx context.Context, value string) (GuestClaims, error) {
	secret, err := g.secrets.SessionSecret(ctx)
	if err != nil {
		return GuestClaims{}, err
	}

	var claims GuestClaims
	token, err := jwt.ParseWithClaims(value, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(g.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return GuestClaims{}, ErrSessionExpired
		}
		return GuestClaims{}, ErrUnauthenticated
	}
	if !token.Valid || claims.SessionToken == "" || claims.MovieNightID == "" {
		return GuestClaims{}, ErrUnauthenticated
	}
	return claims, nil
}

// LooksLikeGuestToken reports whether a cookie value has JWT shape.
func LooksLikeGuestToken(value string) bool {
	return strings.Count(value, ".") == 2
}
