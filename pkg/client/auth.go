package client

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned for a JWT whose exp claim has passed.
var ErrTokenExpired = errors.New("access token expired")

// TokenExpiry returns the exp claim of a JWT without verifying its
// signature; only the server can do that. The zero time means the token
// carries no expiry.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// CheckToken rejects JWTs that have already expired. Empty and opaque
// (non-JWT) tokens are left for the server to judge.
func CheckToken(token string) error {
	if token == "" || strings.Count(token, ".") != 2 {
		return nil
	}

	expiresAt, err := TokenExpiry(token)
	if err != nil || expiresAt.IsZero() {
		return nil
	}

	// Check if token is expired (using UTC for consistency)
	if time.Now().UTC().After(expiresAt.UTC()) {
		return fmt.Errorf("%w at %v - please run 'rterm auth login' with a new token", ErrTokenExpired, expiresAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
