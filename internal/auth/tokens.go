// Package auth owns the persisted credential pair and the token lifecycle:
// expiry detection, single-flight refresh, login/logout, and the cached
// user profile. It is the only writer of the credential entries in the
// local store.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ExpiryLeeway is subtracted from a token's nominal expiry so the client
// never races the server clock with an almost-expired token.
const ExpiryLeeway = 60 * time.Second

var (
	// ErrNoSession indicates that no credentials are stored; the user must
	// log in.
	ErrNoSession = errors.New("no active session")

	// ErrSessionExpired indicates that the stored credentials were rejected
	// by the backend and have been wiped; the user must log in again.
	ErrSessionExpired = errors.New("session expired, login required")
)

// TokenExpiry returns the expiry instant embedded in a JWT access token's
// exp claim. The signature is not verified; the client only needs the
// timestamp, the server remains the authority on validity.
func TokenExpiry(tokenString string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no expiry claim")
	}
	return claims.ExpiresAt.Time, nil
}

// tokenEntry is the persisted access-token record. ExpiresAt carries the
// server-reported expiry for opaque (non-JWT) tokens; for JWTs the embedded
// exp claim wins.
type tokenEntry struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// expired reports whether the entry's token is expired or inside the
// safety buffer. A token whose expiry cannot be determined at all is
// treated as expired (fail-closed).
func (e tokenEntry) expired(now time.Time) bool {
	if e.Token == "" {
		return true
	}

	expiry, err := TokenExpiry(e.Token)
	if err != nil {
		expiry = e.ExpiresAt
	}
	if expiry.IsZero() {
		return true
	}
	return !now.Before(expiry.Add(-ExpiryLeeway))
}
