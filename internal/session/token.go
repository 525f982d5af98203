package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoExpiry is returned when a token payload carries no exp claim.
	ErrNoExpiry = errors.New("token has no expiry claim")
	// ErrMalformedToken is returned when a token has no payload segment.
	ErrMalformedToken = errors.New("token has no payload segment")
)

// Expiry decodes the payload segment of a JWT and returns its exp claim.
// Only the second dot-delimited segment is read: the header and signature are
// neither parsed nor checked, the server does that.
func Expiry(token string) (time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 || parts[1] == "" {
		return time.Time{}, ErrMalformedToken
	}
	payload, err := jwt.NewParser(jwt.WithPaddingAllowed()).DecodeSegment(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("decoding token payload: %w", err)
	}
	claims := &jwt.RegisteredClaims{}
	if err := json.Unmarshal(payload, claims); err != nil {
		return time.Time{}, fmt.Errorf("decoding token claims: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// validAt reports whether token is decodable and expires strictly after now.
func validAt(token string, now time.Time) bool {
	exp, err := Expiry(token)
	if err != nil {
		return false
	}
	return exp.After(now)
}
