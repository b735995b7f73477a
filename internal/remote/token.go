package remote

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// checkToken rejects a JWT whose exp claim is not after now. Tokens that do
// not parse as JWTs, or carry no exp claim, are left for the server to judge.
func checkToken(token string, now time.Time) error {
	if token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !exp.Time.After(now) {
		return fmt.Errorf("token expired at %s: %w", exp.Time.UTC().Format(time.RFC3339), ErrUnauthorized)
	}
	return nil
}

// TokenExpiry returns the exp claim of a JWT, or the zero time when the
// token has none.
func TokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
