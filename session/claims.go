package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the UI may read from a token without verifying it.
// Nothing here is trusted for authorization.
type Claims struct {
	Subject   string
	Email     string
	Role      Role
	ExpiresAt time.Time
}

// Expired reports whether the token carried an expiry that has passed at now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Inspect decodes the claims of a JWT session token without checking its signature.
func Inspect(token string) (Claims, error) {
	if token == "" {
		return Claims{}, errors.New("empty session token")
	}

	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mapClaims); err != nil {
		return Claims{}, fmt.Errorf("decode session token: %w", err)
	}

	claims := Claims{}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	for _, name := range []string{"role", "userType", "user_type"} {
		if role, ok := mapClaims[name].(string); ok && role != "" {
			claims.Role = Role(role)
			break
		}
	}
	return claims, nil
}
