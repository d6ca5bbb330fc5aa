package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNotAdmin = errors.New("not an admin")

// Claims is the subset of a Supabase access token we rely on
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier checks Supabase access tokens (HS256, signed with the
// project's JWT secret) and maps them to admins on the allowlist.
type TokenVerifier struct {
	Secret []byte
	Admins Allowlist
}

// Verify parses a raw token and returns the admin it authenticates
func (v TokenVerifier) Verify(raw string) (Admin, error) {
	if len(v.Secret) == 0 {
		return Admin{}, fmt.Errorf("%w: no signing secret configured", ErrBadToken)
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Admin{}, ErrExpired
		}
		return Admin{}, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if claims.Role != "" && claims.Role != "authenticated" && claims.Role != "service_role" {
		return Admin{}, ErrNotAdmin
	}
	if !v.Admins.Allows(claims.Email) {
		return Admin{}, ErrNotAdmin
	}
	return Admin{Email: strings.ToLower(claims.Email)}, nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || strings.ToLower(header[:len(prefix)]) != prefix {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
