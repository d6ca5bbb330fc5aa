package auth

import (
	"context"
	"strings"
)

type contextKey string

const adminKey contextKey = "admin"

// Admin is an authenticated staff member allowed to change site content
type Admin struct {
	Email string
}

// WithAdmin returns a context carrying the authenticated admin
func WithAdmin(ctx context.Context, a Admin) context.Context {
	return context.WithValue(ctx, adminKey, a)
}

// AdminFrom returns the admin carried by ctx, if any
func AdminFrom(ctx context.Context) (Admin, bool) {
	a, ok := ctx.Value(adminKey).(Admin)
	if !ok || a.Email == "" {
		return Admin{}, false
	}
	return a, true
}

// Allowlist decides which emails may sign in as admin
type Allowlist []string

// Allows reports whether email is on the list, ignoring case and surrounding space
func (l Allowlist) Allows(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, e := range l {
		if strings.ToLower(e) == email {
			return true
		}
	}
	return false
}
