package middleware

import (
	"encoding/json"
	"net/http"

	scs "github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/communitysite/internal/auth"
)

// SessionAdminKey is the session key holding the signed-in admin's email
const SessionAdminKey = "admin_email"

// SessionAdmin puts the session's admin into the request context. Emails
// removed from the allowlist stop working on their next request.
func SessionAdmin(sess *scs.SessionManager, admins auth.Allowlist) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if email := sess.GetString(r.Context(), SessionAdminKey); email != "" && admins.Allows(email) {
				r = r.WithContext(auth.WithAdmin(r.Context(), auth.Admin{Email: email}))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin redirects to the login page unless an admin is signed in
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.AdminFrom(r.Context()); !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerAdmin authenticates JSON API calls with a Supabase access token
func BearerAdmin(v auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok || raw == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			admin, err := v.Verify(raw)
			if err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("bearer token rejected")
				unauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAdmin(r.Context(), admin)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
