package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMagicLinkRoundTrip(t *testing.T) {
	m := MagicLink{Secret: []byte("secret"), BaseURL: "http://localhost:8080"}

	link := m.URL("admin@example.org", time.Hour)
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("URL() produced unparsable link: %v", err)
	}
	if u.Path != "/auth/callback" {
		t.Errorf("Expected callback path, got %s", u.Path)
	}

	email, err := m.Verify(u.Query().Get("token"))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if email != "admin@example.org" {
		t.Errorf("Expected admin@example.org, got %s", email)
	}
}

func TestMagicLinkRejects(t *testing.T) {
	m := MagicLink{Secret: []byte("secret")}
	other := MagicLink{Secret: []byte("other")}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrBadToken},
		{"wrong secret", other.Sign("a@b.c", time.Now().Add(time.Hour)), ErrBadSig},
		{"expired", m.Sign("a@b.c", time.Now().Add(-time.Minute)), ErrExpired},
		{"swapped signature", swapSig(m.Sign("a@b.c", time.Now().Add(time.Hour)), m.Sign("x@y.z", time.Now().Add(time.Hour))), ErrBadSig},
	}
	for _, tt := range tests {
		if _, err := m.Verify(tt.token); !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}
}

// swapSig pairs the payload of a with the signature of b
func swapSig(a, b string) string {
	pa := strings.SplitN(a, ".", 2)
	pb := strings.SplitN(b, ".", 2)
	return pa[0] + "." + pb[1]
}

func TestAllowlist(t *testing.T) {
	l := Allowlist{"admin@example.org"}
	if !l.Allows("  ADMIN@example.org ") {
		t.Error("allowlist should ignore case and whitespace")
	}
	if l.Allows("") || l.Allows("intruder@example.org") {
		t.Error("allowlist should reject unknown emails")
	}
}

func TestAdminContext(t *testing.T) {
	if _, ok := AdminFrom(context.Background()); ok {
		t.Error("empty context should carry no admin")
	}
	ctx := WithAdmin(context.Background(), Admin{Email: "a@b.c"})
	a, ok := AdminFrom(ctx)
	if !ok || a.Email != "a@b.c" {
		t.Errorf("AdminFrom = %v, %v", a, ok)
	}
}

func signJWT(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestTokenVerifier(t *testing.T) {
	v := TokenVerifier{Secret: []byte("jwt-secret"), Admins: Allowlist{"admin@example.org"}}
	valid := Claims{
		Email:            "Admin@example.org",
		Role:             "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}

	a, err := v.Verify(signJWT(t, "jwt-secret", valid))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if a.Email != "admin@example.org" {
		t.Errorf("Expected lowercased email, got %s", a.Email)
	}

	if _, err := v.Verify(signJWT(t, "wrong", valid)); !errors.Is(err, ErrBadToken) {
		t.Errorf("wrong secret: got %v", err)
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	if _, err := v.Verify(signJWT(t, "jwt-secret", expired)); !errors.Is(err, ErrExpired) {
		t.Errorf("expired: got %v", err)
	}

	stranger := valid
	stranger.Email = "someone@example.org"
	if _, err := v.Verify(signJWT(t, "jwt-secret", stranger)); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("stranger: got %v", err)
	}

	anon := valid
	anon.Role = "anon"
	if _, err := v.Verify(signJWT(t, "jwt-secret", anon)); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("anon role: got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if tok, ok := BearerToken("Bearer abc.def"); !ok || tok != "abc.def" {
		t.Errorf("BearerToken = %q, %v", tok, ok)
	}
	if _, ok := BearerToken("Basic xyz"); ok {
		t.Error("Basic auth should not parse as bearer")
	}
	if _, ok := BearerToken("Bearer "); ok {
		t.Error("empty bearer should not parse")
	}
}
