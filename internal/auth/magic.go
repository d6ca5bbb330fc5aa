package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// MagicLink issues and verifies signed one-click sign-in links for admins
type MagicLink struct {
	Secret  []byte
	BaseURL string // eg., http://localhost:8080
}

var (
	ErrBadToken   = errors.New("bad token")
	ErrBadSig     = errors.New("invalid signature")
	ErrExpired    = errors.New("expired")
	ErrBadPayload = errors.New("bad payload")
)

const loginPurpose = "admin-login"

func (m MagicLink) mac(msg []byte) []byte {
	h := hmac.New(sha256.New, m.Secret)
	h.Write(msg)
	return h.Sum(nil)
}

// Sign returns "<payload>.<signature>", both base64url without padding
func (m MagicLink) Sign(email string, exp time.Time) string {
	msg := strings.Join([]string{loginPurpose, email, strconv.FormatInt(exp.Unix(), 10)}, "|")
	sig := base64.RawURLEncoding.EncodeToString(m.mac([]byte(msg)))
	payload := base64.RawURLEncoding.EncodeToString([]byte(msg))
	return payload + "." + sig
}

// decodeURLB64 tries raw (no padding) then padded
func decodeURLB64(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// Verify checks the signature and expiry and returns the email
func (m MagicLink) Verify(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return "", ErrBadToken
	}

	raw, err := decodeURLB64(parts[0])
	if err != nil {
		return "", ErrBadToken
	}
	sig, err := decodeURLB64(parts[1])
	if err != nil {
		return "", ErrBadToken
	}
	if !hmac.Equal(sig, m.mac(raw)) {
		return "", ErrBadSig
	}

	fields := strings.SplitN(string(raw), "|", 3)
	if len(fields) != 3 || fields[0] != loginPurpose {
		return "", ErrBadPayload
	}
	email := strings.TrimSpace(fields[1])
	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || email == "" {
		return "", ErrBadPayload
	}
	if time.Now().After(time.Unix(ts, 0)) {
		return "", ErrExpired
	}
	return email, nil
}

// URL builds the callback link carrying a token valid for ttl
func (m MagicLink) URL(email string, ttl time.Duration) string {
	tok := m.Sign(email, time.Now().Add(ttl))
	u, err := url.Parse(m.BaseURL)
	if err != nil {
		u = &url.URL{}
	}
	u.Path = "/auth/callback"
	q := u.Query()
	q.Set("token", tok)
	u.RawQuery = q.Encode()
	return u.String()
}
