package session

import (
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/sha3"

	"github.com/nao1215/mentionscan/internal/config"
)

// expirySkew is subtracted from the expiry when checking validity so a
// session is refreshed shortly before the backend would reject it.
const expirySkew = 30 * time.Second

// Session is an authenticated analytics session as issued by the backend.
// It is serialized to JSON for persistence in the state directory.
type Session struct {
	// Token is the bearer token issued at login.
	Token string `json:"token"`

	// Cookie is the session cookie value, when the backend sets one.
	Cookie string `json:"cookie,omitempty"`

	// Username is the account the session belongs to.
	Username string `json:"username,omitempty"`

	// CreatedAt is when the session was established, in UTC.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the backend will stop accepting the session.
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSession builds a Session from a login response. When the backend
// does not state an expiry, the token's JWT exp claim is used if present,
// and a conservative default TTL otherwise.
func NewSession(token, cookie, username string, expiresAt time.Time) Session {
	now := time.Now().UTC()
	if expiresAt.IsZero() {
		if exp, ok := expiryFromToken(token); ok {
			expiresAt = exp
		} else {
			expiresAt = now.Add(config.DefaultSessionTTL)
		}
	}
	return Session{
		Token:     token,
		Cookie:    cookie,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: expiresAt.UTC(),
	}
}

// Valid reports whether the session can still be used at the given time.
// A session close to its expiry counts as invalid so in-flight queries do
// not race the backend's cutoff.
func (s Session) Valid(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	return now.Before(s.ExpiresAt.Add(-expirySkew))
}

// IsZero reports whether the session is empty.
func (s Session) IsZero() bool {
	return s.Token == "" && s.Cookie == ""
}

// Fingerprint returns a short hash of the token that is safe to log.
// Log output must never contain the token itself; the fingerprint lets
// operators correlate log lines with a specific session anyway.
func (s Session) Fingerprint() string {
	if s.Token == "" {
		return ""
	}
	sum := sha3.Sum256([]byte(s.Token))
	return hex.EncodeToString(sum[:8])
}

// expiryFromToken extracts the exp claim from a JWT-shaped token.
// The signature is not verified; only the backend can do that, and the
// claim is used solely to decide when to log in again.
func expiryFromToken(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
