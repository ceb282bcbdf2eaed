// Package session resolves the anonymous session a request belongs to.
//
// A session is nothing more than a random UUID persisted client-side in a
// cookie; the server keeps no session table. Resolve never fails: a missing
// or malformed token yields a freshly minted one that the caller must persist.
package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// CookieName is the name of the cookie carrying the session token.
	CookieName = "sessionId"

	// DefaultMaxAge is how long the client keeps the token.
	DefaultMaxAge = 7 * 24 * time.Hour
)

// Resolver validates inbound tokens and mints new ones.
type Resolver struct {
	newToken func() string
	maxAge   time.Duration
	secure   bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxAge overrides the cookie lifetime.
func WithMaxAge(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.maxAge = d
		}
	}
}

// WithSecureCookie marks the persisted cookie as HTTPS-only.
func WithSecureCookie(secure bool) Option {
	return func(r *Resolver) { r.secure = secure }
}

// WithTokenSource replaces the token generator. Used by tests.
func WithTokenSource(fn func() string) Option {
	return func(r *Resolver) { r.newToken = fn }
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		newToken: func() string { return uuid.NewString() },
		maxAge:   DefaultMaxAge,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns token unchanged when it is well-formed. Otherwise it
// mints a new token and reports that it must be persisted to the client.
func (r *Resolver) Resolve(token string) (sessionID string, mustPersist bool) {
	if Valid(token) {
		return token, false
	}
	return r.newToken(), true
}

// Valid reports whether token is a canonical, lowercase UUID string.
func Valid(token string) bool {
	id, err := uuid.Parse(token)
	if err != nil {
		return false
	}
	return id.String() == token
}

// FromRequest returns the raw session token carried by r, or "".
func FromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// Persist stores sessionID client-side for the whole application path.
func (r *Resolver) Persist(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(r.maxAge / time.Second),
		Expires:  time.Now().Add(r.maxAge),
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
