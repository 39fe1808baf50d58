package session

import (
	"net/http"
	"time"
)

// DefaultCookieName is the session cookie read by the HTTP middleware.
const DefaultCookieName = "session_token"

// NewCookie builds the session cookie: HttpOnly, Secure, SameSite=Strict,
// scoped to "/" and expiring with the token.
func NewCookie(name, token string, expires time.Time) *http.Cookie {
	if name == "" {
		name = DefaultCookieName
	}
	return &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// ExpiredCookie clears the session cookie on the client.
func ExpiredCookie(name string) *http.Cookie {
	c := NewCookie(name, "", time.Unix(0, 0))
	c.MaxAge = -1
	return c
}
