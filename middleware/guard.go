package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/connectit/authcore"
	"github.com/connectit/authcore/jwt"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by RequireSession.
func ClaimsFromContext(ctx context.Context) (*jwt.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.SessionClaims)
	return claims, ok && claims != nil
}

// RequireSession rejects requests without an active session. The token is
// read from the session cookie first, then from an Authorization bearer
// header.
func RequireSession(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, authcore.ErrSessionInvalid)
				return
			}

			ctx := RequestContext(r)
			token := sessionToken(r, engine.Config().Session.CookieName)

			claims, err := engine.ValidateRequestSession(ctx, token)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx = context.WithValue(ctx, claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	token, _ := bearerToken(r.Header.Get("Authorization"))
	return token
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

// RequestContext returns r.Context() carrying the client address and user
// agent, which the Engine reads for audit events and per-IP budgets.
func RequestContext(r *http.Request) context.Context {
	ctx := r.Context()
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ctx = authcore.WithClientIP(ctx, ip)
	return authcore.WithUserAgent(ctx, r.UserAgent())
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// WriteError writes err as JSON with its HTTP status. Only the public
// reason is written, never the wrapped cause.
func WriteError(w http.ResponseWriter, err error) {
	status := authcore.HTTPStatus(err)
	body := errorBody{Error: http.StatusText(status)}

	var ae *authcore.Error
	if errors.As(err, &ae) && ae.Kind != authcore.KindUnknown {
		body.Error = ae.Reason
		body.Fields = ae.Fields
	}

	WriteJSON(w, status, body)
}

// WriteJSON writes v with status and disables caching.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
