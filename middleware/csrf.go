package middleware

import (
	"net/http"

	"github.com/connectit/authcore"
)

// RequireCSRF validates the CSRF pair on state-changing methods. GET, HEAD,
// OPTIONS and TRACE pass through unchecked.
func RequireCSRF(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if safeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				WriteError(w, authcore.ErrSessionInvalid)
				return
			}

			cfg := engine.Config().CSRF
			var secure string
			if c, err := r.Cookie(cfg.SecureCookieName); err == nil {
				secure = c.Value
			}
			public := r.Header.Get(cfg.HeaderName)

			if err := engine.ValidateCsrfContext(r.Context(), secure, public, claims.ID); err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type csrfResponse struct {
	CsrfToken string `json:"csrfToken"`
}

// IssueCSRF sets both CSRF cookies for the current session and returns the
// public token in the body. Mount it behind RequireSession.
func IssueCSRF(engine *authcore.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			WriteError(w, authcore.ErrSessionInvalid)
			return
		}

		pair, err := engine.GenerateCsrfPair(claims.ID)
		if err != nil {
			WriteError(w, err)
			return
		}

		http.SetCookie(w, pair.SecureCookie)
		http.SetCookie(w, pair.PublicCookie)
		WriteJSON(w, http.StatusOK, csrfResponse{CsrfToken: pair.PublicToken})
	})
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
