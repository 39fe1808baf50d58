package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/connectit/authcore"
	"github.com/connectit/authcore/jwt"
	"github.com/connectit/authcore/middleware"
)

const maxDocumentBytes = 10 << 20

type accountLookup interface {
	GetAccountByID(ctx context.Context, accountID int64) (*authcore.Account, error)
}

type api struct {
	engine   *authcore.Engine
	accounts accountLookup
}

func newAPI(engine *authcore.Engine, accounts accountLookup) *api {
	return &api{engine: engine, accounts: accounts}
}

func (a *api) routes(mux *http.ServeMux) {
	session := middleware.RequireSession(a.engine)
	guarded := func(h http.HandlerFunc) http.Handler {
		return session(middleware.RequireCSRF(a.engine)(h))
	}

	mux.HandleFunc("POST /auth/register", a.register)
	mux.HandleFunc("POST /auth/login", a.login)
	mux.HandleFunc("POST /auth/logout", a.logout)
	mux.Handle("POST /auth/refresh", guarded(a.refresh))
	mux.Handle("GET /auth/csrf", session(middleware.IssueCSRF(a.engine)))
	mux.Handle("GET /auth/me", session(http.HandlerFunc(a.me)))
	mux.Handle("POST /auth/password", guarded(a.changePassword))
	mux.Handle("POST /auth/2fa/enroll", guarded(a.enrollTwoFactor))
	mux.Handle("POST /auth/2fa/confirm", guarded(a.confirmTwoFactor))
	mux.Handle("POST /auth/2fa/disable", guarded(a.disableTwoFactor))
	mux.Handle("POST /documents/{root}", guarded(a.uploadDocument))
	mux.Handle("GET /documents", session(http.HandlerFunc(a.downloadDocument)))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, authcore.ErrValidation)
		return false
	}
	return true
}

func claims(r *http.Request) (*jwt.SessionClaims, int64) {
	c, _ := middleware.ClaimsFromContext(r.Context())
	id, _ := c.AccountID()
	return c, id
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var req authcore.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	acc, err := a.engine.Register(middleware.RequestContext(r), req)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, acc)
}

type loginResponse struct {
	Account   authcore.AccountSummary `json:"account"`
	CsrfToken string                  `json:"csrfToken"`
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req authcore.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.engine.Login(middleware.RequestContext(r), req)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	http.SetCookie(w, res.Session.Cookie)
	http.SetCookie(w, res.Csrf.SecureCookie)
	http.SetCookie(w, res.Csrf.PublicCookie)
	middleware.WriteJSON(w, http.StatusOK, loginResponse{Account: res.Account, CsrfToken: res.Csrf.PublicToken})
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(a.engine.Config().Session.CookieName); err == nil {
		token = c.Value
	}
	cookie, err := a.engine.Logout(middleware.RequestContext(r), token)
	http.SetCookie(w, cookie)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(a.engine.Config().Session.CookieName)
	if err != nil {
		middleware.WriteError(w, authcore.ErrSessionInvalid)
		return
	}
	s, err := a.engine.RefreshSession(middleware.RequestContext(r), c.Value)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	http.SetCookie(w, s.Cookie)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	c, _ := claims(r)
	middleware.WriteJSON(w, http.StatusOK, c.SubjectInfo())
}

type passwordRequest struct {
	Current string `json:"currentPassword"`
	Next    string `json:"newPassword"`
}

func (a *api) changePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decode(w, r, &req) {
		return
	}
	_, id := claims(r)
	if err := a.engine.ChangePassword(r.Context(), id, req.Current, req.Next); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type enrollResponse struct {
	QRCode          string `json:"qrCode"`
	EncryptedSecret string `json:"encryptedSecret"`
}

func (a *api) enrollTwoFactor(w http.ResponseWriter, r *http.Request) {
	_, id := claims(r)
	acc, err := a.accounts.GetAccountByID(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, authcore.ErrSessionInvalid)
		return
	}
	enrollment, err := a.engine.EnrollTwoFactor(r.Context(), acc.Email)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, enrollResponse{
		QRCode:          enrollment.QRCodeBase64,
		EncryptedSecret: enrollment.EncryptedSecret,
	})
}

type twoFactorRequest struct {
	Code            string `json:"code"`
	EncryptedSecret string `json:"encryptedSecret"`
}

func (a *api) confirmTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twoFactorRequest
	if !decode(w, r, &req) {
		return
	}
	_, id := claims(r)
	if err := a.engine.ConfirmTwoFactor(r.Context(), id, req.Code, req.EncryptedSecret); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) disableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twoFactorRequest
	if !decode(w, r, &req) {
		return
	}
	_, id := claims(r)
	if err := a.engine.DisableTwoFactor(r.Context(), id, req.Code); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type uploadResponse struct {
	URI string `json:"uri"`
}

// uploadDocument takes the raw file as the body and its name from the
// filename query parameter.
func (a *api) uploadDocument(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		middleware.WriteError(w, authcore.ErrValidation)
		return
	}
	uri, err := a.engine.StoreDocument(middleware.RequestContext(r), r.PathValue("root"), r.URL.Query().Get("filename"), data)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, uploadResponse{URI: uri})
}

// downloadDocument returns the decrypted document named by the uri query
// parameter, as handed out by uploadDocument.
func (a *api) downloadDocument(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		middleware.WriteError(w, authcore.ErrValidation)
		return
	}
	data, err := a.engine.LoadDocument(middleware.RequestContext(r), uri)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}
