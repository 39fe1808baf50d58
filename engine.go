package authcore

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/connectit/authcore/captcha"
	"github.com/connectit/authcore/csrf"
	"github.com/connectit/authcore/internal/limiters"
	"github.com/connectit/authcore/internal/rate"
	"github.com/connectit/authcore/jwt"
	"github.com/connectit/authcore/password"
	"github.com/connectit/authcore/session"
	"github.com/connectit/authcore/twofactor"
	"github.com/connectit/authcore/vault"
)

// Engine is the authentication core. It is safe for concurrent use once
// built and holds no per-request state.
type Engine struct {
	config      Config
	accounts    AccountRepository
	bindings    SessionBindings
	hasher      *password.Hasher
	jwtManager  *jwt.Manager
	csrfGuard   *csrf.Guard
	throttle    *limiters.LoginThrottle
	rateLimiter *rate.Limiter
	captcha     captcha.Verifier
	cipher      *vault.Cipher
	documents   *vault.Vault
	twoFactor   *twofactor.Authenticator
	totpLimiter *limiters.TOTPLimiter
	audit       *auditDispatcher
	metrics     *Metrics
	logger      *slog.Logger
	clock       func() time.Time
}

// Config returns the configuration the Engine was built with.
func (e *Engine) Config() Config {
	return e.config
}

// Close drains the audit buffer. The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports events discarded because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) unavailable(ctx context.Context, op string, err error) error {
	e.metricInc(MetricBackendUnavailable)
	e.logger.WarnContext(ctx, "backend unavailable", slog.String("op", op), slog.Any("error", err))
	return wrap(ErrBackendUnavailable, err)
}

/*
====================================
CREDENTIALS
====================================
*/

// VerifyCredentials checks email and password against the account store.
// An unknown email and a wrong password are indistinguishable, in result and
// in time. It does not touch the login throttle; Login does.
func (e *Engine) VerifyCredentials(ctx context.Context, email, plaintext string) (*AccountSummary, error) {
	account, err := e.verifyCredentials(ctx, email, plaintext)
	if err != nil {
		return nil, err
	}
	if account.IsDisabled {
		return nil, ErrAccountDisabled
	}
	summary := account.Summary()
	return &summary, nil
}

func (e *Engine) verifyCredentials(ctx context.Context, email, plaintext string) (*Account, error) {
	account, err := e.accounts.GetAccountByEmail(ctx, limiters.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.hasher.DummyVerify(plaintext)
			return nil, ErrInvalidCredentials
		}
		return nil, e.unavailable(ctx, "get_account_by_email", err)
	}
	if !e.hasher.Verify(plaintext, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

func (e *Engine) upgradePasswordHash(ctx context.Context, account *Account, plaintext string) {
	if !e.config.Password.UpgradeOnLogin || !e.hasher.NeedsUpgrade(account.PasswordHash) {
		return
	}

	upgraded, err := e.hasher.Hash(plaintext)
	if err != nil {
		e.logger.WarnContext(ctx, "password hash upgrade failed",
			slog.Int64("account_id", account.AccountID), slog.Any("error", err))
		return
	}
	// Best effort: the login already succeeded.
	if err := e.accounts.UpdatePasswordHash(ctx, account.AccountID, upgraded); err != nil {
		e.logger.WarnContext(ctx, "password hash upgrade update failed",
			slog.Int64("account_id", account.AccountID), slog.Any("error", err))
		return
	}
	e.metricInc(MetricPasswordUpgraded)
}

/*
====================================
SESSIONS
====================================
*/

// IssueSession signs a fresh session for the account and makes it the only
// active one: every token issued earlier for the account stops validating.
func (e *Engine) IssueSession(ctx context.Context, account AccountSummary) (*IssuedSession, error) {
	token, claims, err := e.jwtManager.Issue(account.subject(), jwt.IssueOptions{})
	if err != nil {
		return nil, err
	}
	if err := e.bindings.BindJTI(ctx, account.AccountID, claims.ID); err != nil {
		return nil, e.unavailable(ctx, "bind_jti", err)
	}

	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventSessionIssued, true, account.AccountID, "", claims.ID, nil, nil)

	return &IssuedSession{
		Token:  token,
		Cookie: session.NewCookie(e.config.Session.CookieName, token, claims.ExpiresAt.Time),
		Claims: claims,
	}, nil
}

// ValidateRequestSession verifies the token signature and lifetime, then
// checks that its jti is still the account's active session.
func (e *Engine) ValidateRequestSession(ctx context.Context, token string) (*jwt.SessionClaims, error) {
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	if token == "" {
		e.metricInc(MetricSessionInvalid)
		return nil, ErrSessionInvalid
	}

	claims, err := e.jwtManager.Decode(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			e.metricInc(MetricSessionExpired)
			return nil, wrap(ErrSessionExpired, err)
		}
		e.metricInc(MetricSessionInvalid)
		return nil, wrap(ErrSessionInvalid, err)
	}

	accountID, err := claims.AccountID()
	if err != nil {
		e.metricInc(MetricSessionInvalid)
		return nil, wrap(ErrSessionInvalid, err)
	}

	current, err := e.bindings.CurrentJTI(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricSessionInvalid)
			return nil, wrap(ErrSessionInvalid, err)
		}
		return nil, e.unavailable(ctx, "current_jti", err)
	}

	if err := session.ValidateActiveSession(claims.ID, current); err != nil {
		if errors.Is(err, session.ErrSuperseded) {
			e.metricInc(MetricSessionSuperseded)
			e.emitAudit(ctx, auditEventSessionSuperseded, false, accountID, "", claims.ID, ErrSessionSuperseded, nil)
			return nil, wrap(ErrSessionSuperseded, err)
		}
		e.metricInc(MetricSessionInvalid)
		return nil, wrap(ErrSessionInvalid, err)
	}

	return claims, nil
}

// RefreshSession re-issues a valid, still-active token with a new expiry.
// The jti and origIat carry over, so the binding is unchanged and the
// session still ends MaxLifetime after the original login.
func (e *Engine) RefreshSession(ctx context.Context, token string) (*IssuedSession, error) {
	claims, err := e.ValidateRequestSession(ctx, token)
	if err != nil {
		return nil, err
	}

	refreshed, newClaims, err := e.jwtManager.Refresh(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return nil, wrap(ErrSessionExpired, err)
		}
		return nil, wrap(ErrSessionInvalid, err)
	}

	accountID, _ := claims.AccountID()
	e.metricInc(MetricSessionRefreshed)
	e.emitAudit(ctx, auditEventSessionRefreshed, true, accountID, "", newClaims.ID, nil, nil)

	return &IssuedSession{
		Token:  refreshed,
		Cookie: session.NewCookie(e.config.Session.CookieName, refreshed, newClaims.ExpiresAt.Time),
		Claims: newClaims,
	}, nil
}

// Logout clears the account's binding when token is its active session and
// always returns the expired session cookie. An unverifiable token is not
// an error: there is nothing to clear.
func (e *Engine) Logout(ctx context.Context, token string) (*http.Cookie, error) {
	cookie := session.ExpiredCookie(e.config.Session.CookieName)

	claims, err := e.jwtManager.Decode(token)
	if err != nil {
		return cookie, nil
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return cookie, nil
	}

	if err := e.bindings.ClearJTI(ctx, accountID, claims.ID); err != nil {
		return cookie, e.unavailable(ctx, "clear_jti", err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, accountID, "", claims.ID, nil, nil)
	return cookie, nil
}

/*
====================================
CSRF
====================================
*/

// GenerateCsrfPair builds a pair bound to sessionID (the session jti) and
// the two cookies that deliver it.
func (e *Engine) GenerateCsrfPair(sessionID string) (*CsrfCookies, error) {
	pair, err := e.csrfGuard.GeneratePair(sessionID)
	if err != nil {
		if errors.Is(err, csrf.ErrInvalidSession) {
			return nil, wrap(ErrValidation, err)
		}
		return nil, err
	}

	maxAge := int(e.config.CSRF.MaxAge / time.Second)
	e.metricInc(MetricCsrfIssued)

	return &CsrfCookies{
		SecureToken: pair.Secure,
		PublicToken: pair.Public,
		SecureCookie: &http.Cookie{
			Name:     e.config.CSRF.SecureCookieName,
			Value:    pair.Secure,
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		},
		PublicCookie: &http.Cookie{
			Name:     e.config.CSRF.PublicCookieName,
			Value:    pair.Public,
			Path:     "/",
			MaxAge:   maxAge,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		},
	}, nil
}

// ValidateCsrf checks the secure cookie against the token the client echoed
// and the session it belongs to.
func (e *Engine) ValidateCsrf(secureCookie, clientToken, sessionID string) error {
	return e.ValidateCsrfContext(context.Background(), secureCookie, clientToken, sessionID)
}

// ValidateCsrfContext is ValidateCsrf with request context for auditing.
func (e *Engine) ValidateCsrfContext(ctx context.Context, secureCookie, clientToken, sessionID string) error {
	err := e.csrfGuard.ValidatePair(secureCookie, clientToken, sessionID)
	if err == nil {
		return nil
	}

	var out error
	if errors.Is(err, csrf.ErrTokenMissing) {
		out = wrap(ErrCsrfMissing, err)
	} else {
		out = wrap(ErrCsrfInvalid, err)
	}

	e.metricInc(MetricCsrfRejected)
	e.emitAudit(ctx, auditEventCsrfRejected, false, 0, "", sessionID, out, func() map[string]string {
		return map[string]string{"reason": err.Error()}
	})
	return out
}

/*
====================================
THROTTLE
====================================
*/

// RecordLoginAttempt feeds one login outcome into the throttle. Success
// clears the counter and any lockout.
func (e *Engine) RecordLoginAttempt(ctx context.Context, email string, success bool) (LockoutState, error) {
	if success {
		if err := e.throttle.Reset(ctx, email); err != nil {
			return LockoutState{}, e.unavailable(ctx, "throttle_reset", err)
		}
		return lockoutState(limiters.StateUnlocked, 0), nil
	}

	count, err := e.throttle.RecordFailure(ctx, email)
	if err != nil {
		return LockoutState{}, e.unavailable(ctx, "throttle_record", err)
	}
	return lockoutState(e.stateForCount(count), count), nil
}

// LockoutState reports where email stands in the throttle.
func (e *Engine) LockoutState(ctx context.Context, email string) (LockoutState, error) {
	state, count, err := e.throttle.State(ctx, email)
	if err != nil {
		return LockoutState{}, e.unavailable(ctx, "throttle_state", err)
	}
	return lockoutState(state, count), nil
}

func (e *Engine) stateForCount(count int) limiters.State {
	switch {
	case count >= e.config.Throttle.LockoutThreshold:
		return limiters.StateLocked
	case count >= e.config.Throttle.CaptchaThreshold:
		return limiters.StateCaptchaRequired
	default:
		return limiters.StateUnlocked
	}
}

func lockoutState(state limiters.State, count int) LockoutState {
	out := LockoutState{FailedAttempts: count}
	switch state {
	case limiters.StateLocked:
		out.State = ThrottleLocked
		out.Locked = true
		out.CaptchaRequired = true
	case limiters.StateCaptchaRequired:
		out.State = ThrottleCaptchaRequired
		out.CaptchaRequired = true
	default:
		out.State = ThrottleUnlocked
	}
	return out
}

/*
====================================
ENCRYPTION AT REST
====================================
*/

// EncryptForStorage seals b with the documents key.
func (e *Engine) EncryptForStorage(b []byte) ([]byte, error) {
	blob, err := e.cipher.Encrypt(b)
	if err != nil {
		return nil, wrap(ErrCrypto, err)
	}
	return blob, nil
}

// DecryptFromStorage opens a blob produced by EncryptForStorage. Short,
// truncated or tampered blobs fail with ErrCrypto and no output.
func (e *Engine) DecryptFromStorage(blob []byte) ([]byte, error) {
	plaintext, err := e.cipher.Decrypt(blob)
	if err != nil {
		e.metricInc(MetricDecryptFailure)
		return nil, wrap(ErrCrypto, err)
	}
	return plaintext, nil
}
