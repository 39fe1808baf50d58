package authcore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/connectit/authcore/internal/limiters"
	"github.com/connectit/authcore/internal/rate"
	"github.com/connectit/authcore/twofactor"
)

// Login runs the full sign-in pipeline:
//
//  1. request validation and the per-IP request budget
//  2. lockout flag (the account store is not consulted while locked)
//  3. CAPTCHA once the email reached the CAPTCHA threshold
//  4. password, account status and two-factor code
//  5. throttle reset, session issue and CSRF pair
//
// Every failure after step 2 that a guesser controls counts toward the
// lockout. The session is bound only after every check passed.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := req.Validate(); err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, validationError(err)
	}

	email := limiters.NormalizeEmail(req.Email)
	ip := clientIPFromContext(ctx)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.AllowLogin(ctx, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, 0, email, "", ErrRateLimited, nil)
				return nil, wrap(ErrRateLimited, err)
			}
			return nil, e.unavailable(ctx, "rate_limit", err)
		}
	}

	state, _, err := e.throttle.State(ctx, email)
	if err != nil {
		return nil, e.unavailable(ctx, "throttle_state", err)
	}
	switch state {
	case limiters.StateLocked:
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, 0, email, "", ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	case limiters.StateCaptchaRequired:
		if err := e.checkCaptcha(ctx, email, req.CaptchaToken, ip); err != nil {
			return nil, err
		}
	}

	account, err := e.verifyCredentials(ctx, email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, e.loginFailure(ctx, email, 0, "invalid_credentials", err)
		}
		return nil, err
	}
	if account.IsDisabled {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.AccountID, email, "", ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	if account.TwoFAEnabled {
		if err := e.checkLoginTOTP(ctx, account, email, req.TOTPCode); err != nil {
			return nil, err
		}
	}

	if err := e.throttle.Reset(ctx, email); err != nil {
		e.logger.WarnContext(ctx, "login throttle reset failed",
			slog.Int64("account_id", account.AccountID), slog.Any("error", err))
	}

	e.upgradePasswordHash(ctx, account, req.Password)

	summary := account.Summary()
	issued, err := e.IssueSession(ctx, summary)
	if err != nil {
		return nil, err
	}

	pair, err := e.GenerateCsrfPair(issued.Claims.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.AccountID, email, issued.Claims.ID, nil, nil)

	return &LoginResult{
		Account: summary,
		Session: issued,
		Csrf:    pair,
	}, nil
}

// checkCaptcha runs once the failure count reached the CAPTCHA threshold.
// A missing token is not counted; a rejected one is.
func (e *Engine) checkCaptcha(ctx context.Context, email, token, ip string) error {
	if token == "" {
		e.metricInc(MetricCaptchaRequired)
		e.emitAudit(ctx, auditEventCaptchaRequired, false, 0, email, "", ErrCaptchaRequired, nil)
		return ErrCaptchaRequired
	}

	ok, verr := e.captcha.Verify(ctx, token, ip)
	if ok && verr == nil {
		return nil
	}

	if verr != nil {
		e.logger.WarnContext(ctx, "captcha verification failed", slog.Any("error", verr))
	}
	e.metricInc(MetricCaptchaFailure)
	e.emitAudit(ctx, auditEventCaptchaFailed, false, 0, email, "", ErrCaptchaFailed, nil)

	failure := ErrCaptchaFailed
	if verr != nil {
		failure = wrap(ErrCaptchaFailed, verr)
	}
	return e.loginFailure(ctx, email, 0, "captcha", failure)
}

func (e *Engine) checkLoginTOTP(ctx context.Context, account *Account, email, code string) error {
	if code == "" {
		e.metricInc(MetricTOTPRequired)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.AccountID, email, "", ErrTwoFactorRequired, nil)
		return ErrTwoFactorRequired
	}

	ok, err := e.twoFactor.Verify(code, account.TwoFASecret)
	if err != nil {
		mapped := twoFactorError(err)
		if errors.Is(mapped, ErrTwoFactorInvalidFormat) {
			e.metricInc(MetricTOTPFailure)
			return e.loginFailure(ctx, email, account.AccountID, "totp_format", mapped)
		}
		e.logger.ErrorContext(ctx, "two-factor secret unusable",
			slog.Int64("account_id", account.AccountID), slog.Any("error", err))
		return mapped
	}
	if !ok {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, account.AccountID, email, "", ErrTwoFactorInvalidCode, nil)
		return e.loginFailure(ctx, email, account.AccountID, "totp_invalid", ErrTwoFactorInvalidCode)
	}

	e.metricInc(MetricTOTPSuccess)
	return nil
}

// loginFailure counts one failure for email and returns cause, or
// ErrAccountLocked when this failure reached the lockout threshold.
func (e *Engine) loginFailure(ctx context.Context, email string, accountID int64, reason string, cause error) error {
	count, err := e.throttle.RecordFailure(ctx, email)
	if err != nil {
		return e.unavailable(ctx, "throttle_record", err)
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, accountID, email, "", cause, func() map[string]string {
		return map[string]string{"reason": reason}
	})

	if count >= e.config.Throttle.LockoutThreshold {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, accountID, email, "", ErrAccountLocked, nil)
		return ErrAccountLocked
	}
	return cause
}

func twoFactorError(err error) error {
	switch {
	case errors.Is(err, twofactor.ErrMissingSecret):
		return wrap(ErrTwoFactorMissingSecret, err)
	case errors.Is(err, twofactor.ErrInvalidFormat):
		return wrap(ErrTwoFactorInvalidFormat, err)
	case errors.Is(err, twofactor.ErrDecryptionFailed):
		return wrap(ErrTwoFactorDecryption, err)
	default:
		return wrap(ErrTwoFactorDecryption, err)
	}
}
