package authcore

import (
	"context"
	"errors"

	"github.com/connectit/authcore/internal/limiters"
	"github.com/connectit/authcore/twofactor"
)

// EnrollTwoFactor creates a secret for email and returns its QR code and
// sealed form. Nothing is persisted until ConfirmTwoFactor succeeds.
func (e *Engine) EnrollTwoFactor(ctx context.Context, email string) (*twofactor.Enrollment, error) {
	email = limiters.NormalizeEmail(email)
	enrollment, err := e.twoFactor.Enroll(email)
	if err != nil {
		if errors.Is(err, twofactor.ErrInvalidIdentity) {
			return nil, wrap(ErrValidation, err)
		}
		return nil, wrap(ErrCrypto, err)
	}

	e.metricInc(MetricTOTPEnrolled)
	e.emitAudit(ctx, auditEventTwoFactorEnrolled, true, 0, email, "", nil, nil)
	return enrollment, nil
}

// VerifyTwoFactor checks code against a sealed secret. A wrong code is
// (false, nil); a malformed code or an unreadable secret is an error.
func (e *Engine) VerifyTwoFactor(code, encryptedSecret string) (bool, error) {
	ok, err := e.twoFactor.Verify(code, encryptedSecret)
	if err != nil {
		return false, twoFactorError(err)
	}
	return ok, nil
}

// ConfirmTwoFactor enables two-factor for the account once code matches the
// secret handed out by EnrollTwoFactor.
func (e *Engine) ConfirmTwoFactor(ctx context.Context, accountID int64, code, encryptedSecret string) error {
	if err := e.verifyManagedCode(ctx, accountID, code, encryptedSecret); err != nil {
		return err
	}
	if err := e.accounts.SetTwoFactor(ctx, accountID, true, encryptedSecret); err != nil {
		return e.unavailable(ctx, "set_two_factor", err)
	}

	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, accountID, "", "", nil, nil)
	return nil
}

// DisableTwoFactor turns two-factor off after one last valid code.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID int64, code string) error {
	account, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrTwoFactorMissingSecret
		}
		return e.unavailable(ctx, "get_account_by_id", err)
	}
	if !account.TwoFAEnabled || account.TwoFASecret == "" {
		return ErrTwoFactorMissingSecret
	}

	if err := e.verifyManagedCode(ctx, accountID, code, account.TwoFASecret); err != nil {
		return err
	}
	if err := e.accounts.SetTwoFactor(ctx, accountID, false, ""); err != nil {
		return e.unavailable(ctx, "set_two_factor", err)
	}

	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, accountID, account.Email, "", nil, nil)
	return nil
}

// verifyManagedCode checks a code outside the login flow, where the
// per-account TOTP limiter bounds guessing instead of the login throttle.
func (e *Engine) verifyManagedCode(ctx context.Context, accountID int64, code, encryptedSecret string) error {
	if err := e.totpLimiter.Check(ctx, accountID); err != nil {
		return e.totpLimiterError(ctx, err)
	}

	ok, err := e.twoFactor.Verify(code, encryptedSecret)
	if err != nil {
		return twoFactorError(err)
	}
	if !ok {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, accountID, "", "", ErrTwoFactorInvalidCode, nil)
		if err := e.totpLimiter.RecordFailure(ctx, accountID); err != nil {
			return e.totpLimiterError(ctx, err)
		}
		return ErrTwoFactorInvalidCode
	}

	e.metricInc(MetricTOTPSuccess)
	if err := e.totpLimiter.Reset(ctx, accountID); err != nil {
		return e.totpLimiterError(ctx, err)
	}
	return nil
}

func (e *Engine) totpLimiterError(ctx context.Context, err error) error {
	if errors.Is(err, limiters.ErrTOTPRateLimited) {
		return wrap(ErrTwoFactorRateLimited, err)
	}
	return e.unavailable(ctx, "totp_limiter", err)
}
