package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginLocked        = "login_locked"
	auditEventLoginRateLimited   = "login_rate_limited"
	auditEventCaptchaRequired    = "captcha_required"
	auditEventCaptchaFailed      = "captcha_failed"
	auditEventSessionIssued      = "session_issued"
	auditEventSessionSuperseded  = "session_superseded"
	auditEventSessionRefreshed   = "session_refreshed"
	auditEventLogout             = "logout"
	auditEventCsrfRejected       = "csrf_rejected"
	auditEventTwoFactorEnrolled  = "two_factor_enrolled"
	auditEventTwoFactorEnabled   = "two_factor_enabled"
	auditEventTwoFactorDisabled  = "two_factor_disabled"
	auditEventTwoFactorFailure   = "two_factor_failure"
	auditEventPasswordChanged    = "password_changed"
	auditEventPasswordChangeFail = "password_change_failure"
	auditEventDocumentStored     = "document_stored"
	auditEventAccountRegistered  = "account_registered"
	auditEventAccountDuplicate   = "account_registration_duplicate"
)

// AuditErrorCode is the stable error label attached to failed audit events.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrCaptchaRequired    AuditErrorCode = "captcha_required"
	auditErrCaptchaFailed      AuditErrorCode = "captcha_failed"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrSessionInvalid     AuditErrorCode = "session_invalid"
	auditErrSessionSuperseded  AuditErrorCode = "session_superseded"
	auditErrCsrfMissing        AuditErrorCode = "csrf_missing"
	auditErrCsrfInvalid        AuditErrorCode = "csrf_invalid"
	auditErrTOTPRequired       AuditErrorCode = "totp_required"
	auditErrTOTPInvalid        AuditErrorCode = "totp_invalid"
	auditErrTOTPRateLimited    AuditErrorCode = "totp_rate_limited"
	auditErrTOTPUnavailable    AuditErrorCode = "totp_unavailable"
	auditErrCrypto             AuditErrorCode = "crypto"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID int64,
	email string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		Email:     email,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrCaptchaRequired):
		return auditErrCaptchaRequired
	case errors.Is(err, ErrCaptchaFailed):
		return auditErrCaptchaFailed
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrSessionSuperseded):
		return auditErrSessionSuperseded
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrCsrfMissing):
		return auditErrCsrfMissing
	case errors.Is(err, ErrCsrfInvalid):
		return auditErrCsrfInvalid
	case errors.Is(err, ErrTwoFactorRequired):
		return auditErrTOTPRequired
	case errors.Is(err, ErrTwoFactorInvalidCode),
		errors.Is(err, ErrTwoFactorInvalidFormat),
		errors.Is(err, ErrTwoFactorMissingSecret):
		return auditErrTOTPInvalid
	case errors.Is(err, ErrTwoFactorRateLimited):
		return auditErrTOTPRateLimited
	case errors.Is(err, ErrTwoFactorDecryption):
		return auditErrTOTPUnavailable
	case errors.Is(err, ErrCrypto):
		return auditErrCrypto
	case errors.Is(err, ErrEmailTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
