package authcore

import (
	"errors"
	"net/http"
)

// ErrorKind classifies every failure surfaced by the Engine.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindAuthentication
	KindSessionInvalid
	KindCsrf
	KindLockout
	KindCaptcha
	KindTwoFactor
	KindCrypto
	// KindUnavailable marks a backing store or remote dependency outage. The
	// request is always denied.
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindSessionInvalid:
		return "session_invalid"
	case KindCsrf:
		return "csrf"
	case KindLockout:
		return "lockout"
	case KindCaptcha:
		return "captcha"
	case KindTwoFactor:
		return "two_factor"
	case KindCrypto:
		return "crypto"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by Engine operations. Two Errors match
// under errors.Is when kind and reason agree, so sentinels below can be
// compared against wrapped results.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
	// Fields carries per-field messages for validation failures.
	Fields map[string]string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

func newError(kind ErrorKind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// wrap returns a copy of sentinel carrying cause.
func wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Reason: sentinel.Reason, Err: cause}
}

var (
	ErrValidation = newError(KindValidation, "invalid input")
	ErrEmailTaken = newError(KindValidation, "email already registered")

	ErrInvalidCredentials = newError(KindAuthentication, "invalid credentials")
	ErrAccountDisabled    = newError(KindAuthentication, "account disabled")

	ErrSessionExpired    = newError(KindSessionInvalid, "session expired")
	ErrSessionInvalid    = newError(KindSessionInvalid, "invalid session")
	ErrSessionSuperseded = newError(KindSessionInvalid, "session superseded")

	ErrCsrfMissing = newError(KindCsrf, "missing token")
	ErrCsrfInvalid = newError(KindCsrf, "validation failed")

	ErrAccountLocked = newError(KindLockout, "account locked")
	ErrRateLimited   = newError(KindLockout, "too many requests")

	ErrCaptchaRequired = newError(KindCaptcha, "captcha required")
	ErrCaptchaFailed   = newError(KindCaptcha, "captcha failed")

	ErrTwoFactorRequired      = newError(KindTwoFactor, "two-factor code required")
	ErrTwoFactorMissingSecret = newError(KindTwoFactor, "two-factor not configured")
	ErrTwoFactorInvalidFormat = newError(KindTwoFactor, "invalid code format")
	ErrTwoFactorDecryption    = newError(KindTwoFactor, "two-factor secret unreadable")
	ErrTwoFactorInvalidCode   = newError(KindTwoFactor, "invalid two-factor code")
	ErrTwoFactorRateLimited   = newError(KindTwoFactor, "too many two-factor attempts")

	ErrCrypto = newError(KindCrypto, "decryption failed")

	ErrBackendUnavailable = newError(KindUnavailable, "backend unavailable")
)

// ErrAccountNotFound is returned by AccountRepository lookups that miss.
// The Engine never surfaces it to callers.
var ErrAccountNotFound = errors.New("account not found")

// ErrAccountExists is returned by AccountRepository.CreateAccount on a
// duplicate email.
var ErrAccountExists = errors.New("account already exists")

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps err to a response status. Unknown errors are 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication, KindSessionInvalid, KindTwoFactor:
		return http.StatusUnauthorized
	case KindCsrf:
		return http.StatusForbidden
	case KindLockout:
		if errors.Is(err, ErrRateLimited) {
			return http.StatusTooManyRequests
		}
		return http.StatusLocked
	case KindCaptcha:
		return http.StatusPreconditionRequired
	case KindCrypto:
		return http.StatusUnprocessableEntity
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
