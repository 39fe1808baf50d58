package authcore

import (
	"context"
	"net/http"
	"time"

	"github.com/connectit/authcore/jwt"
)

// Role is the account role embedded in session tokens.
type Role string

const (
	RoleUser    Role = "User"
	RoleCompany Role = "Company"
	RoleAdmin   Role = "Admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleCompany, RoleAdmin:
		return true
	}
	return false
}

// Account is the persisted account record as seen by the Engine.
type Account struct {
	AccountID     int64
	Name          string
	Email         string
	PasswordHash  string
	ProfilePicURL *string
	Role          Role
	UserID        *int64
	CompanyID     *int64
	Verified      *bool
	IsDisabled    bool
	TwoFAEnabled  bool
	// TwoFASecret is the sealed TOTP secret (base64 blob), empty when unset.
	TwoFASecret string
	// CurrentJTI is the ActiveSessionBinding; empty when logged out.
	CurrentJTI string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Summary strips credential material from a.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		AccountID:     a.AccountID,
		Name:          a.Name,
		Email:         a.Email,
		Role:          a.Role,
		ProfilePicURL: a.ProfilePicURL,
		UserID:        a.UserID,
		CompanyID:     a.CompanyID,
		Verified:      a.Verified,
		TwoFAEnabled:  a.TwoFAEnabled,
	}
}

// AccountSummary is the credential-free view returned after authentication.
type AccountSummary struct {
	AccountID     int64   `json:"accountId"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Role          Role    `json:"role"`
	ProfilePicURL *string `json:"profilePicUrl"`
	UserID        *int64  `json:"userId"`
	CompanyID     *int64  `json:"companyId"`
	Verified      *bool   `json:"verified"`
	TwoFAEnabled  bool    `json:"twoFaEnabled"`
}

func (s AccountSummary) subject() jwt.Subject {
	return jwt.Subject{
		AccountID:     s.AccountID,
		Role:          string(s.Role),
		Name:          s.Name,
		ProfilePicURL: s.ProfilePicURL,
		UserID:        s.UserID,
		CompanyID:     s.CompanyID,
		Verified:      s.Verified,
	}
}

// NewAccount is the input to AccountRepository.CreateAccount.
type NewAccount struct {
	Name         string
	Email        string
	PasswordHash string
	Role         Role
}

// SessionBindings stores the ActiveSessionBinding of each account.
type SessionBindings interface {
	BindJTI(ctx context.Context, accountID int64, jti string) error
	CurrentJTI(ctx context.Context, accountID int64) (string, error)
	// ClearJTI removes the binding only if it still equals jti.
	ClearJTI(ctx context.Context, accountID int64, jti string) error
}

// AccountRepository is the Engine's view of the account store. Lookups that
// miss return ErrAccountNotFound.
type AccountRepository interface {
	SessionBindings
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByID(ctx context.Context, accountID int64) (*Account, error)
	CreateAccount(ctx context.Context, in NewAccount) (*Account, error)
	UpdatePasswordHash(ctx context.Context, accountID int64, hash string) error
	SetTwoFactor(ctx context.Context, accountID int64, enabled bool, sealedSecret string) error
}

// ThrottleState is the position of an email in the login throttle.
type ThrottleState uint8

const (
	ThrottleUnlocked ThrottleState = iota
	ThrottleCaptchaRequired
	ThrottleLocked
)

func (s ThrottleState) String() string {
	switch s {
	case ThrottleUnlocked:
		return "unlocked"
	case ThrottleCaptchaRequired:
		return "captcha_required"
	case ThrottleLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// LockoutState is the login throttle state for one email.
type LockoutState struct {
	State           ThrottleState
	FailedAttempts  int
	CaptchaRequired bool
	Locked          bool
}

// IssuedSession is a freshly signed session and the cookie carrying it.
type IssuedSession struct {
	Token  string
	Cookie *http.Cookie
	Claims *jwt.SessionClaims
}

// CsrfCookies is a CSRF pair and the two cookies that deliver it.
type CsrfCookies struct {
	SecureToken  string
	PublicToken  string
	SecureCookie *http.Cookie
	PublicCookie *http.Cookie
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Account AccountSummary
	Session *IssuedSession
	Csrf    *CsrfCookies
}
