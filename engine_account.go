package authcore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/connectit/authcore/internal/limiters"
	"github.com/connectit/authcore/internal/rate"
	"github.com/connectit/authcore/password"
	"github.com/google/uuid"
)

// Register creates an account with an argon2id password hash. A taken
// email fails with ErrEmailTaken.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*AccountSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	email := limiters.NormalizeEmail(req.Email)
	if e.rateLimiter != nil {
		if err := e.rateLimiter.AllowRegister(ctx, email, clientIPFromContext(ctx)); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				return nil, wrap(ErrRateLimited, err)
			}
			return nil, e.unavailable(ctx, "rate_limit", err)
		}
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, hashError(err)
	}

	role := req.Role
	if role == "" {
		role = RoleUser
	}

	account, err := e.accounts.CreateAccount(ctx, NewAccount{
		Name:         req.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.emitAudit(ctx, auditEventAccountDuplicate, false, 0, email, "", ErrEmailTaken, nil)
			return nil, wrap(ErrEmailTaken, err)
		}
		return nil, e.unavailable(ctx, "create_account", err)
	}

	e.metricInc(MetricAccountRegistered)
	e.emitAudit(ctx, auditEventAccountRegistered, true, account.AccountID, email, "", nil, func() map[string]string {
		return map[string]string{"role": string(role)}
	})

	summary := account.Summary()
	return &summary, nil
}

// ChangePassword replaces the password after checking the current one and
// ends every session of the account, including the caller's.
func (e *Engine) ChangePassword(ctx context.Context, accountID int64, current, next string) error {
	if err := (passwordChange{Current: current, Next: next}).Validate(); err != nil {
		return validationError(err)
	}

	account, err := e.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.hasher.DummyVerify(current)
			return ErrInvalidCredentials
		}
		return e.unavailable(ctx, "get_account_by_id", err)
	}
	if account.IsDisabled {
		return ErrAccountDisabled
	}
	if !e.hasher.Verify(current, account.PasswordHash) {
		e.emitAudit(ctx, auditEventPasswordChangeFail, false, accountID, account.Email, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(next)
	if err != nil {
		return hashError(err)
	}

	// Sessions end before the hash is written. The fresh jti is carried by
	// no token, so it also supersedes a session issued during this call.
	if err := e.bindings.BindJTI(ctx, accountID, uuid.NewString()); err != nil {
		return e.unavailable(ctx, "rotate_jti", err)
	}
	if err := e.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		e.logger.WarnContext(ctx, "password hash write failed after sessions were ended",
			slog.Int64("account_id", accountID), slog.Any("error", err))
		return e.unavailable(ctx, "update_password_hash", err)
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChanged, true, accountID, account.Email, "", nil, nil)
	return nil
}

func hashError(err error) error {
	if errors.Is(err, password.ErrEmptyPassword) || errors.Is(err, password.ErrPasswordTooLong) {
		return wrap(ErrValidation, err)
	}
	return err
}
