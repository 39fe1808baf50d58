package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/connectit/authcore"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

// DBTX is the subset of database/sql used by Repository. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository is the Postgres implementation of authcore.AccountRepository.
// The active session binding lives in the current_jti column.
type Repository struct {
	db DBTX
}

var _ authcore.AccountRepository = (*Repository)(nil)

func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// Open connects through the pgx stdlib driver and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

const selectAccount = `SELECT id, name, email, password_hash, profile_pic_url, role, user_id, company_id,
        verified, is_disabled, two_fa_enabled, two_fa_secret, current_jti, created_at, updated_at
   FROM accounts`

func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	return r.getOne(ctx, selectAccount+` WHERE lower(email) = lower($1)`, email)
}

func (r *Repository) GetAccountByID(ctx context.Context, accountID int64) (*authcore.Account, error) {
	return r.getOne(ctx, selectAccount+` WHERE id = $1`, accountID)
}

func (r *Repository) getOne(ctx context.Context, query string, arg any) (*authcore.Account, error) {
	var (
		a          authcore.Account
		role       string
		profilePic sql.NullString
		userID     sql.NullInt64
		companyID  sql.NullInt64
		verified   sql.NullBool
		secret     sql.NullString
		jti        sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&a.AccountID, &a.Name, &a.Email, &a.PasswordHash, &profilePic, &role, &userID, &companyID,
		&verified, &a.IsDisabled, &a.TwoFAEnabled, &secret, &jti, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrAccountNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	a.Role = authcore.Role(role)
	if profilePic.Valid {
		a.ProfilePicURL = &profilePic.String
	}
	if userID.Valid {
		a.UserID = &userID.Int64
	}
	if companyID.Valid {
		a.CompanyID = &companyID.Int64
	}
	if verified.Valid {
		a.Verified = &verified.Bool
	}
	a.TwoFASecret = secret.String
	a.CurrentJTI = jti.String

	return &a, nil
}

// CreateAccount inserts a new account. A duplicate email maps to
// authcore.ErrAccountExists.
func (r *Repository) CreateAccount(ctx context.Context, in authcore.NewAccount) (*authcore.Account, error) {
	query :=
		`INSERT INTO accounts (name, email, password_hash, role)
         VALUES ($1, $2, $3, $4)
         RETURNING id, created_at, updated_at`

	a := &authcore.Account{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
	}
	err := r.db.QueryRowContext(ctx, query, in.Name, in.Email, in.PasswordHash, string(in.Role)).
		Scan(&a.AccountID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, authcore.ErrAccountExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, accountID int64, hash string) error {
	return r.execOne(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`,
		accountID, hash)
}

// SetTwoFactor stores the sealed secret; an empty secret is stored as NULL.
func (r *Repository) SetTwoFactor(ctx context.Context, accountID int64, enabled bool, sealedSecret string) error {
	var secret sql.NullString
	if sealedSecret != "" {
		secret = sql.NullString{String: sealedSecret, Valid: true}
	}
	return r.execOne(ctx,
		`UPDATE accounts SET two_fa_enabled = $2, two_fa_secret = $3, updated_at = now() WHERE id = $1`,
		accountID, enabled, secret)
}

// BindJTI replaces the account's active session id.
func (r *Repository) BindJTI(ctx context.Context, accountID int64, jti string) error {
	return r.execOne(ctx,
		`UPDATE accounts SET current_jti = $2 WHERE id = $1`,
		accountID, jti)
}

// CurrentJTI returns the active session id, "" when logged out.
func (r *Repository) CurrentJTI(ctx context.Context, accountID int64) (string, error) {
	var jti sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT current_jti FROM accounts WHERE id = $1`, accountID).Scan(&jti)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", authcore.ErrAccountNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return jti.String, nil
}

// ClearJTI clears the binding only while it still equals jti, so logging
// out an old token cannot end a newer session.
func (r *Repository) ClearJTI(ctx context.Context, accountID int64, jti string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET current_jti = NULL WHERE id = $1 AND current_jti = $2`,
		accountID, jti)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *Repository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}
