package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretBytes = 32

var (
	// ErrInvalidToken covers bad signatures, wrong algorithms and malformed claims.
	ErrInvalidToken = errors.New("jwt: invalid token")
	// ErrExpiredToken is returned when exp has passed or the absolute session
	// lifetime measured from origIat is exceeded.
	ErrExpiredToken = errors.New("jwt: token expired")
)

// Config controls session token issuance and verification.
type Config struct {
	// Secret is the HS512 signing key for new tokens.
	Secret []byte
	// TTL is the lifetime of one token; refresh restarts it.
	TTL time.Duration
	// MaxLifetime caps how long a session may live from its first issue,
	// regardless of refreshes.
	MaxLifetime time.Duration
	Issuer      string
	Leeway      time.Duration
	// MaxFutureIAT bounds clock skew tolerated on iat and origIat.
	MaxFutureIAT time.Duration
	// KeyID is stamped into the kid header when set. VerifyKeys holds
	// additional secrets accepted during rotation, keyed by kid.
	KeyID      string
	VerifyKeys map[string][]byte
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Subject is the account snapshot embedded in a session token.
type Subject struct {
	AccountID     int64   `json:"accountId"`
	Role          string  `json:"role"`
	Name          string  `json:"name"`
	ProfilePicURL *string `json:"profilePicUrl"`
	UserID        *int64  `json:"userId"`
	CompanyID     *int64  `json:"companyId"`
	Verified      *bool   `json:"verified"`
}

// IssueOptions carries the values preserved across refreshes. Zero values
// start a new session.
type IssueOptions struct {
	OrigIssuedAt time.Time
	JTI          string
}

// SessionClaims is the signed payload of a session token. Optional profile
// fields encode as null when unset.
type SessionClaims struct {
	Role          string           `json:"role"`
	Name          string           `json:"name"`
	ProfilePicURL *string          `json:"profilePicUrl"`
	UserID        *int64           `json:"userId"`
	CompanyID     *int64           `json:"companyId"`
	Verified      *bool            `json:"verified"`
	OrigIssuedAt  *jwt.NumericDate `json:"origIat"`
	jwt.RegisteredClaims
}

// AccountID parses the subject claim.
func (c *SessionClaims) AccountID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: subject is not an account id", ErrInvalidToken)
	}
	return id, nil
}

// SubjectInfo rebuilds the account snapshot carried by the claims.
func (c *SessionClaims) SubjectInfo() Subject {
	id, _ := c.AccountID()
	return Subject{
		AccountID:     id,
		Role:          c.Role,
		Name:          c.Name,
		ProfilePicURL: c.ProfilePicURL,
		UserID:        c.UserID,
		CompanyID:     c.CompanyID,
		Verified:      c.Verified,
	}
}

// Manager issues and verifies HS512 session tokens. Safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.MaxLifetime <= 0 {
		return nil, errors.New("invalid max lifetime configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) < minSecretBytes {
			return nil, fmt.Errorf("verify key for kid %q must be at least 32 bytes", kid)
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// TTL reports the per-token lifetime.
func (m *Manager) TTL() time.Duration { return m.config.TTL }

// Issue signs a token for subject. A zero OrigIssuedAt starts the absolute
// lifetime clock now; an empty JTI draws a fresh UUIDv4.
func (m *Manager) Issue(subject Subject, opts IssueOptions) (string, *SessionClaims, error) {
	if subject.AccountID <= 0 {
		return "", nil, errors.New("jwt: subject account id is required")
	}

	now := m.config.Now()
	orig := opts.OrigIssuedAt
	if orig.IsZero() {
		orig = now
	}
	jti := opts.JTI
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := &SessionClaims{
		Role:          subject.Role,
		Name:          subject.Name,
		ProfilePicURL: subject.ProfilePicURL,
		UserID:        subject.UserID,
		CompanyID:     subject.CompanyID,
		Verified:      subject.Verified,
		OrigIssuedAt:  jwt.NewNumericDate(orig),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subject.AccountID, 10),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Decode verifies tokenStr and returns its claims. It fails with
// ErrExpiredToken once exp has passed or once more than MaxLifetime has
// elapsed since origIat, and with ErrInvalidToken for everything else.
func (m *Manager) Decode(tokenStr string) (*SessionClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &SessionClaims{}, m.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, err
	}
	if claims.OrigIssuedAt == nil {
		return nil, fmt.Errorf("%w: missing origIat", ErrInvalidToken)
	}

	now := m.config.Now()
	orig := claims.OrigIssuedAt.Time
	if orig.After(now.Add(m.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: origIat in the future", ErrInvalidToken)
	}
	if now.Sub(orig) > m.config.MaxLifetime {
		return nil, ErrExpiredToken
	}

	return claims, nil
}

// Refresh verifies tokenStr and re-issues it with a new expiry. origIat and
// jti carry over, so the session binding and the absolute lifetime cap are
// unaffected.
func (m *Manager) Refresh(tokenStr string) (string, *SessionClaims, error) {
	claims, err := m.Decode(tokenStr)
	if err != nil {
		return "", nil, err
	}

	return m.Issue(claims.SubjectInfo(), IssueOptions{
		OrigIssuedAt: claims.OrigIssuedAt.Time,
		JTI:          claims.ID,
	})
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	kid, _ := t.Header["kid"].(string)
	if kid == "" || kid == m.config.KeyID {
		return m.config.Secret, nil
	}
	if key, ok := m.config.VerifyKeys[kid]; ok {
		return key, nil
	}
	return nil, errors.New("unknown kid")
}
