package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultMaxAge bounds how long a pair stays valid.
	DefaultMaxAge = time.Hour
	// DefaultSecureCookieName carries the secure token (HttpOnly).
	DefaultSecureCookieName = "csrf_secure"
	// DefaultPublicCookieName carries the public token (script readable).
	DefaultPublicCookieName = "csrf_token"
	// DefaultHeaderName is where clients echo the public token.
	DefaultHeaderName = "X-CSRFToken"

	nonceBytes     = 32
	maxFutureSkew  = time.Minute
	minSecretBytes = 32
)

var (
	ErrTokenMissing    = errors.New("CSRF token missing")
	ErrTokenMalformed  = errors.New("CSRF token malformed")
	ErrTokenInvalid    = errors.New("CSRF token signature invalid")
	ErrTokenExpired    = errors.New("CSRF token expired")
	ErrSessionMismatch = errors.New("CSRF token bound to another session")
	ErrTokenMismatch   = errors.New("CSRF token mismatch")
	ErrInvalidSession  = errors.New("CSRF session id must be non-empty and must not contain '|'")
)

// Pair is a CSRF token pair. Secure stays in an HttpOnly cookie; Public is
// handed to the client, which echoes it in a header.
type Pair struct {
	Secure string
	Public string
}

// Config configures a Guard.
type Config struct {
	Secret []byte
	MaxAge time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Guard generates and validates CSRF pairs. Stateless and safe for
// concurrent use.
type Guard struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
	rand   io.Reader
}

// NewGuard validates cfg and returns a Guard.
func NewGuard(cfg Config) (*Guard, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, errors.New("csrf secret must be at least 32 bytes")
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxAge < 0 {
		return nil, errors.New("csrf max age must be > 0")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Guard{
		secret: append([]byte(nil), cfg.Secret...),
		maxAge: cfg.MaxAge,
		now:    cfg.Now,
		rand:   rand.Reader,
	}, nil
}

// GeneratePair builds a pair bound to sessionID.
//
// The secure token is base64("ts|sessionID|nonce|mac") where mac is the hex
// HMAC-SHA256 of "ts|sessionID|nonce". The public token is the hex
// HMAC-SHA256 of the secure token.
func (g *Guard) GeneratePair(sessionID string) (Pair, error) {
	if sessionID == "" || strings.Contains(sessionID, "|") {
		return Pair{}, ErrInvalidSession
	}

	nonce := make([]byte, nonceBytes)
	if _, err := io.ReadFull(g.rand, nonce); err != nil {
		return Pair{}, fmt.Errorf("csrf: nonce: %w", err)
	}

	payload := strconv.FormatInt(g.now().Unix(), 10) + "|" + sessionID + "|" + hex.EncodeToString(nonce)
	secure := base64.StdEncoding.EncodeToString([]byte(payload + "|" + g.mac(payload)))

	return Pair{Secure: secure, Public: g.mac(secure)}, nil
}

// ValidatePair checks that public is derived from secure, that secure was
// minted by this server within MaxAge, and that it is bound to sessionID.
func (g *Guard) ValidatePair(secure, public, sessionID string) error {
	if secure == "" || public == "" {
		return ErrTokenMissing
	}

	raw, err := base64.StdEncoding.DecodeString(secure)
	if err != nil {
		return ErrTokenMalformed
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 4 {
		return ErrTokenMalformed
	}

	payload := strings.Join(parts[:3], "|")
	if !equal(parts[3], g.mac(payload)) {
		return ErrTokenInvalid
	}

	issued, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ErrTokenMalformed
	}
	now := g.now()
	ts := time.Unix(issued, 0)
	if now.Sub(ts) > g.maxAge || ts.After(now.Add(maxFutureSkew)) {
		return ErrTokenExpired
	}

	if !equal(parts[1], sessionID) {
		return ErrSessionMismatch
	}
	if !equal(public, g.mac(secure)) {
		return ErrTokenMismatch
	}
	return nil
}

// Valid is ValidatePair reduced to a boolean.
func (g *Guard) Valid(secure, public, sessionID string) bool {
	return g.ValidatePair(secure, public, sessionID) == nil
}

func (g *Guard) mac(data string) string {
	h := hmac.New(sha256.New, g.secret)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
