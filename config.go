package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/connectit/authcore/captcha"
	"github.com/connectit/authcore/csrf"
	"github.com/connectit/authcore/internal/rate"
	"github.com/connectit/authcore/password"
	"github.com/connectit/authcore/session"
	"github.com/connectit/authcore/twofactor"
	"github.com/connectit/authcore/vault"
)

// Config holds every tunable of the Engine. Build it from DefaultConfig,
// fill in the secrets, and hand it to Builder.WithConfig. The Engine copies
// it at Build time.
type Config struct {
	Session   SessionConfig
	CSRF      CSRFConfig
	Throttle  ThrottleConfig
	RateLimit RateLimitConfig
	Captcha   CaptchaConfig
	TOTP      TOTPConfig
	Password  PasswordConfig
	Documents DocumentsConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session tokens and their cookie.
type SessionConfig struct {
	// Secret is the HS512 signing key. At least 32 bytes.
	Secret []byte
	// KeyID and PreviousSecrets support signing key rotation.
	KeyID           string
	PreviousSecrets map[string][]byte
	TTL             time.Duration
	// MaxLifetime caps a session measured from its first issue.
	MaxLifetime time.Duration
	Leeway      time.Duration
	Issuer      string
	CookieName  string
	// BindingPrefix namespaces the Redis binding store when used.
	BindingPrefix string
}

// CSRFConfig controls the CSRF pair.
type CSRFConfig struct {
	Secret           []byte
	MaxAge           time.Duration
	SecureCookieName string
	PublicCookieName string
	HeaderName       string
}

// ThrottleConfig controls per-email failed-login counting.
type ThrottleConfig struct {
	CaptchaThreshold int
	LockoutThreshold int
	FailureWindow    time.Duration
	LockoutDuration  time.Duration
}

// RateLimitConfig bounds request volume ahead of the login pipeline.
type RateLimitConfig struct {
	Enabled        bool
	LoginPerIP     int
	RegisterPerKey int
	Window         time.Duration
}

// CaptchaConfig configures the hCaptcha verifier built when no custom
// verifier is supplied.
type CaptchaConfig struct {
	Secret         string
	Endpoint       string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// TOTPConfig controls two-factor enrollment and verification.
type TOTPConfig struct {
	Issuer string
	Period time.Duration
	Skew   uint
	QRSize int
	// MaxAttempts and Cooldown bound guesses on enable/disable.
	MaxAttempts int
	Cooldown    time.Duration
}

// PasswordConfig holds argon2id parameters.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// DocumentsConfig holds the AES-256-GCM key for data at rest.
type DocumentsConfig struct {
	// Key is the raw 32-byte key. Use vault.DecodeKey for base64 input.
	Key []byte
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults with empty secrets. Build fails
// until Session.Secret, CSRF.Secret and Documents.Key are set.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			MaxLifetime:   24 * time.Hour,
			Leeway:        30 * time.Second,
			CookieName:    session.DefaultCookieName,
			BindingPrefix: "sb",
		},
		CSRF: CSRFConfig{
			MaxAge:           csrf.DefaultMaxAge,
			SecureCookieName: csrf.DefaultSecureCookieName,
			PublicCookieName: csrf.DefaultPublicCookieName,
			HeaderName:       csrf.DefaultHeaderName,
		},
		Throttle: ThrottleConfig{
			CaptchaThreshold: 3,
			LockoutThreshold: 5,
			FailureWindow:    time.Hour,
			LockoutDuration:  time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			LoginPerIP:     rate.DefaultConfig().Login.Limit,
			RegisterPerKey: rate.DefaultConfig().Register.Limit,
			Window:         time.Minute,
		},
		Captcha: CaptchaConfig{
			Endpoint:       captcha.DefaultEndpoint,
			ConnectTimeout: captcha.DefaultConnectTimeout,
			ReadTimeout:    captcha.DefaultReadTimeout,
		},
		TOTP: TOTPConfig{
			Issuer:      twofactor.DefaultIssuer,
			Period:      twofactor.DefaultPeriod,
			Skew:        twofactor.DefaultSkew,
			QRSize:      twofactor.DefaultQRSize,
			MaxAttempts: 5,
			Cooldown:    time.Minute,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			UpgradeOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func defaultConfig() Config { return DefaultConfig() }

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.Secret = cloneBytes(cfg.Session.Secret)
	out.CSRF.Secret = cloneBytes(cfg.CSRF.Secret)
	out.Documents.Key = cloneBytes(cfg.Documents.Key)
	if cfg.Session.PreviousSecrets != nil {
		out.Session.PreviousSecrets = make(map[string][]byte, len(cfg.Session.PreviousSecrets))
		for kid, key := range cfg.Session.PreviousSecrets {
			out.Session.PreviousSecrets[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cfg for missing secrets and inconsistent thresholds.
func (c *Config) Validate() error {
	// Session
	if len(c.Session.Secret) < 32 {
		return errors.New("Session Secret must be at least 32 bytes")
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.MaxLifetime <= 0 {
		return errors.New("Session MaxLifetime must be > 0")
	}
	if c.Session.Leeway < 0 || c.Session.Leeway > 2*time.Minute {
		return errors.New("Session Leeway must be within [0, 2m]")
	}
	if c.Session.CookieName == "" {
		return errors.New("Session CookieName must not be empty")
	}

	// CSRF
	if len(c.CSRF.Secret) < 32 {
		return errors.New("CSRF Secret must be at least 32 bytes")
	}
	if c.CSRF.MaxAge <= 0 {
		return errors.New("CSRF MaxAge must be > 0")
	}
	if c.CSRF.SecureCookieName == "" || c.CSRF.PublicCookieName == "" || c.CSRF.HeaderName == "" {
		return errors.New("CSRF cookie and header names must not be empty")
	}
	if c.CSRF.SecureCookieName == c.CSRF.PublicCookieName {
		return errors.New("CSRF secure and public cookie names must differ")
	}

	// Throttle
	if c.Throttle.CaptchaThreshold <= 0 {
		return errors.New("Throttle CaptchaThreshold must be > 0")
	}
	if c.Throttle.LockoutThreshold < c.Throttle.CaptchaThreshold {
		return errors.New("Throttle LockoutThreshold must be >= CaptchaThreshold")
	}
	if c.Throttle.FailureWindow <= 0 || c.Throttle.LockoutDuration <= 0 {
		return errors.New("Throttle FailureWindow and LockoutDuration must be > 0")
	}

	if c.RateLimit.Enabled && (c.RateLimit.LoginPerIP <= 0 || c.RateLimit.RegisterPerKey <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("RateLimit limits and Window must be > 0 when enabled")
	}

	// Captcha
	if c.Captcha.ConnectTimeout <= 0 || c.Captcha.ReadTimeout <= 0 {
		return errors.New("Captcha timeouts must be > 0")
	}

	// TOTP
	if c.TOTP.Period < time.Second {
		return errors.New("TOTP Period must be >= 1s")
	}
	if c.TOTP.Skew > 2 {
		return errors.New("TOTP Skew must be <= 2")
	}
	if c.TOTP.MaxAttempts <= 0 || c.TOTP.Cooldown <= 0 {
		return errors.New("TOTP MaxAttempts and Cooldown must be > 0")
	}

	// Documents
	if len(c.Documents.Key) != vault.KeySize {
		return fmt.Errorf("Documents Key must be %d bytes", vault.KeySize)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
