package authcore

import (
	"time"

	"github.com/connectit/authcore/session"
)

// SecurityReport summarizes the effective security posture of an Engine.
// It holds no secrets and is safe to log at startup.
type SecurityReport struct {
	SigningAlgorithm       string
	KeyRotationActive      bool
	SessionTTL             time.Duration
	SessionMaxLifetime     time.Duration
	SessionBindingStore    string
	Argon2                 PasswordConfigReport
	PasswordUpgradeOnLogin bool
	CaptchaThreshold       int
	LockoutThreshold       int
	LockoutDuration        time.Duration
	RateLimitingActive     bool
	TOTPAttemptLimit       int
	CSRFMaxAge             time.Duration
	AuditEnabled           bool
	MetricsEnabled         bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	store := "database"
	if _, ok := e.bindings.(*session.Store); ok {
		store = "redis"
	}

	return SecurityReport{
		SigningAlgorithm:    "HS512",
		KeyRotationActive:   len(e.config.Session.PreviousSecrets) > 0,
		SessionTTL:          e.config.Session.TTL,
		SessionMaxLifetime:  e.config.Session.MaxLifetime,
		SessionBindingStore: store,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		PasswordUpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		CaptchaThreshold:       e.config.Throttle.CaptchaThreshold,
		LockoutThreshold:       e.config.Throttle.LockoutThreshold,
		LockoutDuration:        e.config.Throttle.LockoutDuration,
		RateLimitingActive:     e.rateLimiter != nil,
		TOTPAttemptLimit:       e.config.TOTP.MaxAttempts,
		CSRFMaxAge:             e.config.CSRF.MaxAge,
		AuditEnabled:           e.audit != nil,
		MetricsEnabled:         e.metrics.Enabled(),
	}
}
