package authcore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/connectit/authcore/captcha"
	"github.com/connectit/authcore/csrf"
	"github.com/connectit/authcore/internal/limiters"
	"github.com/connectit/authcore/internal/rate"
	"github.com/connectit/authcore/jwt"
	"github.com/connectit/authcore/password"
	"github.com/connectit/authcore/twofactor"
	"github.com/connectit/authcore/vault"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Every component is constructed once, in
// Build, and a Builder can only be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountRepository
	bindings  SessionBindings
	captcha   captcha.Verifier
	documents vault.Backend
	logger    *slog.Logger
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the login throttle, the request
// budgets and the two-factor attempt limiter. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccounts sets the account repository. Required. Unless
// WithSessionBindings is also used, the repository stores the active
// session binding too.
func (b *Builder) WithAccounts(repo AccountRepository) *Builder {
	b.accounts = repo
	return b
}

// WithSessionBindings moves the active session binding out of the account
// repository, typically to a session.Store.
func (b *Builder) WithSessionBindings(bindings SessionBindings) *Builder {
	b.bindings = bindings
	return b
}

// WithCaptchaVerifier replaces the hCaptcha client built from
// Config.Captcha.
func (b *Builder) WithCaptchaVerifier(v captcha.Verifier) *Builder {
	b.captcha = v
	return b
}

// WithDocumentBackend sets where encrypted documents are written. The
// default is an in-memory backend.
func (b *Builder) WithDocumentBackend(backend vault.Backend) *Builder {
	b.documents = backend
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides time.Now for token, CSRF and TOTP timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and wires every component. It fails
// fast on missing collaborators and malformed secrets.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account repository required")
	}
	if b.captcha == nil && cfg.Captcha.Secret == "" {
		return nil, errors.New("captcha secret required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	// -------- SESSION TOKENS --------
	jwtManager, err := jwt.NewManager(jwt.Config{
		Secret:      cfg.Session.Secret,
		TTL:         cfg.Session.TTL,
		MaxLifetime: cfg.Session.MaxLifetime,
		Issuer:      cfg.Session.Issuer,
		Leeway:      cfg.Session.Leeway,
		KeyID:       cfg.Session.KeyID,
		VerifyKeys:  cfg.Session.PreviousSecrets,
		Now:         b.clock,
	})
	if err != nil {
		return nil, err
	}

	bindings := b.bindings
	if bindings == nil {
		bindings = b.accounts
	}

	// -------- CSRF --------
	guard, err := csrf.NewGuard(csrf.Config{
		Secret: cfg.CSRF.Secret,
		MaxAge: cfg.CSRF.MaxAge,
		Now:    b.clock,
	})
	if err != nil {
		return nil, err
	}

	// -------- THROTTLING --------
	throttle := limiters.NewLoginThrottle(b.redis, limiters.LoginConfig{
		CaptchaThreshold: cfg.Throttle.CaptchaThreshold,
		LockoutThreshold: cfg.Throttle.LockoutThreshold,
		FailureWindow:    cfg.Throttle.FailureWindow,
		LockoutDuration:  cfg.Throttle.LockoutDuration,
	})

	var rateLimiter *rate.Limiter
	if cfg.RateLimit.Enabled {
		rateLimiter = rate.New(b.redis, rate.Config{
			Login:    rate.Rule{Limit: cfg.RateLimit.LoginPerIP, Window: cfg.RateLimit.Window},
			Register: rate.Rule{Limit: cfg.RateLimit.RegisterPerKey, Window: cfg.RateLimit.Window},
		})
	}

	verifier := b.captcha
	if verifier == nil {
		verifier = captcha.NewHCaptcha(captcha.Config{
			Secret:         cfg.Captcha.Secret,
			Endpoint:       cfg.Captcha.Endpoint,
			ConnectTimeout: cfg.Captcha.ConnectTimeout,
			ReadTimeout:    cfg.Captcha.ReadTimeout,
		})
	}

	// -------- ENCRYPTION --------
	cipher, err := vault.NewCipher(cfg.Documents.Key)
	if err != nil {
		return nil, err
	}

	backend := b.documents
	if backend == nil {
		backend = vault.NewMemoryBackend()
	}
	documents, err := vault.New(cipher, backend)
	if err != nil {
		return nil, err
	}

	// -------- TWO-FACTOR --------
	authenticator, err := twofactor.New(twofactor.Config{
		Issuer: cfg.TOTP.Issuer,
		Period: cfg.TOTP.Period,
		Skew:   cfg.TOTP.Skew,
		QRSize: cfg.TOTP.QRSize,
		Now:    b.clock,
	}, cipher)
	if err != nil {
		return nil, err
	}

	totpLimiter := limiters.NewTOTPLimiter(b.redis, limiters.TOTPLimiterConfig{
		MaxAttempts: cfg.TOTP.MaxAttempts,
		Cooldown:    cfg.TOTP.Cooldown,
	})

	sink := b.auditSink
	if sink == nil {
		sink = NoOpSink{}
	}

	b.built = true

	return &Engine{
		config:      cfg,
		accounts:    b.accounts,
		bindings:    bindings,
		hasher:      hasher,
		jwtManager:  jwtManager,
		csrfGuard:   guard,
		throttle:    throttle,
		rateLimiter: rateLimiter,
		captcha:     verifier,
		cipher:      cipher,
		documents:   documents,
		twoFactor:   authenticator,
		totpLimiter: totpLimiter,
		audit:       newAuditDispatcher(cfg.Audit, sink),
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger.With(slog.String("component", "authcore")),
		clock:       b.clock,
	}, nil
}
