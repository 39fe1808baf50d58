// Package configload reads service settings from a YAML file and
// AUTHCORE_* environment variables, and turns them into an authcore.Config.
package configload

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/connectit/authcore"
	"github.com/connectit/authcore/vault"
	"github.com/spf13/viper"
)

const envPrefix = "AUTHCORE"

type HTTPSettings struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type AppSettings struct {
	ServiceName string       `mapstructure:"service_name"`
	Env         string       `mapstructure:"env"`
	LogLevel    string       `mapstructure:"log_level"`
	MetricsPath string       `mapstructure:"metrics_path"`
	HTTP        HTTPSettings `mapstructure:"http"`
}

type RateLimitSettings struct {
	Enabled        bool          `mapstructure:"enabled"`
	LoginPerIP     int           `mapstructure:"login_per_ip"`
	RegisterPerKey int           `mapstructure:"register_per_key"`
	Window         time.Duration `mapstructure:"window"`
}

// AuthSettings holds the Engine tunables. Secrets are plain strings except
// DocumentsKey, which is base64.
type AuthSettings struct {
	SessionSecret      string            `mapstructure:"session_secret"`
	SessionTTL         time.Duration     `mapstructure:"session_ttl"`
	SessionMaxLifetime time.Duration     `mapstructure:"session_max_lifetime"`
	SessionBinding     string            `mapstructure:"session_binding"`
	CSRFSecret         string            `mapstructure:"csrf_secret"`
	CSRFMaxAge         time.Duration     `mapstructure:"csrf_max_age"`
	DocumentsKey       string            `mapstructure:"documents_key"`
	CaptchaSecret      string            `mapstructure:"captcha_secret"`
	CaptchaThreshold   int               `mapstructure:"captcha_threshold"`
	LockoutThreshold   int               `mapstructure:"lockout_threshold"`
	LockoutDuration    time.Duration     `mapstructure:"lockout_duration"`
	FailureWindow      time.Duration     `mapstructure:"failure_window"`
	TOTPIssuer         string            `mapstructure:"totp_issuer"`
	RateLimit          RateLimitSettings `mapstructure:"rate_limit"`
	AuditEnabled       bool              `mapstructure:"audit_enabled"`
	AuditFile          string            `mapstructure:"audit_file"`
	MetricsEnabled     bool              `mapstructure:"metrics_enabled"`
	LatencyHistograms  bool              `mapstructure:"latency_histograms"`
}

type RedisSettings struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DBSettings struct {
	DSN string `mapstructure:"dsn"`
}

// S3Settings selects the document backend. An empty Bucket keeps documents
// in memory.
type S3Settings struct {
	Region       string `mapstructure:"region"`
	Bucket       string `mapstructure:"bucket"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	BaseEndpoint string `mapstructure:"base_endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type Settings struct {
	App   AppSettings   `mapstructure:"app"`
	Auth  AuthSettings  `mapstructure:"auth"`
	Redis RedisSettings `mapstructure:"redis"`
	DB    DBSettings    `mapstructure:"db"`
	S3    S3Settings    `mapstructure:"s3"`
}

const (
	BindingDatabase = "db"
	BindingRedis    = "redis"
)

// Load reads path (default config.yaml). A missing file is not an error;
// environment variables such as AUTHCORE_AUTH_SESSION_SECRET override it.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		path = "config.yaml"
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// an explicit path reports a missing file as an fs error
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	switch s.Auth.SessionBinding {
	case BindingDatabase, BindingRedis:
	default:
		return nil, fmt.Errorf("auth.session_binding must be %q or %q", BindingDatabase, BindingRedis)
	}

	return &s, nil
}

func setDefaults(v *viper.Viper) {
	def := authcore.DefaultConfig()

	v.SetDefault("app.service_name", "authcore")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.metrics_path", "/metrics")
	v.SetDefault("app.http.addr", ":8080")
	v.SetDefault("app.http.read_timeout", "5s")
	v.SetDefault("app.http.write_timeout", "10s")
	v.SetDefault("app.http.idle_timeout", "60s")

	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.session_ttl", def.Session.TTL)
	v.SetDefault("auth.session_max_lifetime", def.Session.MaxLifetime)
	v.SetDefault("auth.session_binding", BindingDatabase)
	v.SetDefault("auth.csrf_secret", "")
	v.SetDefault("auth.csrf_max_age", def.CSRF.MaxAge)
	v.SetDefault("auth.documents_key", "")
	v.SetDefault("auth.captcha_secret", "")
	v.SetDefault("auth.captcha_threshold", def.Throttle.CaptchaThreshold)
	v.SetDefault("auth.lockout_threshold", def.Throttle.LockoutThreshold)
	v.SetDefault("auth.lockout_duration", def.Throttle.LockoutDuration)
	v.SetDefault("auth.failure_window", def.Throttle.FailureWindow)
	v.SetDefault("auth.totp_issuer", def.TOTP.Issuer)
	v.SetDefault("auth.rate_limit.enabled", def.RateLimit.Enabled)
	v.SetDefault("auth.rate_limit.login_per_ip", def.RateLimit.LoginPerIP)
	v.SetDefault("auth.rate_limit.register_per_key", def.RateLimit.RegisterPerKey)
	v.SetDefault("auth.rate_limit.window", def.RateLimit.Window)
	v.SetDefault("auth.audit_enabled", def.Audit.Enabled)
	v.SetDefault("auth.audit_file", "")
	v.SetDefault("auth.metrics_enabled", def.Metrics.Enabled)
	v.SetDefault("auth.latency_histograms", def.Metrics.EnableLatencyHistograms)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("db.dsn", "")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.base_endpoint", "")
	v.SetDefault("s3.use_path_style", false)
}

// EngineConfig overlays the settings on authcore.DefaultConfig and
// validates the result.
func (s *Settings) EngineConfig() (authcore.Config, error) {
	cfg := authcore.DefaultConfig()
	a := s.Auth

	cfg.Session.Secret = []byte(a.SessionSecret)
	cfg.Session.TTL = a.SessionTTL
	cfg.Session.MaxLifetime = a.SessionMaxLifetime
	cfg.CSRF.Secret = []byte(a.CSRFSecret)
	cfg.CSRF.MaxAge = a.CSRFMaxAge

	if a.DocumentsKey != "" {
		key, err := vault.DecodeKey(a.DocumentsKey)
		if err != nil {
			return authcore.Config{}, fmt.Errorf("auth.documents_key: %w", err)
		}
		cfg.Documents.Key = key
	}

	cfg.Captcha.Secret = a.CaptchaSecret
	cfg.Throttle.CaptchaThreshold = a.CaptchaThreshold
	cfg.Throttle.LockoutThreshold = a.LockoutThreshold
	cfg.Throttle.LockoutDuration = a.LockoutDuration
	cfg.Throttle.FailureWindow = a.FailureWindow
	cfg.TOTP.Issuer = a.TOTPIssuer

	cfg.RateLimit.Enabled = a.RateLimit.Enabled
	cfg.RateLimit.LoginPerIP = a.RateLimit.LoginPerIP
	cfg.RateLimit.RegisterPerKey = a.RateLimit.RegisterPerKey
	cfg.RateLimit.Window = a.RateLimit.Window

	cfg.Audit.Enabled = a.AuditEnabled
	cfg.Metrics.Enabled = a.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = a.LatencyHistograms

	if err := cfg.Validate(); err != nil {
		return authcore.Config{}, err
	}
	return cfg, nil
}

// S3Config maps the settings onto the vault backend config.
func (s *Settings) S3Config() vault.S3Config {
	return vault.S3Config{
		Region:       s.S3.Region,
		Bucket:       s.S3.Bucket,
		AccessKey:    s.S3.AccessKey,
		SecretKey:    s.S3.SecretKey,
		BaseEndpoint: s.S3.BaseEndpoint,
		UsePathStyle: s.S3.UsePathStyle,
	}
}
