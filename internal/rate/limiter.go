package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule is one fixed-window budget.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Config holds the request budgets enforced ahead of the login pipeline.
type Config struct {
	// Login is applied per client IP.
	Login Rule
	// Register is applied per email, falling back to the client IP.
	Register Rule
}

// DefaultConfig allows 60 requests per minute per key.
func DefaultConfig() Config {
	return Config{
		Login:    Rule{Limit: 60, Window: time.Minute},
		Register: Rule{Limit: 60, Window: time.Minute},
	}
}

// Limiter enforces fixed-window request budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// AllowLogin counts one login request from ip. An empty ip is not limited.
func (l *Limiter) AllowLogin(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	return l.allow(ctx, loginIPKey(ip), l.config.Login)
}

// AllowRegister counts one registration request keyed by email, or by ip
// when the email is empty.
func (l *Limiter) AllowRegister(ctx context.Context, email, ip string) error {
	key := strings.ToLower(strings.TrimSpace(email))
	if key == "" {
		if ip == "" {
			return nil
		}
		key = ip
	}
	return l.allow(ctx, registerKey(key), l.config.Register)
}

func (l *Limiter) allow(ctx context.Context, key string, rule Rule) error {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, key, rule.Window)
	if err != nil {
		return err
	}
	if count > int64(rule.Limit) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func loginIPKey(ip string) string { return "rl:login:" + ip }

func registerKey(key string) string { return "rl:register:" + key }
