package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrTOTPRateLimited = errors.New("totp rate limited")
	ErrTOTPUnavailable = errors.New("totp limiter unavailable")
)

// TOTPLimiterConfig bounds code guesses on two-factor management calls.
// Zero values select 5 attempts per one-minute window.
type TOTPLimiterConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
	KeyPrefix   string
}

func (c TOTPLimiterConfig) withDefaults() TOTPLimiterConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = time.Minute
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "tfa:"
	}
	return c
}

// The window opens with the first wrong code and is not extended by later
// ones, so a locked-out account is released Cooldown after its first miss.
var countTOTPMissLua = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// TOTPLimiter throttles code submissions per account outside the login
// flow (enable and disable confirmations).
type TOTPLimiter struct {
	rdb redis.UniversalClient
	cfg TOTPLimiterConfig
}

func NewTOTPLimiter(rdb redis.UniversalClient, cfg TOTPLimiterConfig) *TOTPLimiter {
	return &TOTPLimiter{rdb: rdb, cfg: cfg.withDefaults()}
}

func (l *TOTPLimiter) counterKey(accountID int64) string {
	return l.cfg.KeyPrefix + strconv.FormatInt(accountID, 10)
}

// Check fails once the account has used up its attempts in the window.
func (l *TOTPLimiter) Check(ctx context.Context, accountID int64) error {
	misses, err := l.rdb.Get(ctx, l.counterKey(accountID)).Int()
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return unavailable(err)
	case misses >= l.cfg.MaxAttempts:
		return ErrTOTPRateLimited
	}
	return nil
}

// RecordFailure counts a wrong code and reports ErrTOTPRateLimited when this
// miss exhausts the budget.
func (l *TOTPLimiter) RecordFailure(ctx context.Context, accountID int64) error {
	misses, err := countTOTPMissLua.Run(ctx, l.rdb,
		[]string{l.counterKey(accountID)},
		l.cfg.Cooldown.Milliseconds(),
	).Int()
	if err != nil {
		return unavailable(err)
	}
	if misses >= l.cfg.MaxAttempts {
		return ErrTOTPRateLimited
	}
	return nil
}

// Reset clears the counter after a correct code.
func (l *TOTPLimiter) Reset(ctx context.Context, accountID int64) error {
	if err := l.rdb.Del(ctx, l.counterKey(accountID)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrTOTPUnavailable, err)
}
