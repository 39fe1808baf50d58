package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any Redis failure surfaced by Store.
var ErrRedisUnavailable = errors.New("redis unavailable")

const clearBindingScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var clearBindingLua = redis.NewScript(clearBindingScript)

// Store keeps the ActiveSessionBinding (account id -> current jti) in Redis.
// Each binding expires after ttl; a token cannot outlive it anyway.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore returns a binding store. An empty prefix defaults to "sb".
func NewStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "sb"
	}
	return &Store{redis: rdb, prefix: prefix, ttl: ttl}
}

func (s *Store) key(accountID int64) string {
	return s.prefix + ":" + strconv.FormatInt(accountID, 10)
}

// BindJTI makes jti the only valid session for accountID.
//
//	Performance: 1 Redis command (SET).
func (s *Store) BindJTI(ctx context.Context, accountID int64, jti string) error {
	if err := s.redis.Set(ctx, s.key(accountID), jti, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CurrentJTI returns the bound jti, or "" when none is bound.
func (s *Store) CurrentJTI(ctx context.Context, accountID int64) (string, error) {
	jti, err := s.redis.Get(ctx, s.key(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return jti, nil
}

// ClearJTI removes the binding only while it still names jti, so a logout
// racing a fresh login cannot unbind the newer session.
func (s *Store) ClearJTI(ctx context.Context, accountID int64, jti string) error {
	if err := clearBindingLua.Run(ctx, s.redis, []string{s.key(accountID)}, jti).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
