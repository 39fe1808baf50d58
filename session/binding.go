package session

import (
	"crypto/subtle"
	"errors"
)

var (
	// ErrSuperseded means another login replaced this session.
	ErrSuperseded = errors.New("session superseded")
	// ErrNoActiveSession means the account has no bound session (logged out).
	ErrNoActiveSession = errors.New("no active session")
)

// ValidateActiveSession checks a token's jti against the account's current
// binding.
func ValidateActiveSession(jti, current string) error {
	if current == "" {
		return ErrNoActiveSession
	}
	if jti == "" || subtle.ConstantTimeCompare([]byte(jti), []byte(current)) != 1 {
		return ErrSuperseded
	}
	return nil
}
