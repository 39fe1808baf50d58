// Package rate provides fixed-window request budgets in front of the login
// and registration endpoints.
//
// # Window semantics
//
// INCR + EXPIRE on first hit. Key prefixes:
//   - rl:login:    per client IP
//   - rl:register: per email (or IP)
//
// These budgets limit request volume. Per-account failure counting and
// lockout live in internal/limiters.
package rate
