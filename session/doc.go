// Package session enforces single-active-session semantics.
//
// An account has at most one bound session id (the token's jti). Issuing a
// session rebinds it, so every earlier token stops validating even though
// its signature and expiry are still fine. [ValidateActiveSession] performs
// the comparison; [Store] is a Redis home for the binding.
//
// The package also owns the session cookie contract ([NewCookie],
// [ExpiredCookie]).
//
// # What this package must NOT do
//
//   - Parse or sign tokens. That is the jwt package.
//   - Import authcore (no upward imports).
package session
