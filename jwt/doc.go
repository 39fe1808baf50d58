// Package jwt issues and verifies HS512 session tokens.
//
// Every token carries the account snapshot, a jti naming the session, and
// origIat, the instant the session was first issued. Refresh extends exp but
// keeps origIat and jti, so a session can never outlive MaxLifetime no matter
// how often it is refreshed.
//
// Whether a jti is still the account's active session is decided by the
// session package, not here.
package jwt
