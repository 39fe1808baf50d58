// Package authcore is the authentication and session-security core of the
// ConnectIT platform.
//
// An [Engine] is assembled once with a [Builder] and then shared by every
// request handler. It verifies passwords, issues HS512 session tokens with a
// single active session per account, guards state-changing requests with a
// double-submit CSRF pair, throttles failed logins per email (CAPTCHA, then
// lockout), verifies TOTP codes and encrypts documents at rest.
//
// # Login pipeline
//
// [Engine.Login] runs, in order: input validation, the per-IP request
// budget, the lockout flag, CAPTCHA (once the email reached the CAPTCHA
// threshold), password, account status, two-factor code, throttle reset,
// session issue and CSRF pair. The first failing step ends the request.
//
// # Errors
//
// Every failure is an [*Error] carrying an [ErrorKind]. Compare with
// errors.Is against the exported sentinels and map to HTTP with
// [HTTPStatus]. Backend outages surface as [KindUnavailable] and always deny.
//
// # Subpackages
//
//   - password: argon2id hashing with bcrypt legacy verification
//   - jwt: session token signing and verification
//   - session: active session binding and the session cookie
//   - csrf: CSRF pair generation and validation
//   - captcha: hCaptcha client
//   - twofactor: TOTP enrollment and verification
//   - vault: AES-256-GCM cipher and document storage
//   - accounts: Postgres account repository
//   - middleware: net/http adapters
package authcore
