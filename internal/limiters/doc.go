// Package limiters holds the Redis-backed throttles of the login pipeline.
//
//   - [LoginThrottle] counts failed logins per email. Keys are failcount:<email>
//     and lockout:<email>. Past CaptchaThreshold failures a CAPTCHA is demanded;
//     at LockoutThreshold the lockout flag is set and every attempt is refused
//     until it expires.
//   - [TOTPLimiter] bounds code guesses when enabling or disabling two-factor.
//
// Store errors are wrapped in package sentinels so the Engine can fail closed.
//
// # What this package must NOT do
//
//   - Import authcore.
//   - Decide consequences; the Engine maps states to errors.
package limiters
