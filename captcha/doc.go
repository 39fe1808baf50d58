// Package captcha verifies CAPTCHA response tokens with hCaptcha.
//
// Verification fails closed: a missing secret, a transport error, a timeout,
// a non-2xx status or a body that does not decode all count as a failed
// CAPTCHA. Connect and read timeouts are bounded (5s and 10s by default).
package captcha
