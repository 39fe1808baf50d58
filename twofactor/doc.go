// Package twofactor provides TOTP enrollment and verification.
//
// Secrets are generated with pquerna/otp (SHA1, 6 digits, 30s period) and are
// sealed by a [Sealer] before they are returned or stored; plaintext secrets
// never leave the package. Enrollment also renders the otpauth URI as a QR
// PNG for authenticator apps.
package twofactor
