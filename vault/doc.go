// Package vault provides authenticated encryption for sensitive data at rest.
//
// [Cipher] seals byte slices with AES-256-GCM. Every blob carries its own
// random 96-bit nonce:
//
//	nonce(12) || ciphertext || tag(16)
//
// The key is loaded once at startup ([DecodeKey], [NewCipher]); a missing or
// malformed key is a startup failure, not a per-call error.
//
// [Vault] layers document storage on top: uploads are restricted to a fixed
// set of roots, encrypted, and written to a [Backend] (in-memory or S3).
//
// # What this package must NOT do
//
//   - Return partial plaintext when authentication fails.
//   - Reuse a nonce.
//   - Import any other authcore package.
package vault
