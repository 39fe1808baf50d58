// Package password hashes and verifies account passwords.
//
// # Output format
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Hashes written by the previous bcrypt scheme ($2a$, $2b$, $2y$) still
// verify. [Hasher.NeedsUpgrade] reports true for them, and for argon2id hashes
// produced with weaker parameters, so the caller can re-hash after the next
// successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length
// on registration) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other authcore package.
//   - Log plaintext passwords.
package password
