// Package middleware adapts authcore.Engine to net/http.
//
// # Handlers
//
//   - [RequireSession] validates the session cookie (or a bearer token) and
//     stores the claims in the request context.
//   - [RequireCSRF] checks the double-submit pair on unsafe methods. It must
//     run inside RequireSession because the pair is bound to the session id.
//   - [IssueCSRF] hands a fresh pair to an authenticated client.
//
// Failures are written as JSON with the status from authcore.HTTPStatus.
//
// # What this package must NOT do
//
//   - Parse or sign tokens directly (delegates to the Engine).
//   - Access Redis or the account store.
package middleware
