// Package csrf implements a stateless double-submit CSRF defense.
//
// The server keeps the secure token in an HttpOnly cookie the page cannot
// read. The public token, an HMAC of the secure token, travels in a
// script-readable cookie and must be echoed back in the X-CSRFToken header.
// A cross-site attacker can make the browser send the cookies but cannot
// read the public token to forge the header.
//
// Secure tokens embed their issue time and the session id they belong to;
// a pair minted for one session is useless for another.
package csrf
