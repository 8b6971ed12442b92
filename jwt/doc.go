// Package jwt issues and verifies the access/refresh token pair used by the
// development backend, and reads unverified claims from a stored token for
// display.
//
// Tokens carry a "type" claim ("access" or "refresh"); a refresh token is
// never accepted where an access token is expected.
package jwt
