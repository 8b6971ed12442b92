// Package middleware exposes net/http guards that authenticate requests with
// an access token before they reach the wrapped handler.
//
// # Guards
//
//   - [Guard]: token from "Authorization: Bearer" or, failing that, the
//     "token" query parameter. Event stream endpoints need the latter since
//     the client transport cannot set headers.
//   - [RequireBearer]: header only.
//
// Verified claims are injected into the request context; read them with
// [ClaimsFromContext].
//
// # What this package must NOT do
//
//   - Issue tokens.
//   - Make authorization decisions beyond pass/reject from the verifier.
package middleware
