// Package gate guards protected views behind a locally persisted session.
//
// A [Gate] is mounted once per activation of a view. On its first [Gate.Mount]
// it reads the credential from the session store, asks the identity verifier
// whether the access token is still accepted, and ends in one of two terminal
// states:
//
//   - [Authorized]: the identity is recorded and the view renders it.
//   - [Redirecting]: the redirect callback runs and the view never renders
//     protected content.
//
// There is no retry. Any verification failure (expired token, network error,
// malformed response, cancelled context) clears the stored credential and
// redirects. Failures are logged at debug level and never returned.
//
// # What this package must NOT do
//
//   - Render protected content before verification succeeds.
//   - Re-run the check on later mounts of the same gate.
//   - Surface authentication failures as errors to the caller.
package gate
