// Package api is the HTTP client for the Sentimenta backend endpoints the
// dashboard client needs: identity ("whoami"), pipeline run status and
// listing, and sync triggering.
//
// Every failure is returned as an [*APIError]. Transport failures are retried
// once after a short delay and then reported with Status 0.
package api
