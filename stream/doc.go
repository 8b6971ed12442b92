// Package stream implements the client side of a server-pushed event channel
// that reports the progress of a long-running backend job.
//
// A [Client] owns at most one open [Channel] at a time and walks a small state
// machine:
//
//	Idle -> Connecting -> Connected -> Complete
//	            |             |
//	            +-> Error <---+
//
// Stop returns to Idle from any state. Start leaves Idle, Error and Complete.
// Nothing else moves the client.
//
// The channel is authenticated by appending the stored access token to the
// target URL as the "token" query parameter. Two named events are understood:
// "progress" and "complete". Both carry a JSON body; a body that is not valid
// JSON is dropped without changing state. The latest valid body is kept and
// exposed via [Client.Snapshot].
//
// # Transport errors
//
// Transports report errors together with their ready state. [IsFatal]
// classifies them: a closed transport has given up and moves the client to
// Error, a connecting transport is retrying on its own and is not surfaced.
//
// # Concurrency
//
// Callbacks run on the transport's reader goroutine, in the order the server
// sent the events, and never while the client's lock is held. Start, Stop and
// Snapshot may be called from any goroutine. Close stops the client and waits
// for every reader goroutine to exit; it must not be called from a callback.
package stream
