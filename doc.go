// Package dashclient is the client side of the Sentimenta dashboard's
// authenticated real-time update channel.
//
// A [Client] is assembled with [Builder]. It owns the credential store
// ([session.Store]), the backend API client, the verifier used by session
// gates, and the transport used by event streams. Views call
// [Client.NewGate] to guard protected content and [Client.WatchRun] to follow
// a pipeline run as it progresses.
//
// # Architecture boundaries
//
// dashclient is the wiring surface. The state machines live in gate and
// stream, the wire format in stream/eventsource, and persistence in session.
// The Client observes gates and streams to keep [Metrics] and audit events;
// it never changes their decisions.
//
// # What this package must NOT do
//
//   - Mint credentials. Tokens are obtained elsewhere and written through
//     [session.Store.Set].
//   - Block stream callbacks on audit delivery when DropIfFull is set.
//   - Import internal/devapi or any command package.
package dashclient
