// Package eventsource is an HTTP Server-Sent Events transport for the stream
// package, following the browser EventSource model:
//
//   - the connection is a GET with Accept: text/event-stream;
//   - a response that is not 200 with a text/event-stream body fails the
//     channel for good (ready state closed);
//   - a network error or end of stream after the response was accepted is
//     reported while the ready state is connecting, and the transport
//     reconnects on its own after the server's retry delay, sending the last
//     seen event id as Last-Event-ID.
//
// Reconnect delays grow exponentially from the retry delay. After
// [Config.MaxReconnects] consecutive failed attempts the channel is closed.
package eventsource
