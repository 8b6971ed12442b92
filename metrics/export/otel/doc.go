// Package otel publishes a client's metrics as OpenTelemetry observable
// instruments.
//
// Counters are grouped per subsystem: gate outcomes land on
// sentimenta.gate.checks with an "outcome" attribute, and stream and session
// events on sentimenta.stream.events and sentimenta.session.events with an
// "event" attribute. The verification latency histogram is published as a
// gauge of cumulative bucket counts keyed by "le" plus a count gauge, since
// the client only keeps fixed buckets and not the sample sum.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate client state.
package otel
