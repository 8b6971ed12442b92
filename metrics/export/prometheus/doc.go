// Package prometheus exposes a client's metrics through
// github.com/prometheus/client_golang.
//
// [Collector] implements prometheus.Collector. Counter names are prefixed
// sentimenta_ and end in _total; the single histogram is
// sentimenta_gate_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers register the
//     collector or mount [Collector.Handler].
//   - Mutate client state.
package prometheus
