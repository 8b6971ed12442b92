package internaldefs

import (
	"github.com/sentimenta/dashclient"
)

// CounterDef names one counter for exporters.
type CounterDef struct {
	ID   dashclient.MetricID
	Name string
	Help string
	// Subsystem and Label place the counter in an attribute-keyed series
	// for exporters that group counters, such as OpenTelemetry.
	Subsystem string
	Label     string
}

// HistogramDef names one histogram for exporters.
type HistogramDef struct {
	ID   dashclient.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "sentimenta_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: dashclient.MetricGateAuthorized, Name: "sentimenta_gate_authorized_total", Help: "Gate checks that rendered protected content.", Subsystem: "gate", Label: "authorized"},
	{ID: dashclient.MetricGateRedirectNoCredential, Name: "sentimenta_gate_redirect_no_credential_total", Help: "Gate redirects because no credential was stored.", Subsystem: "gate", Label: "redirect_no_credential"},
	{ID: dashclient.MetricGateRedirectInvalid, Name: "sentimenta_gate_redirect_invalid_total", Help: "Gate redirects because verification failed.", Subsystem: "gate", Label: "redirect_invalid"},
	{ID: dashclient.MetricSessionCleared, Name: "sentimenta_session_cleared_total", Help: "Stored credentials removed after failed verification.", Subsystem: "session", Label: "cleared"},
	{ID: dashclient.MetricStreamStarted, Name: "sentimenta_stream_started_total", Help: "Event stream subscriptions opened.", Subsystem: "stream", Label: "started"},
	{ID: dashclient.MetricStreamConnected, Name: "sentimenta_stream_connected_total", Help: "Event stream subscriptions that reached connected.", Subsystem: "stream", Label: "connected"},
	{ID: dashclient.MetricStreamProgress, Name: "sentimenta_stream_progress_total", Help: "Progress events applied.", Subsystem: "stream", Label: "progress"},
	{ID: dashclient.MetricStreamComplete, Name: "sentimenta_stream_complete_total", Help: "Complete events applied.", Subsystem: "stream", Label: "complete"},
	{ID: dashclient.MetricStreamFrameDropped, Name: "sentimenta_stream_frame_dropped_total", Help: "Malformed frames ignored.", Subsystem: "stream", Label: "frame_dropped"},
	{ID: dashclient.MetricStreamTransientError, Name: "sentimenta_stream_transient_error_total", Help: "Channel errors absorbed by reconnects.", Subsystem: "stream", Label: "transient_error"},
	{ID: dashclient.MetricStreamFatalError, Name: "sentimenta_stream_fatal_error_total", Help: "Channel errors that failed a stream.", Subsystem: "stream", Label: "fatal_error"},
	{ID: dashclient.MetricStreamStopped, Name: "sentimenta_stream_stopped_total", Help: "Event stream subscriptions stopped by the caller.", Subsystem: "stream", Label: "stopped"},
}

var HistogramDefs = []HistogramDef{
	{ID: dashclient.MetricVerifyLatency, Name: "sentimenta_gate_verify_latency_seconds", Help: "Gate token verification latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// bucket of a snapshot is +Inf.
var HistogramUpperBounds = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// HistogramBoundLabels are the "le" label values of each bucket, +Inf
// included.
var HistogramBoundLabels = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed array, zero filling when raw is
// short or nil.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
