package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sentimenta/dashclient"
	"github.com/sentimenta/dashclient/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("otel exporter: meter is nil")
	ErrNilSource = errors.New("otel exporter: metrics source is nil")
)

// Instrument names.
const (
	GateChecksName     = "sentimenta.gate.checks"
	SessionEventsName  = "sentimenta.session.events"
	StreamEventsName   = "sentimenta.stream.events"
	VerifyBucketsName  = "sentimenta.gate.verify.duration.buckets"
	VerifyCountName    = "sentimenta.gate.verify.duration.count"
	AuditDroppedName   = "sentimenta.audit.dropped"
	bucketAttributeKey = "le"
)

// subsystems maps a counter subsystem to its instrument and attribute key.
var subsystems = map[string]struct {
	name, help, key string
}{
	"gate":    {GateChecksName, "Gate checks by outcome.", "outcome"},
	"session": {SessionEventsName, "Session store events.", "event"},
	"stream":  {StreamEventsName, "Event stream lifecycle events.", "event"},
}

type metricsSource interface {
	MetricsSnapshot() dashclient.MetricsSnapshot
	AuditDropped() uint64
}

// series is one attribute set on a shared counter.
type series struct {
	id    dashclient.MetricID
	inst  metric.Int64ObservableCounter
	attrs metric.ObserveOption
}

// Exporter registers observable instruments that read a client's metric
// snapshot on every collection.
type Exporter struct {
	source metricsSource
	reg    metric.Registration

	series  []series
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	les     []metric.ObserveOption
	dropped metric.Int64ObservableCounter
}

// NewExporter registers instruments on meter for client.
func NewExporter(meter metric.Meter, client *dashclient.Client) (*Exporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, client)
}

// NewExporterFromSource registers instruments on meter for source.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}
	e := &Exporter{source: source}

	shared := make(map[string]metric.Int64ObservableCounter, len(subsystems))
	for _, def := range internaldefs.CounterDefs {
		sub, ok := subsystems[def.Subsystem]
		if !ok {
			return nil, fmt.Errorf("otel exporter: counter %s has unknown subsystem %q", def.Name, def.Subsystem)
		}
		inst, ok := shared[def.Subsystem]
		if !ok {
			var err error
			inst, err = meter.Int64ObservableCounter(sub.name, metric.WithDescription(sub.help))
			if err != nil {
				return nil, fmt.Errorf("otel exporter: %s: %w", sub.name, err)
			}
			shared[def.Subsystem] = inst
		}
		e.series = append(e.series, series{
			id:    def.ID,
			inst:  inst,
			attrs: metric.WithAttributes(attribute.String(sub.key, def.Label)),
		})
	}

	var err error
	if e.buckets, err = meter.Int64ObservableGauge(VerifyBucketsName,
		metric.WithDescription("Cumulative gate verification latency bucket counts."),
		metric.WithUnit("{check}")); err != nil {
		return nil, fmt.Errorf("otel exporter: %s: %w", VerifyBucketsName, err)
	}
	if e.count, err = meter.Int64ObservableGauge(VerifyCountName,
		metric.WithDescription("Gate verifications timed."),
		metric.WithUnit("{check}")); err != nil {
		return nil, fmt.Errorf("otel exporter: %s: %w", VerifyCountName, err)
	}
	for _, le := range internaldefs.HistogramBoundLabels {
		e.les = append(e.les, metric.WithAttributes(attribute.String(bucketAttributeKey, le)))
	}
	if e.dropped, err = meter.Int64ObservableCounter(AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp)); err != nil {
		return nil, fmt.Errorf("otel exporter: %s: %w", AuditDroppedName, err)
	}

	instruments := []metric.Observable{e.buckets, e.count, e.dropped}
	for _, inst := range shared {
		instruments = append(instruments, inst)
	}
	if e.reg, err = meter.RegisterCallback(e.observe, instruments...); err != nil {
		return nil, fmt.Errorf("otel exporter: register callback: %w", err)
	}
	return e, nil
}

// observe reports one snapshot so every series in a collection agrees.
func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, s := range e.series {
		o.ObserveInt64(s.inst, int64(snap.Counters[s.id]))
	}
	if raw, ok := snap.Histograms[dashclient.MetricVerifyLatency]; ok {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, le := range e.les {
			o.ObserveInt64(e.buckets, int64(cum[i]), le)
		}
		o.ObserveInt64(e.count, int64(cum[len(cum)-1]))
	}
	o.ObserveInt64(e.dropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. It is safe on a nil exporter.
func (e *Exporter) Close() error {
	if e == nil || e.reg == nil {
		return nil
	}
	return e.reg.Unregister()
}
