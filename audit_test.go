package dashclient

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

type panicSink struct{}

func (panicSink) Emit(context.Context, AuditEvent) {
	panic("sink exploded")
}

func TestAuditDisabledReturnsNilDispatcher(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, &countingSink{}, nil)
	if d != nil {
		t.Fatalf("expected nil dispatcher")
	}
	// nil dispatcher is safe to use
	d.Emit(context.Background(), AuditEvent{EventType: AuditStreamStarted})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatalf("expected 0 dropped")
	}
}

func TestAuditDispatcherDrainsOnClose(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 64}, sink, nil)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: AuditStreamStarted})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 events delivered, got %d", got)
	}

	d.Emit(context.Background(), AuditEvent{EventType: AuditStreamStopped})
	if got := sink.count.Load(); got != 50 {
		t.Fatalf("emit after close must be ignored, got %d", got)
	}
}

func TestAuditDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink, nil)

	// The first event is taken by the worker and blocks in the sink, the
	// second fills the buffer, the rest are dropped.
	d.Emit(context.Background(), AuditEvent{EventType: AuditStreamStarted})
	deadline := time.Now().Add(time.Second)
	for len(d.ch) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: AuditStreamStarted})
	}

	if got := d.Dropped(); got != 4 {
		t.Fatalf("expected 4 dropped, got %d", got)
	}
	close(sink.gate)
	d.Close()
}

func TestAuditDispatcherStampsTimestamp(t *testing.T) {
	sink := NewChannelSink(1)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1}, sink, nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	d.Emit(context.Background(), AuditEvent{EventType: AuditGateAuthorized})
	d.Close()

	ev := <-sink.Events()
	if !ev.Timestamp.Equal(fixed) {
		t.Fatalf("expected timestamp %v, got %v", fixed, ev.Timestamp)
	}
}

func TestAuditDispatcherSurvivesPanickingSink(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, panicSink{}, zap.New(core))

	d.Emit(context.Background(), AuditEvent{EventType: AuditStreamFailed})
	d.Emit(context.Background(), AuditEvent{EventType: AuditStreamFailed})
	d.Close()

	if got := d.Failed(); got != 2 {
		t.Fatalf("expected 2 failed deliveries, got %d", got)
	}
	if logs.FilterMessage("audit sink panicked").Len() != 2 {
		t.Fatalf("expected panics to be logged")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{EventType: AuditStreamComplete, SubscriptionID: "s1", Success: true})
	sink.Emit(context.Background(), AuditEvent{EventType: AuditStreamFailed, Error: "boom"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.EventType != AuditStreamFailed || ev.Error != "boom" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestZapSinkLogsEventType(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))
	sink.Emit(context.Background(), AuditEvent{EventType: AuditGateRedirected, View: "runs", Metadata: map[string]string{"reason": "no_credential"}})

	entries := logs.FilterMessage(AuditGateRedirected).All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["view"] != "runs" || fields["meta.reason"] != "no_credential" {
		t.Fatalf("unexpected fields %v", fields)
	}
}
