package dashclient_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sentimenta/dashclient"
	"github.com/sentimenta/dashclient/api"
	"github.com/sentimenta/dashclient/gate"
	"github.com/sentimenta/dashclient/internal/devapi"
	"github.com/sentimenta/dashclient/jwt"
	"github.com/sentimenta/dashclient/pipeline"
	"github.com/sentimenta/dashclient/session"
	"github.com/sentimenta/dashclient/stream"
	"github.com/sentimenta/dashclient/stream/streamtest"
)

type harness struct {
	dev    *devapi.Server
	client *dashclient.Client
	audit  *dashclient.ChannelSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("dashclient-test-secret"),
	})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}

	dev, err := devapi.New(devapi.Config{Tokens: tokens, StreamInterval: 5 * time.Millisecond, StepInterval: -1})
	if err != nil {
		t.Fatalf("dev api: %v", err)
	}
	name := "Ana"
	dev.AddUser(api.Identity{ID: "u1", Email: "ana@example.com", Name: &name, Plan: "pro"})
	srv := httptest.NewServer(dev)

	cfg := dashclient.DefaultConfig()
	cfg.API.BaseURL = srv.URL + devapi.BasePath
	cfg.Session.Backend = dashclient.SessionMemory
	cfg.Stream.PollInterval = time.Millisecond
	cfg.Audit = dashclient.AuditConfig{Enabled: true, BufferSize: 128}

	sink := dashclient.NewChannelSink(128)
	client, err := dashclient.New().
		WithConfig(cfg).
		WithHTTPClient(srv.Client()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
		srv.Close()
		_ = dev.Close()
	})
	return &harness{dev: dev, client: client, audit: sink}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	access, refresh, err := h.dev.IssueFor("u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := h.client.Session().Set(context.Background(), access, refresh); err != nil {
		t.Fatalf("store credential: %v", err)
	}
}

func (h *harness) drainAudit() []dashclient.AuditEvent {
	var out []dashclient.AuditEvent
	for {
		select {
		case ev := <-h.audit.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []dashclient.AuditEvent) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.EventType)
	}
	return types
}

func TestClientGateRecordsOutcomes(t *testing.T) {
	h := newHarness(t)
	ctx := dashclient.WithViewName(context.Background(), "runs")

	redirects := 0
	out := h.client.NewGate(func() { redirects++ }).Mount(ctx, nil)
	if out.State != gate.Redirecting || out.Reason != gate.NoCredential {
		t.Fatalf("expected redirect for missing credential, got %v/%v", out.State, out.Reason)
	}

	h.login(t)
	out = h.client.NewGate(func() { redirects++ }).Mount(ctx, nil)
	if out.State != gate.Authorized {
		t.Fatalf("expected authorized, got %v (%v)", out.State, out.Reason)
	}
	if got := out.Identity.DisplayName(); got != "Ana" {
		t.Fatalf("expected display name Ana, got %q", got)
	}

	if err := h.client.Session().Set(ctx, "forged", "forged"); err != nil {
		t.Fatalf("store forged credential: %v", err)
	}
	out = h.client.NewGate(func() { redirects++ }).Mount(ctx, nil)
	if out.Reason != gate.VerificationFailed {
		t.Fatalf("expected verification failure, got %v", out.Reason)
	}
	if _, ok := h.client.Session().Get(ctx); ok {
		t.Fatal("expected the rejected credential to be cleared")
	}
	if redirects != 2 {
		t.Fatalf("expected 2 redirects, got %d", redirects)
	}

	snap := h.client.MetricsSnapshot()
	for _, id := range []dashclient.MetricID{
		dashclient.MetricGateAuthorized,
		dashclient.MetricGateRedirectNoCredential,
		dashclient.MetricGateRedirectInvalid,
		dashclient.MetricSessionCleared,
	} {
		if got := snap.Counters[id]; got != 1 {
			t.Fatalf("counter %v: expected 1, got %d", id, got)
		}
	}

	var observed uint64
	for _, n := range snap.Histograms[dashclient.MetricVerifyLatency] {
		observed += n
	}
	if observed != 2 {
		t.Fatalf("expected both verifications timed, got %d", observed)
	}

	if err := h.client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	events := h.drainAudit()
	want := []string{
		dashclient.AuditGateRedirected,
		dashclient.AuditGateAuthorized,
		dashclient.AuditSessionCleared,
		dashclient.AuditGateRedirected,
	}
	if diff := cmp.Diff(want, eventTypes(events)); diff != "" {
		t.Fatalf("audit events (-want +got):\n%s", diff)
	}
	if events[1].View != "runs" || events[1].UserID != "u1" {
		t.Fatalf("unexpected authorized event: view=%q user=%q", events[1].View, events[1].UserID)
	}
	if got := events[3].Metadata["reason"]; got != "verification_failed" {
		t.Fatalf("expected reason verification_failed, got %q", got)
	}
}

func TestClientWatchRunToCompletion(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	run := h.dev.CreateRun("u1", "conn-1", devapi.RunPlan{Posts: 1, Comments: 2, AnalyzePerStep: 2})

	done := make(chan pipeline.Progress, 1)
	s, err := h.client.WatchRun(run.ID,
		stream.OnProgress(func(stream.Event) { h.dev.Advance(run.ID) }),
		stream.OnComplete(func(ev stream.Event) {
			p, _ := pipeline.Decode(ev.Data)
			done <- p
		}),
	)
	if err != nil {
		t.Fatalf("watch run: %v", err)
	}
	s.Start(context.Background())

	select {
	case p := <-done:
		if p.Status != pipeline.StatusCompleted {
			t.Fatalf("expected completed, got %v", p.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for complete")
	}
	if s.State() != stream.Complete {
		t.Fatalf("expected complete state, got %v", s.State())
	}

	if err := h.client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	snap := h.client.MetricsSnapshot()
	for _, id := range []dashclient.MetricID{
		dashclient.MetricStreamStarted,
		dashclient.MetricStreamConnected,
		dashclient.MetricStreamComplete,
	} {
		if got := snap.Counters[id]; got != 1 {
			t.Fatalf("counter %v: expected 1, got %d", id, got)
		}
	}
	if snap.Counters[dashclient.MetricStreamProgress] == 0 {
		t.Fatal("expected progress frames to be counted")
	}

	events := h.drainAudit()
	if len(events) < 2 {
		t.Fatalf("expected at least 2 audit events, got %d", len(events))
	}
	if events[0].EventType != dashclient.AuditStreamStarted || events[1].EventType != dashclient.AuditStreamComplete {
		t.Fatalf("unexpected audit order: %v", eventTypes(events))
	}
	if events[0].SubscriptionID != events[1].SubscriptionID {
		t.Fatalf("subscription ids differ: %q vs %q", events[0].SubscriptionID, events[1].SubscriptionID)
	}
	if !strings.Contains(events[1].Target, "/pipeline/runs/"+run.ID+"/stream") {
		t.Fatalf("unexpected target %q", events[1].Target)
	}
}

func TestClientStreamWithoutCredentialFails(t *testing.T) {
	h := newHarness(t)
	run := h.dev.CreateRun("u1", "", devapi.DefaultPlan)

	errs := make(chan error, 1)
	s, err := h.client.WatchRun(run.ID, stream.OnError(func(err error) { errs <- err }))
	if err != nil {
		t.Fatalf("watch run: %v", err)
	}
	s.Start(context.Background())

	select {
	case <-errs:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error")
	}
	if s.State() != stream.Error {
		t.Fatalf("expected error state, got %v", s.State())
	}
	if got := h.client.MetricsSnapshot().Counters[dashclient.MetricStreamFatalError]; got != 1 {
		t.Fatalf("expected 1 fatal error, got %d", got)
	}
}

func TestClientPollRun(t *testing.T) {
	h := newHarness(t)

	if _, err := h.client.PollRun(context.Background(), "any", nil); !errors.Is(err, dashclient.ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}

	h.login(t)
	run := h.dev.CreateRun("u1", "", devapi.RunPlan{Posts: 1, Comments: 1, AnalyzePerStep: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := h.client.PollRun(ctx, run.ID, func(pipeline.Progress, error) { h.dev.Advance(run.ID) })
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !pipeline.Terminal(p.Status) {
		t.Fatalf("expected terminal status, got %v", p.Status)
	}
}

func TestClientCloseRejectsNewStreams(t *testing.T) {
	h := newHarness(t)
	if err := h.client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := h.client.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, err := h.client.NewStream("http://127.0.0.1/stream"); !errors.Is(err, dashclient.ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}

func TestClientReleasesClosedStreams(t *testing.T) {
	cfg := dashclient.DefaultConfig()
	cfg.Session.Backend = dashclient.SessionMemory
	client, err := dashclient.New().WithConfig(cfg).WithTransport(streamtest.NewTransport()).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ctx := context.Background()
	if err := client.Session().Set(ctx, "A1", "R1"); err != nil {
		t.Fatalf("store credential: %v", err)
	}

	for i := 0; i < 1000; i++ {
		s, err := client.NewStream("http://api.test/stream")
		if err != nil {
			t.Fatalf("new stream %d: %v", i, err)
		}
		s.Start(ctx)
		if err := s.Close(); err != nil {
			t.Fatalf("close stream %d: %v", i, err)
		}
	}
	if got := client.StreamCount(); got != 0 {
		t.Fatalf("expected closed streams to be released, %d retained", got)
	}

	open, err := client.NewStream("http://api.test/stream")
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	open.Start(ctx)
	if got := client.StreamCount(); got != 1 {
		t.Fatalf("expected the open stream to be tracked, got %d", got)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := client.StreamCount(); got != 0 {
		t.Fatalf("expected no streams after close, got %d", got)
	}
	if open.State() != stream.Idle {
		t.Fatalf("expected the open stream to be stopped, got %v", open.State())
	}
}

func TestBuilderFallsBackWithoutConfigDir(t *testing.T) {
	t.Setenv("HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")

	cfg := dashclient.DefaultConfig()
	cfg.Session.FilePath = ""
	client, err := dashclient.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build without a config dir: %v", err)
	}
	defer client.Close()

	if _, ok := client.Session().Backend().(session.Unavailable); !ok {
		t.Fatalf("expected the unavailable backend, got %T", client.Session().Backend())
	}
	ctx := context.Background()
	if _, ok := client.Session().Get(ctx); ok {
		t.Fatal("expected no credential")
	}

	redirects := 0
	out := client.NewGate(func() { redirects++ }).Mount(ctx, nil)
	if out.State != gate.Redirecting || out.Reason != gate.NoCredential {
		t.Fatalf("expected redirect for missing credential, got %v/%v", out.State, out.Reason)
	}
	if redirects != 1 {
		t.Fatalf("expected one redirect, got %d", redirects)
	}
}

func TestBuilderUsesInjectedBackend(t *testing.T) {
	backend := session.NewMemoryBackend()
	cfg := dashclient.DefaultConfig()
	client, err := dashclient.New().WithConfig(cfg).WithSessionBackend(backend).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer client.Close()

	if client.Session().Backend() != session.Backend(backend) {
		t.Fatal("expected the injected backend")
	}
	if _, ok := client.Verifier().(*api.Client); !ok {
		t.Fatalf("expected the api verifier, got %T", client.Verifier())
	}
}
