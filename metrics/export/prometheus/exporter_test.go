package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sentimenta/dashclient"
)

type fakeSource struct {
	snapshot dashclient.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() dashclient.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: dashclient.MetricsSnapshot{
			Counters:   map[dashclient.MetricID]uint64{},
			Histograms: map[dashclient.MetricID][]uint64{},
		},
	})

	if got := testutil.CollectAndCount(c); got != 0 {
		t.Fatalf("expected no series for disabled metrics, got %d", got)
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: dashclient.MetricsSnapshot{
			Counters: map[dashclient.MetricID]uint64{
				dashclient.MetricStreamComplete: 7,
			},
			Histograms: map[dashclient.MetricID][]uint64{
				dashclient.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	want := `
# HELP sentimenta_stream_complete_total Complete events applied.
# TYPE sentimenta_stream_complete_total counter
sentimenta_stream_complete_total 7
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want), "sentimenta_stream_complete_total"); err != nil {
		t.Fatalf("unexpected counter output: %v", err)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	if !strings.Contains(out, `sentimenta_gate_verify_latency_seconds_bucket{le="0.025"} 1`) {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, `sentimenta_gate_verify_latency_seconds_bucket{le="+Inf"} 36`) {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "sentimenta_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestCollectorOverRealClient(t *testing.T) {
	cfg := dashclient.DefaultConfig()
	cfg.Session.Backend = dashclient.SessionMemory
	client, err := dashclient.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer client.Close()

	c := NewCollector(client)
	// every counter plus histogram plus audit dropped
	if got := testutil.CollectAndCount(c); got < 13 {
		t.Fatalf("expected all series, got %d", got)
	}
}
