package dashclient

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricGateAuthorized)

	if got := m.Value(MetricGateAuthorized); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsNilIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricStreamStarted)
	m.Observe(MetricVerifyLatency, time.Second)
	if m.Enabled() || m.LatencyEnabled() {
		t.Fatalf("nil metrics must report disabled")
	}
	if got := len(m.Snapshot().Counters); got != 0 {
		t.Fatalf("expected empty snapshot, got %d counters", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricStreamProgress)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricStreamProgress); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2500 * time.Millisecond,
		4 * time.Second,
	}

	for _, d := range observations {
		m.Observe(MetricVerifyLatency, d)
	}
	// Counters are not histograms.
	m.Observe(MetricStreamStarted, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricVerifyLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricStreamStarted)
	m.Inc(MetricStreamFatalError)
	m.Inc(MetricStreamFatalError)
	m.Observe(MetricVerifyLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricStreamStarted] != 1 {
		t.Fatalf("expected MetricStreamStarted=1 got %d", snap.Counters[MetricStreamStarted])
	}
	if snap.Counters[MetricStreamFatalError] != 2 {
		t.Fatalf("expected MetricStreamFatalError=2 got %d", snap.Counters[MetricStreamFatalError])
	}
	if _, ok := snap.Histograms[MetricVerifyLatency]; ok {
		t.Fatalf("histogram must be absent when latency is disabled")
	}
	if _, ok := snap.Counters[MetricVerifyLatency]; ok {
		t.Fatalf("latency id must not appear as a counter")
	}
}
