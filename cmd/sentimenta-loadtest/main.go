package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sentimenta/dashclient"
	"github.com/sentimenta/dashclient/api"
	"github.com/sentimenta/dashclient/internal/devapi"
	"github.com/sentimenta/dashclient/jwt"
	"github.com/sentimenta/dashclient/pipeline"
	"github.com/sentimenta/dashclient/session"
	"github.com/sentimenta/dashclient/stream"
)

func main() {
	var (
		streams     = flag.Int("streams", 500, "number of runs to follow concurrently")
		concurrency = flag.Int("concurrency", 128, "maximum streams open at once")
		openRate    = flag.Float64("rate", 200, "stream opens per second")
		steps       = flag.Int("steps", 4, "analysis steps per simulated run")
		interval    = flag.Duration("interval", 50*time.Millisecond, "progress frame and run step interval")
		timeout     = flag.Duration("timeout", 2*time.Minute, "overall deadline")
	)
	flag.Parse()

	if *streams <= 0 || *concurrency <= 0 || *openRate <= 0 || *steps <= 0 {
		fmt.Fprintln(os.Stderr, "streams, concurrency, rate, and steps must be > 0")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("sentimenta-loadtest-secret"),
	})
	if err != nil {
		fatal("token manager", err)
	}
	dev, err := devapi.New(devapi.Config{Tokens: tokens, StreamInterval: *interval, StepInterval: *interval})
	if err != nil {
		fatal("devapi", err)
	}
	defer func() { _ = dev.Close() }()
	srv := httptest.NewServer(dev)
	defer srv.Close()

	dev.AddUser(api.Identity{ID: "load", Email: "load@sentimenta.local", Plan: "pro"})
	access, refresh, err := dev.IssueFor("load")
	if err != nil {
		fatal("issue tokens", err)
	}

	cfg := dashclient.DefaultConfig()
	cfg.API.BaseURL = srv.URL + devapi.BasePath
	cfg.Session.Backend = dashclient.SessionMemory
	client, err := dashclient.New().
		WithConfig(cfg).
		WithSessionBackend(session.NewMemoryBackend()).
		WithLogger(zap.NewNop()).
		Build()
	if err != nil {
		fatal("client build", err)
	}
	defer func() { _ = client.Close() }()
	if err := client.Session().Set(ctx, access, refresh); err != nil {
		fatal("session set", err)
	}

	plan := devapi.RunPlan{Posts: 1, Comments: *steps, AnalyzePerStep: 1}
	runIDs := make([]string, *streams)
	for i := range runIDs {
		runIDs[i] = dev.CreateRun("load", "", plan).ID
	}
	fmt.Printf("following %d runs (concurrency=%d, rate=%.0f/s)\n", *streams, *concurrency, *openRate)

	stats := followAll(ctx, client, runIDs, *concurrency, rate.NewLimiter(rate.Limit(*openRate), 1))

	fmt.Println("---- results ----")
	printStats("complete", stats)
	snap := client.MetricsSnapshot()
	fmt.Printf("counters: started=%d connected=%d progress=%d complete=%d transient=%d fatal=%d dropped=%d\n",
		snap.Counters[dashclient.MetricStreamStarted],
		snap.Counters[dashclient.MetricStreamConnected],
		snap.Counters[dashclient.MetricStreamProgress],
		snap.Counters[dashclient.MetricStreamComplete],
		snap.Counters[dashclient.MetricStreamTransientError],
		snap.Counters[dashclient.MetricStreamFatalError],
		snap.Counters[dashclient.MetricStreamFrameDropped],
	)
	if stats.failures > 0 {
		os.Exit(1)
	}
}

// followAll opens one stream per run and records how long each took to reach
// its complete frame.
func followAll(ctx context.Context, client *dashclient.Client, runIDs []string, concurrency int, limiter *rate.Limiter) phaseStats {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, len(runIDs))
		mu        sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	start := time.Now()
	for _, id := range runIDs {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			d, err := followOne(gctx, client, id)
			if err != nil {
				atomic.AddInt64(&failures, 1)
				return nil
			}
			mu.Lock()
			latencies = append(latencies, d)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func followOne(ctx context.Context, client *dashclient.Client, runID string) (time.Duration, error) {
	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	s, err := client.WatchRun(runID,
		stream.OnComplete(func(ev stream.Event) {
			p, err := pipeline.Decode(ev.Data)
			if err == nil && p.Status != pipeline.StatusCompleted {
				err = fmt.Errorf("run %s ended %s", runID, p.Status)
			}
			finish(err)
		}),
		stream.OnError(func(err error) { finish(err) }),
	)
	if err != nil {
		return 0, err
	}
	defer func() { _ = s.Close() }()

	t0 := time.Now()
	s.Start(ctx)
	select {
	case err := <-done:
		return time.Since(t0), err
	case <-ctx.Done():
		return 0, errors.Join(ctx.Err(), fmt.Errorf("run %s did not complete", runID))
	}
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: streams=%d failures=%d total=%s streams/sec=%.1f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Millisecond),
		s.p95.Round(time.Millisecond),
		s.p99.Round(time.Millisecond),
	)
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
