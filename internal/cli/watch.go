package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sentimenta/dashclient"
	"github.com/sentimenta/dashclient/gate"
	"github.com/sentimenta/dashclient/internal/tui"
	promexport "github.com/sentimenta/dashclient/metrics/export/prometheus"
	"github.com/sentimenta/dashclient/pipeline"
	"github.com/sentimenta/dashclient/stream"
)

type watchOptions struct {
	plain        bool
	pollFallback bool
	metricsAddr  string
}

func newWatchCommand(a *app) *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch RUN_ID",
		Short: "Follow a pipeline run live",
		Long: `watch verifies the stored session, then opens the run's event stream and
shows progress until the run completes or the stream fails.`,
		Args: cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := a.dashboard()
			if err != nil {
				return err
			}
			if opts.metricsAddr != "" {
				shutdown, err := serveMetrics(c, opts.metricsAddr, a.logger)
				if err != nil {
					return err
				}
				defer shutdown()
			}
			if opts.plain {
				return a.watchPlain(ctx, c, args[0], opts)
			}
			return a.watchTUI(ctx, c, args[0], opts)
		}),
	}
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "print progress lines instead of the interactive view")
	cmd.Flags().BoolVar(&opts.pollFallback, "poll-fallback", false, "poll run status if the live stream fails")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while watching")
	return cmd
}

// watchPlain follows the run and prints one line per progress event.
func (a *app) watchPlain(ctx context.Context, c *dashclient.Client, runID string, opts watchOptions) error {
	gv := &textView{}
	if _, _, err := a.authorize(ctx, "watch", gv); err != nil {
		return err
	}

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	var final pipeline.Progress
	s, err := c.WatchRun(runID,
		stream.OnProgress(func(ev stream.Event) {
			if p, err := pipeline.Decode(ev.Data); err == nil {
				a.printer.Print("[%3d%%] %s", pipeline.Percent(p, false), pipeline.StatusText(p, false))
			}
		}),
		stream.OnComplete(func(ev stream.Event) {
			p, _ := pipeline.Decode(ev.Data)
			final = p
			finish(nil)
		}),
		stream.OnError(func(err error) { finish(err) }),
	)
	if err != nil {
		return err
	}
	s.Start(ctx)

	select {
	case <-ctx.Done():
		_ = s.Close()
		return ctx.Err()
	case err := <-done:
		_ = s.Close()
		if err != nil {
			return a.fallback(ctx, c, runID, opts, err)
		}
	}
	return a.reportFinal(final)
}

// watchTUI runs the bubbletea view with the gate and stream feeding it.
func (a *app) watchTUI(ctx context.Context, c *dashclient.Client, runID string, opts watchOptions) error {
	prog := tea.NewProgram(tui.NewModel(runID), tea.WithContext(ctx), tea.WithOutput(a.out))
	bridge := tui.NewBridge(prog)

	s, err := c.WatchRun(runID, bridge.StreamOptions()...)
	if err != nil {
		return err
	}
	g := c.NewGate(bridge.Redirect)
	go func() {
		out := g.Mount(dashclient.WithViewName(ctx, "watch"), bridge)
		if out.State == gate.Authorized {
			s.Start(ctx)
		}
	}()

	final, err := prog.Run()
	_ = s.Close()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}

	m, ok := final.(tui.Model)
	if !ok {
		return nil
	}
	switch {
	case m.Phase() == tui.PhaseRedirected:
		return ErrNotSignedIn
	case m.Err() != nil:
		return a.fallback(ctx, c, runID, opts, m.Err())
	}
	return ctx.Err()
}

// fallback polls the run status after the stream failed when the user asked
// for it, and otherwise returns the stream error.
func (a *app) fallback(ctx context.Context, c *dashclient.Client, runID string, opts watchOptions, streamErr error) error {
	if !opts.pollFallback {
		return fmt.Errorf("live updates failed: %w", streamErr)
	}
	a.printer.Warning("Live updates failed (%v); polling every %s", streamErr, a.cfg.Stream.PollInterval)
	p, err := c.PollRun(ctx, runID, func(p pipeline.Progress, err error) {
		if err != nil {
			a.logger.Debug("poll failed", zap.Error(err))
			return
		}
		a.printer.Print("[%3d%%] %s", pipeline.Percent(p, false), pipeline.StatusText(p, false))
	})
	if err != nil {
		return err
	}
	return a.reportFinal(p)
}

func (a *app) reportFinal(p pipeline.Progress) error {
	text := pipeline.StatusText(p, true)
	switch p.Status {
	case pipeline.StatusFailed:
		a.printer.Error("%s", text)
		return fmt.Errorf("run %s", p.Status)
	case pipeline.StatusPartial:
		a.printer.Warning("%s", text)
	default:
		a.printer.Success("%s", text)
	}
	return nil
}

// serveMetrics exposes the client's metrics until the returned func is
// called.
func serveMetrics(c *dashclient.Client, addr string, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promexport.NewCollector(c).Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Debug("serving metrics", zap.String("addr", ln.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
