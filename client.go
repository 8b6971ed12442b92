package dashclient

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sentimenta/dashclient/api"
	"github.com/sentimenta/dashclient/gate"
	"github.com/sentimenta/dashclient/pipeline"
	"github.com/sentimenta/dashclient/session"
	"github.com/sentimenta/dashclient/stream"
)

// Client ties the session store, the backend API, gates and event streams
// together and records their activity in metrics and audit events.
//
// Client is safe for concurrent use. Close releases every stream created
// through it.
type Client struct {
	config     Config
	store      *session.Store
	api        *api.Client
	verifier   gate.Verifier
	transport  stream.Transport
	logger     *zap.Logger
	metrics    *Metrics
	audit      *auditDispatcher
	ownedRedis redis.UniversalClient

	targets sync.Map // subscription id -> target

	mu      sync.Mutex
	streams []*stream.Client
	closed  bool
}

// Config returns a copy of the configuration the client was built with.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

// Session returns the credential store.
func (c *Client) Session() *session.Store {
	return c.store
}

// API returns the backend API client.
func (c *Client) API() *api.Client {
	return c.api
}

// Verifier returns the verifier gates use.
func (c *Client) Verifier() gate.Verifier {
	return c.verifier
}

// NewGate returns a gate over the client's store and verifier. opts are
// applied after the client's own logger and observer.
func (c *Client) NewGate(redirect func(), opts ...gate.Option) *gate.Gate {
	base := []gate.Option{
		gate.WithLogger(c.logger.Named("gate")),
		gate.WithObserver(c),
	}
	return gate.New(c.store, c.verifier, redirect, append(base, opts...)...)
}

// NewStream returns an idle stream for target, authenticated from the
// client's store. The stream is closed with the client unless it was closed
// before.
func (c *Client) NewStream(target string, opts ...stream.Option) (*stream.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}

	var s *stream.Client
	base := []stream.Option{
		stream.WithLogger(c.logger.Named("stream")),
		stream.WithObserver(c),
		stream.OnClose(func() { c.release(s) }),
	}
	s = stream.New(target, c.store, c.transport, append(base, opts...)...)
	c.streams = append(c.streams, s)
	return s, nil
}

// release drops a closed stream so the client does not retain it.
func (c *Client) release(s *stream.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := slices.Index(c.streams, s); i >= 0 {
		c.streams = slices.Delete(c.streams, i, i+1)
	}
}

// WatchRun returns an idle stream for the progress of pipeline run runID.
func (c *Client) WatchRun(runID string, opts ...stream.Option) (*stream.Client, error) {
	return c.NewStream(c.api.StreamURL(runID), opts...)
}

// PollRun polls the status of runID until it is terminal. It is the
// fallback for a stream that failed fatally.
func (c *Client) PollRun(ctx context.Context, runID string, onUpdate func(pipeline.Progress, error)) (pipeline.Progress, error) {
	token := c.store.AccessToken(ctx)
	if token == "" {
		return pipeline.Progress{}, ErrNoCredential
	}
	fetch := func(ctx context.Context) (pipeline.Progress, error) {
		return c.api.PipelineRunStatus(ctx, token, runID)
	}
	return pipeline.Poll(ctx, fetch, c.config.Stream.PollInterval, onUpdate)
}

// MetricsSnapshot returns the current metric values.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped because the
// buffer was full.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Close closes every stream created through the client, waits for their
// readers, flushes pending audit events and releases owned connections.
// Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	streams := c.streams
	c.streams = nil
	c.mu.Unlock()

	var errs []error
	for _, s := range streams {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.audit.Close()
	if err := c.closeOwned(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Client) closeOwned() error {
	if c.ownedRedis == nil {
		return nil
	}
	err := c.ownedRedis.Close()
	c.ownedRedis = nil
	return err
}
