package eventsource

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/sentimenta/dashclient/stream"
)

const (
	defaultRetry         = 3 * time.Second
	defaultMaxRetry      = time.Minute
	defaultMaxReconnects = 10
)

var (
	// ErrUnexpectedStatus fails the channel on a non-200 response.
	ErrUnexpectedStatus = errors.New("eventsource: unexpected status")
	// ErrUnexpectedContentType fails the channel when the body is not an event stream.
	ErrUnexpectedContentType = errors.New("eventsource: unexpected content type")
	// ErrReconnectsExhausted fails the channel after too many failed reconnects.
	ErrReconnectsExhausted = errors.New("eventsource: reconnect attempts exhausted")
	// ErrStreamEnded is reported when the server ends the response.
	ErrStreamEnded = errors.New("eventsource: stream ended")
)

// Config configures a [Transport].
type Config struct {
	// HTTPClient performs the requests. It must not set a Timeout, which
	// would cut long-lived streams. Defaults to a client without timeout.
	HTTPClient *http.Client
	// DefaultRetry is the reconnect delay until the server sends "retry:".
	DefaultRetry time.Duration
	// MaxRetry caps the exponential reconnect delay.
	MaxRetry time.Duration
	// MaxReconnects is the number of consecutive failed reconnects before the
	// channel is closed. Zero selects the default, negative means unlimited.
	MaxReconnects int
	// MaxFrameSize bounds one line and the data of one frame. A larger
	// frame fails the channel. Zero selects DefaultMaxFrameSize.
	MaxFrameSize int
	// Header is added to every request.
	Header http.Header
	Logger *zap.Logger
}

// Transport opens event stream channels over HTTP.
type Transport struct {
	client        *http.Client
	retry         time.Duration
	maxRetry      time.Duration
	maxReconnects int
	maxFrame      int
	header        http.Header
	logger        *zap.Logger
}

// New returns a transport for cfg.
func New(cfg Config) *Transport {
	t := &Transport{
		client:        cfg.HTTPClient,
		retry:         cfg.DefaultRetry,
		maxRetry:      cfg.MaxRetry,
		maxReconnects: cfg.MaxReconnects,
		maxFrame:      cfg.MaxFrameSize,
		header:        cfg.Header.Clone(),
		logger:        cfg.Logger,
	}
	if t.client == nil {
		t.client = &http.Client{}
	}
	if t.retry <= 0 {
		t.retry = defaultRetry
	}
	if t.maxRetry < t.retry {
		t.maxRetry = max(defaultMaxRetry, t.retry)
	}
	if t.maxReconnects == 0 {
		t.maxReconnects = defaultMaxReconnects
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t
}

// Open implements stream.Transport. The connection is made on a background
// goroutine; the channel lives until Close or until ctx is done.
func (t *Transport) Open(ctx context.Context, target string, h stream.Handler) (stream.Channel, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("eventsource: parse target: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("eventsource: unsupported scheme %q", u.Scheme)
	}
	if h == nil {
		return nil, errors.New("eventsource: nil handler")
	}

	runCtx, cancel := context.WithCancel(ctx)
	ch := &channel{
		transport: t,
		target:    u.String(),
		handler:   h,
		cancel:    cancel,
		done:      make(chan struct{}),
		retry:     t.retry,
		logger:    t.logger.With(zap.String("host", u.Host), zap.String("path", u.Path)),
	}
	ch.state.Store(int32(stream.ReadyConnecting))

	go ch.run(runCtx)
	return ch, nil
}

type channel struct {
	transport *Transport
	target    string
	handler   stream.Handler
	logger    *zap.Logger

	state   atomic.Int32
	closing atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	// owned by the run goroutine
	lastID string
	retry  time.Duration
}

func (c *channel) ReadyState() stream.ReadyState {
	return stream.ReadyState(c.state.Load())
}

func (c *channel) Close() error {
	if c.closing.CompareAndSwap(false, true) {
		c.state.Store(int32(stream.ReadyClosed))
		c.cancel()
	}
	return nil
}

func (c *channel) Done() <-chan struct{} {
	return c.done
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func (c *channel) run(ctx context.Context) {
	defer close(c.done)
	defer c.cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry
	bo.MaxInterval = c.transport.maxRetry

	failures := 0
	for {
		opened, err := c.connect(ctx)

		if c.closing.Load() {
			return
		}
		if ctx.Err() != nil {
			c.fail(ctx.Err())
			return
		}
		var fatal *fatalError
		if errors.As(err, &fatal) {
			c.fail(fatal.err)
			return
		}

		if opened {
			failures = 0
			if bo.InitialInterval != c.retry {
				bo.InitialInterval = c.retry
			}
			bo.Reset()
		}
		failures++
		if limit := c.transport.maxReconnects; limit > 0 && failures > limit {
			c.fail(fmt.Errorf("%w after %d attempts: %v", ErrReconnectsExhausted, limit, err))
			return
		}

		c.state.Store(int32(stream.ReadyConnecting))
		c.handler.Failed(stream.ReadyConnecting, err)

		delay := bo.NextBackOff()
		c.logger.Debug("event stream reconnecting",
			zap.Int("attempt", failures),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (c *channel) fail(err error) {
	if c.closing.Load() {
		return
	}
	c.state.Store(int32(stream.ReadyClosed))
	c.logger.Debug("event stream closed", zap.Error(err))
	c.handler.Failed(stream.ReadyClosed, err)
}

// connect performs one request and pumps frames until the response ends. It
// reports whether the response was accepted.
func (c *channel) connect(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.target, nil)
	if err != nil {
		return false, &fatalError{err: err}
	}
	for k, vs := range c.transport.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.lastID != "" {
		req.Header.Set("Last-Event-ID", c.lastID)
	}

	resp, err := c.transport.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, &fatalError{err: fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)}
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "text/event-stream" {
		return false, &fatalError{err: fmt.Errorf("%w %q", ErrUnexpectedContentType, resp.Header.Get("Content-Type"))}
	}

	c.state.Store(int32(stream.ReadyOpen))
	c.handler.Opened()

	scanner := NewScanner(resp.Body, c.lastID, c.transport.maxFrame)
	for scanner.Next() {
		f := scanner.Frame()
		c.lastID = scanner.LastEventID()
		if c.closing.Load() {
			return true, nil
		}
		c.handler.Message(f.Event, []byte(f.Data), f.ID)
	}
	c.lastID = scanner.LastEventID()
	if r := scanner.Retry(); r > 0 {
		c.retry = r
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, ErrFrameTooLarge) {
			return true, &fatalError{err: err}
		}
		return true, err
	}
	return true, ErrStreamEnded
}
